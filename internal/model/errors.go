// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"sort"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// CodeからHTTPステータスが決まり、Messageはそのままクライアントに返る。
// Fieldsはバリデーションエラー時のみフィールド名→メッセージ一覧を持つ。
type APIError struct {
	Code    string
	Message string
	Fields  map[string][]string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, strings.Join(names, ", "))
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeMalformedRequest   = "MALFORMED_REQUEST"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidOTP         = "INVALID_OTP"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeTodoNotFound       = "TODO_NOT_FOUND"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// ValidationMessage はバリデーションエラーのトップレベルメッセージ。
const ValidationMessage = "The given data was invalid."

// NewValidationError はフィールド単位のバリデーションエラーを生成する。
func NewValidationError(fields map[string][]string) *APIError {
	return &APIError{
		Code:    ErrCodeValidation,
		Message: ValidationMessage,
		Fields:  fields,
	}
}

// NewFieldError は単一フィールドのバリデーションエラーを生成する。
func NewFieldError(field, message string) *APIError {
	return NewValidationError(map[string][]string{field: {message}})
}

// NewMalformedRequestError はJSONとして解釈できないリクエストボディのエラーを生成する。
func NewMalformedRequestError() *APIError {
	return &APIError{
		Code:    ErrCodeMalformedRequest,
		Message: "Malformed JSON request body",
	}
}

// NewInvalidCredentialsError は認証情報不一致のエラーを生成する。
// 未登録メールアドレスとパスワード不一致で同一の値を返すこと。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidCredentials,
		Message: "Invalid credentials",
	}
}

// NewInvalidOTPError はOTPの不一致・期限切れ・未発行のエラーを生成する。
func NewInvalidOTPError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidOTP,
		Message: "Invalid or expired OTP",
	}
}

// NewUnauthenticatedError はトークン未指定・無効時のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:    ErrCodeUnauthenticated,
		Message: "Unauthenticated",
	}
}

// NewForbiddenError は他ユーザーのリソースへのアクセスエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:    ErrCodeForbidden,
		Message: "Unauthorized",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeUserNotFound,
		Message: "User not found",
	}
}

// NewTodoNotFoundError はTODOが見つからない場合のエラーを生成する。
func NewTodoNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeTodoNotFound,
		Message: "Todo not found",
	}
}

// NewEmailTakenError は登録済みメールアドレスでの登録エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:    ErrCodeEmailTaken,
		Message: "Email already registered",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:    ErrCodeRateLimited,
		Message: "Too many requests",
	}
}

// NewInternalError は内部エラーの汎用レスポンスを生成する。
// 詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:    ErrCodeInternal,
		Message: "Internal server error",
	}
}
