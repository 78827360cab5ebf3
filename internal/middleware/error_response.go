package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/todoman/internal/model"
)

// ErrorResponseBody はバリデーション以外のエラーレスポンスのJSON構造。
type ErrorResponseBody struct {
	Error string `json:"error"`
}

// ValidationErrorResponseBody はバリデーションエラーのJSON構造。
type ValidationErrorResponseBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// StatusForCode はエラーコードに対応するHTTPステータスコードを返す。
// 未知のコードは500として扱う。
func StatusForCode(code string) int {
	switch code {
	case model.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case model.ErrCodeMalformedRequest:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeInvalidOTP, model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound, model.ErrCodeTodoNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailTaken:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse はAPIErrorをJSONレスポンスとして書き込む。
// Fieldsを持つエラーは{"message","errors"}、それ以外は{"error"}の形式になる。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr.Code == model.ErrCodeValidation {
		WriteJSON(w, statusCode, ValidationErrorResponseBody{
			Message: apiErr.Message,
			Errors:  apiErr.Fields,
		})
		return
	}
	WriteJSON(w, statusCode, ErrorResponseBody{Error: apiErr.Message})
}

// WriteAPIError はエラーコードからステータスを決めてAPIErrorを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
}

// WriteInternalServerError は500レスポンスを書き込む。詳細はクライアントに返さない。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteAPIError(w, model.NewInternalError())
}

// WriteJSON は任意の値をJSONレスポンスとして書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
