package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/todoman/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限サイズ。
const maxRequestBodyBytes = 1 << 20

// validate はリクエスト構造体の検証に使う共有インスタンス。
// フィールド名はjsonタグの名前で報告する。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("digits", validateDigits); err != nil {
		panic(fmt.Sprintf("handler: register digits validation: %v", err))
	}
	return v
}

// validateDigits はdigits=Nタグの検証関数。ちょうどN桁のASCII数字であることを要求する。
func validateDigits(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	s := fl.Field().String()
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// decodeJSON はリクエストボディをdstにデコードする。
// 空のボディは空オブジェクトとして扱い、必須項目の検証に委ねる。
// 型の合わないフィールドはバリデーションエラー、JSONとして不正な場合はMalformedRequestエラーを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return model.NewFieldError(typeErr.Field, typeMismatchMessage(typeErr.Field, typeErr.Type))
	}
	return model.NewMalformedRequestError()
}

// validateStruct はvalidateタグに従ってreqを検証し、失敗時はフィールド単位のバリデーションエラーを返す。
func validateStruct(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate request: %w", err)
	}

	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		fields[name] = append(fields[name], validationMessage(fe))
	}
	return model.NewValidationError(fields)
}

// validationMessage はタグごとの利用者向けメッセージを返す。
func validationMessage(fe validator.FieldError) string {
	attr := displayName(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", attr)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", attr)
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s characters.", attr, fe.Param())
	case "min":
		return fmt.Sprintf("The %s must be at least %s characters.", attr, fe.Param())
	case "digits":
		return fmt.Sprintf("The %s must be %s digits.", attr, fe.Param())
	case "eqfield":
		return fmt.Sprintf("The %s confirmation does not match.", displayName(strings.ToLower(fe.Param())))
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", attr)
	case "url", "http_url":
		return fmt.Sprintf("The %s format is invalid.", attr)
	default:
		return fmt.Sprintf("The %s is invalid.", attr)
	}
}

// typeMismatchMessage はJSONの型不一致に対するメッセージを返す。
func typeMismatchMessage(field string, t reflect.Type) string {
	attr := displayName(field)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return fmt.Sprintf("The %s field must be true or false.", attr)
	case reflect.String:
		return fmt.Sprintf("The %s must be a string.", attr)
	case reflect.Int, reflect.Int64:
		return fmt.Sprintf("The %s must be an integer.", attr)
	default:
		return fmt.Sprintf("The %s is invalid.", attr)
	}
}

// displayName はフィールド名をメッセージ用の表記にする（profile_picture → profile picture）。
func displayName(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

// queryInt はクエリパラメータを整数として返す。未指定・不正な値の場合は0を返す。
// queryFlag はクエリパラメータが真値（1, true, on, yes）かどうかを返す。
func queryFlag(r *http.Request, key string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key))) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}
