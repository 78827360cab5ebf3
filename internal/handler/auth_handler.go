// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/todoman/internal/auth"
	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/token"
	"github.com/hitoshi/todoman/internal/user"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	RequestOTP(ctx context.Context, email, password string) (string, error)
	VerifyOTP(ctx context.Context, in auth.VerifyOTPInput) (*auth.LoginResult, error)
	Logout(ctx context.Context, claims *token.Claims) error
	Me(ctx context.Context, userID string) (*model.User, error)
}

// UserServiceInterface はユーザー登録に必要なサービスインターフェース。
type UserServiceInterface interface {
	Register(ctx context.Context, in user.RegisterInput) (*model.User, error)
}

// AuthHandler は登録・OTPログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	users   UserServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, users UserServiceInterface) *AuthHandler {
	return &AuthHandler{
		service: service,
		users:   users,
	}
}

type registerRequest struct {
	Name                 string  `json:"name" validate:"required,max=255"`
	Email                string  `json:"email" validate:"required,email,max=255"`
	Password             string  `json:"password" validate:"required,min=8"`
	PasswordConfirmation string  `json:"password_confirmation" validate:"eqfield=Password"`
	Role                 string  `json:"role" validate:"required,oneof=user admin"`
	Bio                  *string `json:"bio" validate:"omitempty,max=500"`
	ProfilePicture       *string `json:"profile_picture" validate:"omitempty,url"`
}

type requestOTPRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type verifyOTPRequest struct {
	Email    string `json:"email" validate:"required,email"`
	OTP      string `json:"otp" validate:"required,digits=6"`
	Remember *bool  `json:"remember"`
}

type verifyOTPResponse struct {
	Token     string `json:"token"`
	ExpiresIn string `json:"expires_in"`
}

// Register はユーザーを登録する。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := validateStruct(req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	_, err := h.users.Register(r.Context(), user.RegisterInput{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		Role:           req.Role,
		Bio:            req.Bio,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: "User registered successfully"})
}

// RequestOTPLogin はメールアドレスとパスワードを確認し、OTPをメールで送信する。
// POST /request-otp-login
func (h *AuthHandler) RequestOTPLogin(w http.ResponseWriter, r *http.Request) {
	var req requestOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := validateStruct(req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	msg, err := h.service.RequestOTP(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// VerifyOTP はOTPを検証してアクセストークンを発行する。
// POST /verify-otp
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := validateStruct(req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.service.VerifyOTP(r.Context(), auth.VerifyOTPInput{
		Email:    req.Email,
		OTP:      req.OTP,
		Remember: req.Remember != nil && *req.Remember,
		ClientIP: middleware.ClientIP(r),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyOTPResponse{
		Token:     result.Token,
		ExpiresIn: result.ExpiresAt.UTC().Format(timestampLayout),
	})
}

// Logout は現在のトークンを失効させる。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteAPIError(w, model.NewUnauthenticatedError())
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

// Me は現在のログインユーザー情報を返す。
// GET /me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	u, err := h.service.Me(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}
