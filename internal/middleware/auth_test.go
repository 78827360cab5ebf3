package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/token"
)

// --- モック定義 ---

type mockAuthenticator struct {
	authenticateFn func(ctx context.Context, raw string) (*token.Claims, error)
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, raw string) (*token.Claims, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, raw)
	}
	return nil, model.NewUnauthenticatedError()
}

func validClaims(userID, role string) *token.Claims {
	return &token.Claims{
		Email: userID + "@example.com",
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:      "jti-" + userID,
			Subject: userID,
		},
	}
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body.Error
}

// --- テスト ---

func TestAuthMiddleware_ValidToken_InjectsUserAndRole(t *testing.T) {
	auth := &mockAuthenticator{
		authenticateFn: func(_ context.Context, raw string) (*token.Claims, error) {
			if raw == "good-token" {
				return validClaims("user-123", model.RoleAdmin), nil
			}
			return nil, model.NewUnauthenticatedError()
		},
	}

	var capturedUserID, capturedRole string
	var capturedClaims *token.Claims
	handler := NewAuthMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		capturedUserID = userID
		capturedRole = RoleFromContext(r.Context())
		capturedClaims, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if capturedUserID != "user-123" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-123")
	}
	if capturedRole != model.RoleAdmin {
		t.Errorf("role = %q, want %q", capturedRole, model.RoleAdmin)
	}
	if capturedClaims == nil || capturedClaims.ID != "jti-user-123" {
		t.Errorf("claims = %+v, want jti-user-123", capturedClaims)
	}
}

func TestAuthMiddleware_SchemeIsCaseInsensitive(t *testing.T) {
	auth := &mockAuthenticator{
		authenticateFn: func(context.Context, string) (*token.Claims, error) {
			return validClaims("user-1", model.RoleUser), nil
		},
	}
	handler := NewAuthMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer tok")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_MissingOrMalformedHeader_Returns401(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"basic scheme", "Basic dXNlcjpwYXNz"},
		{"bearer without token", "Bearer "},
		{"token only", "good-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			auth := &mockAuthenticator{
				authenticateFn: func(context.Context, string) (*token.Claims, error) {
					called = true
					return validClaims("user-1", model.RoleUser), nil
				},
			}
			handler := NewAuthMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if got := decodeErrorBody(t, w); got != "Unauthenticated" {
				t.Errorf("error = %q, want %q", got, "Unauthenticated")
			}
			if called {
				t.Error("Authenticate should not be called without a bearer token")
			}
		})
	}
}

func TestAuthMiddleware_RejectedToken_Returns401(t *testing.T) {
	auth := &mockAuthenticator{}
	handler := NewAuthMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer revoked-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestAuthMiddleware_BackendError_Returns500(t *testing.T) {
	auth := &mockAuthenticator{
		authenticateFn: func(context.Context, string) (*token.Claims, error) {
			return nil, errors.New("redis: connection refused")
		},
	}
	handler := NewAuthMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if got := decodeErrorBody(t, w); got != "Internal server error" {
		t.Errorf("error = %q", got)
	}
}

func TestUserIDFromContext_Empty_ReturnsError(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); !errors.Is(err, ErrNoUserInContext) {
		t.Errorf("err = %v, want ErrNoUserInContext", err)
	}
	if role := RoleFromContext(context.Background()); role != "" {
		t.Errorf("role = %q, want empty", role)
	}
	if _, ok := ClaimsFromContext(context.Background()); ok {
		t.Error("ClaimsFromContext should report false for an empty context")
	}
}

func TestContextWithUserID_RoundTrip(t *testing.T) {
	ctx := ContextWithUserID(context.Background(), "user-9", model.RoleUser)

	userID, err := UserIDFromContext(ctx)
	if err != nil || userID != "user-9" {
		t.Errorf("UserIDFromContext = %q, %v", userID, err)
	}
	if role := RoleFromContext(ctx); role != model.RoleUser {
		t.Errorf("role = %q, want user", role)
	}
}
