package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/token"
)

// contextKey はコンテキストキーの型。パッケージ外との衝突を防ぐ。
type contextKey string

const (
	userIDContextKey contextKey = "user_id"
	roleContextKey   contextKey = "role"
	claimsContextKey contextKey = "claims"
)

// ErrNoUserInContext は認証済みユーザーがコンテキストに無い場合のエラー。
var ErrNoUserInContext = errors.New("user ID not found in context")

// Authenticator はBearerトークンを検証してクレームを返す。
// auth.Serviceが実装する。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*token.Claims, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// ユーザーID・ロール・クレームをコンテキストに注入するミドルウェアを返す。
// トークンが無い、または無効な場合は401を返す。
func NewAuthMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				WriteAPIError(w, model.NewUnauthenticatedError())
				return
			}

			claims, err := authenticator.Authenticate(r.Context(), raw)
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					WriteAPIError(w, apiErr)
					return
				}
				slog.ErrorContext(r.Context(), "token authentication failed",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			ctx := ContextWithClaims(r.Context(), claims)
			setLoggedUserID(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからトークン部分を取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, raw, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// UserIDFromContext はコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", ErrNoUserInContext
	}
	return userID, nil
}

// RoleFromContext はコンテキストからロールを取得する。未設定の場合は空文字を返す。
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleContextKey).(string)
	return role
}

// ClaimsFromContext はコンテキストからトークンのクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*token.Claims)
	return claims, ok && claims != nil
}

// ContextWithClaims はクレームとそこから得たユーザーID・ロールを設定したコンテキストを返す。
func ContextWithClaims(ctx context.Context, claims *token.Claims) context.Context {
	ctx = context.WithValue(ctx, claimsContextKey, claims)
	ctx = context.WithValue(ctx, userIDContextKey, claims.Subject)
	return context.WithValue(ctx, roleContextKey, claims.Role)
}

// ContextWithUserID はユーザーIDとロールを設定したコンテキストを返す。
// テストやクレームを伴わない内部呼び出しで使用する。
func ContextWithUserID(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDContextKey, userID)
	return context.WithValue(ctx, roleContextKey, role)
}
