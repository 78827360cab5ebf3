package handler

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Collector         metrics.MetricsCollector
	Authenticator     middleware.Authenticator
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	TrustedProxies    []netip.Prefix

	// サービス
	AuthService AuthServiceInterface
	UserService UserServiceInterface
	TodoService TodoServiceInterface

	// 運用エンドポイント
	HealthChecks   []HealthCheck
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP(信頼済みプロキシのみ) → Logging → Recovery → SecurityHeaders → CORS
//	→ (OTP: RateLimit(OTP)) / (認証が必要なルート: Auth → RateLimit(General))
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Collector
	if collector == nil {
		collector = metrics.Nop{}
	}

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRealIPMiddleware(deps.TrustedProxies))
	r.Use(middleware.NewLoggingMiddleware(logger, collector))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, middleware.ErrorResponseBody{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, middleware.ErrorResponseBody{Error: "Method not allowed"})
	})

	authHandler := NewAuthHandler(deps.AuthService, deps.UserService)
	todoHandler := NewTodoHandler(deps.TodoService)

	// --- 運用エンドポイント ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecks...))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証不要のルート ---
	r.Post("/register", authHandler.Register)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.OTPMiddleware())
		r.Post("/request-otp-login", authHandler.RequestOTPLogin)
		r.Post("/verify-otp", authHandler.VerifyOTP)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)

		r.Route("/todos", func(r chi.Router) {
			r.Get("/", todoHandler.List)
			r.Post("/", todoHandler.Create)
			r.Get("/search", todoHandler.Search)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", todoHandler.Get)
				r.Put("/", todoHandler.Update)
				r.Delete("/", todoHandler.Delete)
				r.Patch("/complete", todoHandler.MarkComplete)
				r.Patch("/pending", todoHandler.MarkPending)
			})
		})

		r.Get("/users/{userId}/todos", todoHandler.ListByUser)
	})

	return r
}
