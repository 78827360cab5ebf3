package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout は依存先1件あたりの疎通確認の上限時間。
const healthCheckTimeout = 2 * time.Second

// HealthCheck は依存先の疎通確認。
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler はPostgreSQLとRedisの疎通を確認するハンドラー。
type HealthHandler struct {
	checks []HealthCheck
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type healthResponse struct {
	Status string `json:"status"`
}

// ServeHTTP は全ての依存先が応答すれば200、いずれかが失敗すれば503を返す。
// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.Ping(ctx)
		cancel()
		if err != nil {
			slog.WarnContext(r.Context(), "health check failed",
				slog.String("dependency", c.Name),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
