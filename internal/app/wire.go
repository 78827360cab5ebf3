package app

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/todoman/internal/auth"
	"github.com/hitoshi/todoman/internal/config"
	"github.com/hitoshi/todoman/internal/handler"
	"github.com/hitoshi/todoman/internal/mail"
	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/otp"
	"github.com/hitoshi/todoman/internal/password"
	"github.com/hitoshi/todoman/internal/repository"
	"github.com/hitoshi/todoman/internal/security"
	"github.com/hitoshi/todoman/internal/todo"
	"github.com/hitoshi/todoman/internal/token"
	"github.com/hitoshi/todoman/internal/user"
)

// mailHTTPTimeout はメールAPI呼び出し1回あたりのタイムアウト。
const mailHTTPTimeout = 10 * time.Second

// serverDeps はAPIサーバーの組み立てに必要な外部リソース。
type serverDeps struct {
	cfg       *config.Config
	db        *sql.DB
	redis     redis.UniversalClient
	logger    *slog.Logger
	collector metrics.MetricsCollector
	gatherer  prometheus.Gatherer
	mailer    mail.Mailer
}

// server は組み立て済みのHTTPハンドラーと、その寿命に紐づくバックグラウンド処理。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter

	// dispatcher はMAIL_QUEUE=inlineの場合のみ設定される
	dispatcher *mail.Dispatcher
}

// buildServer はリポジトリ、サービス、ルーターをワイヤリングする。
func buildServer(deps serverDeps) *server {
	cfg := deps.cfg

	// 1. リポジトリ
	userRepo := repository.NewPostgresUserRepo(deps.db)
	todoRepo := repository.NewPostgresTodoRepo(deps.db)

	// 2. メール配信経路
	var (
		mailQueue  mail.Enqueuer
		dispatcher *mail.Dispatcher
	)
	switch cfg.MailQueue {
	case config.MailQueueRedis:
		// 配信はworkerサブコマンドが担う
		mailQueue = mail.NewRedisQueue(deps.redis, mail.DefaultQueueKey, deps.logger)
	default:
		dispatcher = mail.NewDispatcher(deps.mailer, deps.collector, deps.logger, cfg.MailWorkers, cfg.MailBuffer)
		mailQueue = dispatcher
	}

	// 3. ドメインサービス
	hasher := password.NewBcryptHasher(bcrypt.DefaultCost)
	authService := auth.NewService(
		userRepo,
		otp.NewRedisStore(deps.redis, cfg.OTPMaxAttempts),
		hasher,
		mailQueue,
		token.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer),
		token.NewRedisDenylist(deps.redis),
		deps.collector,
		auth.ServiceConfig{
			OTPTTL:      cfg.OTPTTL,
			TokenTTL:    cfg.JWTTTL,
			RememberTTL: cfg.JWTRememberTTL,
		},
	)
	userService := user.NewService(userRepo, hasher)
	todoService := todo.NewService(todoRepo, security.NewTextSanitizer())

	// 4. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitOTP))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            deps.logger,
		Collector:         deps.collector,
		Authenticator:     authService,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustedProxies:    cfg.TrustedProxies,

		AuthService: authService,
		UserService: userService,
		TodoService: todoService,

		HealthChecks: []handler.HealthCheck{
			{Name: "postgres", Ping: deps.db.PingContext},
			{Name: "redis", Ping: func(ctx context.Context) error { return deps.redis.Ping(ctx).Err() }},
		},
		MetricsHandler: metrics.Handler(deps.gatherer),
	})

	return &server{
		handler:     router,
		rateLimiter: rateLimiter,
		dispatcher:  dispatcher,
	}
}

// start はバックグラウンド処理を起動する。
func (s *server) start(ctx context.Context) {
	if s.dispatcher != nil {
		s.dispatcher.Start(ctx)
	}
}

// stop はバックグラウンド処理を停止する。インラインのメール配信はキューが空になるまで待つ。
func (s *server) stop(ctx context.Context) {
	s.rateLimiter.Stop()
	if s.dispatcher != nil {
		if err := s.dispatcher.Shutdown(ctx); err != nil {
			slog.Error("mail dispatcher did not drain", slog.String("error", err.Error()))
		}
	}
}

// newMailer はRESEND_API_KEYが設定されていればResend APIで、無ければログ出力で送信するMailerを返す。
func newMailer(cfg *config.Config, logger *slog.Logger) mail.Mailer {
	if cfg.ResendAPIKey == "" {
		logger.Warn("RESEND_API_KEY is not set, mails are written to the log instead of being sent")
		return mail.NewLogMailer(logger)
	}
	return mail.NewResendMailer(
		&http.Client{Timeout: mailHTTPTimeout},
		logger,
		cfg.ResendAPIKey,
		cfg.MailFrom,
		cfg.MailAPIBaseURL,
	)
}

// mailWorker はRedisキューのジョブをワーカープールで配信する。
type mailWorker struct {
	queue      *mail.RedisQueue
	dispatcher *mail.Dispatcher
	logger     *slog.Logger
}

func newMailWorker(cfg *config.Config, client redis.Cmdable, mailer mail.Mailer, collector metrics.MetricsCollector, logger *slog.Logger) *mailWorker {
	return &mailWorker{
		queue:      mail.NewRedisQueue(client, mail.DefaultQueueKey, logger),
		dispatcher: mail.NewDispatcher(mailer, collector, logger, cfg.MailWorkers, cfg.MailBuffer),
		logger:     logger,
	}
}

// run はctxが終了するまでキューを消費し、終了後は取り出し済みのジョブを配信し切る。
func (w *mailWorker) run(ctx context.Context) error {
	w.dispatcher.Start(context.WithoutCancel(ctx))

	consumeErr := w.queue.Consume(ctx, w.dispatcher)

	w.logger.Info("shutting down worker...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := w.dispatcher.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return consumeErr
}
