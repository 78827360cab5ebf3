package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// minJWTSecretLength はHS256署名鍵として受け付ける最小バイト長。
const minJWTSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis（OTPストア、トークン失効リスト、メールキュー）
	RedisURL string

	// JWT
	JWTSecret      string
	JWTTTL         time.Duration
	JWTRememberTTL time.Duration
	JWTIssuer      string

	// OTP
	OTPTTL         time.Duration
	OTPMaxAttempts int

	// Mail
	MailFrom       string
	ResendAPIKey   string
	MailAPIBaseURL string
	MailQueue      string
	MailWorkers    int
	MailBuffer     int

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitOTP     int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// TrustedProxies はX-Forwarded-For / X-Real-IPを信頼する接続元。空の場合は転送ヘッダーを無視する。
	TrustedProxies []netip.Prefix

	// Logging
	LogLevel string
}

// メール配送方式。
const (
	MailQueueInline = "inline"
	MailQueueRedis  = "redis"
)

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envが存在する場合は先に読み込むが、既存の環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envが無いのは通常の本番構成なのでエラーにしない
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.JWTSecret) < minJWTSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}

	// Optional fields with defaults
	cfg.JWTTTL = getEnvDuration("JWT_TTL", time.Hour)
	cfg.JWTRememberTTL = getEnvDuration("JWT_REMEMBER_TTL", 7*24*time.Hour)
	cfg.JWTIssuer = getEnvString("JWT_ISSUER", "todoman")
	cfg.OTPTTL = getEnvDuration("OTP_TTL", 5*time.Minute)
	cfg.OTPMaxAttempts = getEnvInt("OTP_MAX_ATTEMPTS", 5)
	cfg.MailFrom = getEnvString("MAIL_FROM", "no-reply@todoman.local")
	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.MailAPIBaseURL = strings.TrimRight(getEnvString("MAIL_API_BASE_URL", "https://api.resend.com"), "/")
	cfg.MailQueue = strings.ToLower(getEnvString("MAIL_QUEUE", MailQueueInline))
	cfg.MailWorkers = getEnvInt("MAIL_WORKERS", 4)
	cfg.MailBuffer = getEnvInt("MAIL_BUFFER", 256)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitOTP = getEnvInt("RATE_LIMIT_OTP", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	trusted, err := parsePrefixList(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = trusted

	if cfg.MailQueue != MailQueueInline && cfg.MailQueue != MailQueueRedis {
		return nil, fmt.Errorf("MAIL_QUEUE must be %q or %q, got %q", MailQueueInline, MailQueueRedis, cfg.MailQueue)
	}
	if cfg.OTPMaxAttempts < 0 {
		cfg.OTPMaxAttempts = 0
	}
	if cfg.MailWorkers < 1 {
		cfg.MailWorkers = 1
	}

	return cfg, nil
}

// parsePrefixList はカンマ区切りのCIDRまたは単一IPを解析する。
func parsePrefixList(raw string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
