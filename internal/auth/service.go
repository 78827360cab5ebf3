// Package auth はOTPによるログイン、トークンの検証と失効を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/todoman/internal/mail"
	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/otp"
	"github.com/hitoshi/todoman/internal/password"
	"github.com/hitoshi/todoman/internal/repository"
	"github.com/hitoshi/todoman/internal/token"
)

// TokenIssuer はアクセストークンの発行と検証のインターフェース。
type TokenIssuer interface {
	Issue(subject token.Subject, ttl time.Duration) (token.Issued, error)
	Parse(tokenString string) (*token.Claims, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	OTPTTL      time.Duration // OTPの有効期間
	TokenTTL    time.Duration // 通常ログインのトークン有効期間
	RememberTTL time.Duration // rememberありのトークン有効期間
}

// LoginResult はOTP検証成功時に返すトークン情報。
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Remember  bool
}

// VerifyOTPInput はOTP検証の入力。
type VerifyOTPInput struct {
	Email    string
	OTP      string
	Remember bool
	ClientIP string
}

// Service はOTPログインに関するビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	otpStore  otp.Store
	hasher    password.Hasher
	mailQueue mail.Enqueuer
	issuer    TokenIssuer
	denylist  token.Denylist
	collector metrics.MetricsCollector
	config    ServiceConfig

	now          func() time.Time
	generateCode func() (string, error)
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	otpStore otp.Store,
	hasher password.Hasher,
	mailQueue mail.Enqueuer,
	issuer TokenIssuer,
	denylist token.Denylist,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:     userRepo,
		otpStore:     otpStore,
		hasher:       hasher,
		mailQueue:    mailQueue,
		issuer:       issuer,
		denylist:     denylist,
		collector:    collector,
		config:       config,
		now:          time.Now,
		generateCode: otp.GenerateCode,
	}
}

// RequestOTP は認証情報を確認し、OTPを発行してメール配信を依頼する。
// 未登録のメールアドレスとパスワード不一致は同一のエラーを返す。
// メール配信の完了は待たず、配信失敗は呼び出し元に返さない。
func (s *Service) RequestOTP(ctx context.Context, email, plainPassword string) (string, error) {
	email = normalizeEmail(email)

	// 1. 認証情報の確認
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		// 登録有無が応答時間に表れないよう、ダミーハッシュで照合する
		s.hasher.VerifyDummy(plainPassword)
		return "", model.NewInvalidCredentialsError()
	}
	if !s.hasher.Verify(plainPassword, user.PasswordHash) {
		return "", model.NewInvalidCredentialsError()
	}

	// 2. OTPを生成して保存（既存のOTPは上書き）
	code, err := s.generateCode()
	if err != nil {
		return "", err
	}
	if err := s.otpStore.Save(ctx, user.Email, code, s.config.OTPTTL); err != nil {
		return "", fmt.Errorf("failed to store otp: %w", err)
	}
	s.collector.RecordOTPRequested()

	// 3. メール配信を依頼（完了は待たない）
	s.enqueueOTPMail(ctx, user, code)

	slog.InfoContext(ctx, "otp issued", slog.String("user_id", user.ID))

	return fmt.Sprintf("OTP sent to your email. It will expire in %d minutes.", mail.Minutes(s.config.OTPTTL)), nil
}

// enqueueOTPMail はOTP通知メールを配信キューに積む。失敗はログとメトリクスに残すのみ。
func (s *Service) enqueueOTPMail(ctx context.Context, user *model.User, code string) {
	msg, err := mail.OTPMessage(user.Email, code, s.config.OTPTTL)
	if err != nil {
		s.collector.RecordMailFailed()
		slog.ErrorContext(ctx, "failed to build otp mail",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	// 期限切れのコードを後から送らないよう、OTPと同じ期限を付ける
	job := mail.Job{Message: msg, ExpiresAt: s.now().Add(s.config.OTPTTL)}
	if err := s.mailQueue.Enqueue(ctx, job); err != nil {
		// キュー満杯はDispatcher側で記録済み
		if !errors.Is(err, mail.ErrQueueFull) {
			s.collector.RecordMailFailed()
		}
		slog.ErrorContext(ctx, "failed to enqueue otp mail",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

// VerifyOTP はOTPを照合し、成功した場合はログイン情報を更新してトークンを発行する。
// OTPは照合と同時に削除されるため、同じコードは1回しか使えない。
func (s *Service) VerifyOTP(ctx context.Context, in VerifyOTPInput) (*LoginResult, error) {
	email := normalizeEmail(in.Email)

	// 1. OTPの照合と消費
	result, err := s.otpStore.Consume(ctx, email, in.OTP)
	if err != nil {
		return nil, fmt.Errorf("failed to consume otp: %w", err)
	}
	s.collector.RecordOTPVerify(result.String())
	if result != otp.ResultOK {
		slog.InfoContext(ctx, "otp verification failed", slog.String("result", result.String()))
		return nil, model.NewInvalidOTPError()
	}

	// 2. ユーザーの取得
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	// 3. ログイン情報の更新
	now := s.now().UTC()
	user.LastLoginAt = &now
	if in.ClientIP != "" {
		ip := in.ClientIP
		user.LastLoginIP = &ip
	}
	ttl := s.config.TokenTTL
	if in.Remember {
		ttl = s.config.RememberTTL
		rememberToken, err := generateRememberToken()
		if err != nil {
			return nil, err
		}
		user.RememberToken = &rememberToken
	}
	user.UpdatedAt = now
	if err := s.userRepo.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save login info: %w", err)
	}

	// 4. トークンの発行
	issued, err := s.issuer.Issue(token.Subject{UserID: user.ID, Email: user.Email, Role: user.Role}, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	s.collector.RecordTokenIssued(in.Remember)

	slog.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.Bool("remember", in.Remember),
	)

	return &LoginResult{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		Remember:  in.Remember,
	}, nil
}

// Authenticate はBearerトークンを検証し、失効していなければクレームを返す。
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*token.Claims, error) {
	claims, err := s.issuer.Parse(tokenString)
	if err != nil {
		return nil, model.NewUnauthenticatedError()
	}

	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		return nil, model.NewUnauthenticatedError()
	}

	return claims, nil
}

// Logout はトークンを失効させる。
func (s *Service) Logout(ctx context.Context, claims *token.Claims) error {
	if claims == nil {
		return model.NewUnauthenticatedError()
	}
	if err := s.denylist.Revoke(ctx, claims); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	slog.InfoContext(ctx, "user logged out", slog.String("user_id", claims.Subject))
	return nil
}

// Me はログイン中のユーザーを返す。
func (s *Service) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// generateRememberToken は40文字の16進文字列を生成する。
func generateRememberToken() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate remember token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// normalizeEmail はメールアドレスの比較用正規化を行う。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
