// Package mail はメール送信と非同期配信を提供する。
// 送信先はResend互換のHTTP APIまたはログ出力で、配信はワーカープールかRedisキューを経由する。
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Message は送信するメール1通を表す。
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Mailer はメール送信のインターフェース。
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// StatusError はメールAPIが2xx以外のステータスを返したことを表す。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mail api returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable は再送で成功し得るエラーかどうかを返す。
// 通信エラー、429、5xxは再送対象、それ以外のステータスは再送しない。
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// LogMailer は送信の代わりに宛先と件名だけをログに出すMailer。
// 本文にはOTPが含まれるため出力しない。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send は宛先と件名をログに記録する。
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "mail delivery skipped (log mailer)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

var _ Mailer = (*LogMailer)(nil)
