package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultResendBaseURL はResend APIのベースURL。
const DefaultResendBaseURL = "https://api.resend.com"

// maxErrorBody はエラー時にログへ残すレスポンスボディの上限バイト数。
const maxErrorBody = 512

// ResendMailer はResend互換のHTTP APIでメールを送信する。
type ResendMailer struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	from       string
	baseURL    string
}

// NewResendMailer はResendMailerを生成する。baseURLが空の場合はDefaultResendBaseURLを使う。
func NewResendMailer(httpClient *http.Client, logger *slog.Logger, apiKey, from, baseURL string) *ResendMailer {
	if baseURL == "" {
		baseURL = DefaultResendBaseURL
	}
	return &ResendMailer{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		from:       from,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send はメールを1通送信する。2xx以外のステータスは*StatusErrorを返す。
func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	// リクエストボディ構築
	body, err := json.Marshal(sendRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("failed to encode mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	// HTTPリクエスト実行
	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Error("mail api request failed",
			slog.String("error", err.Error()),
			slog.String("to", msg.To),
		)
		return fmt.Errorf("mail api request failed: %w", err)
	}
	defer resp.Body.Close()

	// HTTPステータスチェック
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		m.logger.Error("mail api returned error status",
			slog.Int("http_status", resp.StatusCode),
			slog.String("to", msg.To),
		)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

var _ Mailer = (*ResendMailer)(nil)
