package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/todoman/internal/metrics"
)

const (
	// maxSendAttempts は1ジョブあたりの最大送信試行回数。
	maxSendAttempts = 3
	// initialRetryDelay は再送の初回待機時間。以降2倍ずつ増加する。
	initialRetryDelay = 200 * time.Millisecond
	// sendTimeout は1回の送信試行のタイムアウト。
	sendTimeout = 10 * time.Second
)

var (
	// ErrQueueFull は配信キューが満杯でジョブを受け付けられないことを表す。
	ErrQueueFull = errors.New("mail queue is full")
	// ErrDispatcherClosed は停止済みのDispatcherへの投入を表す。
	ErrDispatcherClosed = errors.New("mail dispatcher is closed")
)

// Job は非同期配信するメール1通。
type Job struct {
	Message Message `json:"message"`
	// ExpiresAt を過ぎたジョブは配信しない。ゼロ値は期限なし。
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired はnow時点でジョブが期限切れかどうかを返す。
func (j Job) Expired(now time.Time) bool {
	return !j.ExpiresAt.IsZero() && !now.Before(j.ExpiresAt)
}

// Enqueuer はメール配信ジョブの投入インターフェース。
// 呼び出し元は配信完了を待たない。
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Dispatcher はバッファ付きチャネルと固定数のワーカーでメールを配信する。
type Dispatcher struct {
	mailer    Mailer
	collector metrics.MetricsCollector
	logger    *slog.Logger
	workers   int

	jobs chan Job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	retryDelay time.Duration
}

// NewDispatcher はDispatcherを生成する。workersとbufferは1未満の場合1に補正する。
func NewDispatcher(mailer Mailer, collector metrics.MetricsCollector, logger *slog.Logger, workers, buffer int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	return &Dispatcher{
		mailer:     mailer,
		collector:  collector,
		logger:     logger,
		workers:    workers,
		jobs:       make(chan Job, buffer),
		retryDelay: initialRetryDelay,
	}
}

// Start はワーカーを起動する。ctxのキャンセルは再送待機の中断に使う。
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("mail dispatcher started",
		slog.Int("workers", d.workers),
		slog.Int("buffer", cap(d.jobs)),
	)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for job := range d.jobs {
				d.deliver(ctx, job)
			}
		}()
	}
}

// Enqueue はジョブをキューに投入する。ブロックせず、満杯の場合はジョブを破棄してErrQueueFullを返す。
func (d *Dispatcher) Enqueue(ctx context.Context, job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.jobs <- job:
		return nil
	default:
		d.collector.RecordMailFailed()
		d.logger.ErrorContext(ctx, "mail queue is full, job dropped",
			slog.String("to", job.Message.To),
			slog.String("subject", job.Message.Subject),
		)
		return ErrQueueFull
	}
}

// Submit はジョブをキューに投入する。空きが出るかctxが終了するまで待つ。
// Redisキューから取り出したジョブの受け渡しに使う。
func (d *Dispatcher) Submit(ctx context.Context, job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown は新規投入を止め、キューに残ったジョブの配信完了を待つ。
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("mail dispatcher stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mail dispatcher shutdown: %w", ctx.Err())
	}
}

// deliver は1ジョブを最大maxSendAttempts回まで指数バックオフで送信する。
func (d *Dispatcher) deliver(ctx context.Context, job Job) {
	delay := d.retryDelay

	for attempt := 1; ; attempt++ {
		err := d.sendOnce(ctx, job)
		if err == nil {
			d.collector.RecordMailSent()
			return
		}

		if attempt >= maxSendAttempts || !Retryable(err) {
			d.collector.RecordMailFailed()
			d.logger.Error("mail delivery failed",
				slog.String("to", job.Message.To),
				slog.String("subject", job.Message.Subject),
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()),
			)
			return
		}

		d.logger.Warn("mail delivery failed, retrying",
			slog.String("to", job.Message.To),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			d.collector.RecordMailFailed()
			return
		}
		delay *= 2
	}
}

func (d *Dispatcher) sendOnce(ctx context.Context, job Job) error {
	// 停止処理中も残りのジョブを送り切るため、送信自体は呼び出し元のキャンセルから切り離す
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	return d.mailer.Send(sendCtx, job.Message)
}

var _ Enqueuer = (*Dispatcher)(nil)
