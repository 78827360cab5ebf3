package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey はメールジョブを積むRedisリストのキー。
const DefaultQueueKey = "mail:queue"

// defaultPopTimeout はBRPOPの待機時間。ctxの終了を確認する間隔を兼ねる。
const defaultPopTimeout = 5 * time.Second

// RedisQueue はRedisリストを使ったEnqueuer実装。
// APIプロセスがLPUSHし、workerプロセスがBRPOPで取り出す。
type RedisQueue struct {
	client     redis.Cmdable
	key        string
	logger     *slog.Logger
	popTimeout time.Duration
	now        func() time.Time
}

// NewRedisQueue はRedisQueueを生成する。keyが空の場合はDefaultQueueKeyを使う。
func NewRedisQueue(client redis.Cmdable, key string, logger *slog.Logger) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key, logger: logger, popTimeout: defaultPopTimeout, now: time.Now}
}

// Enqueue はジョブをJSONにしてリストへ積む。
// 期限付きのジョブはリスト自体の有効期限もその時刻に合わせ、配信されないまま残り続けないようにする。
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.Expired(q.now()) {
		// 過去時刻のEXPIREATはリストごと消してしまうため積まない
		q.logger.Warn("dropping expired mail job", slog.String("to", job.Message.To))
		return nil
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode mail job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, q.key, payload)
		if job.ExpiresAt.IsZero() {
			pipe.Persist(ctx, q.key)
		} else {
			pipe.ExpireAt(ctx, q.key, job.ExpiresAt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push mail job: %w", err)
	}
	return nil
}

// Consume はctxが終了するまでジョブを取り出し、Dispatcherへ渡す。
// デコードできないジョブはログに残して捨てる。
func (q *RedisQueue) Consume(ctx context.Context, d *Dispatcher) error {
	q.logger.Info("mail queue consumer started", slog.String("queue", q.key))

	for {
		if ctx.Err() != nil {
			q.logger.Info("mail queue consumer stopped")
			return nil
		}

		job, ok, err := q.pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			q.logger.Error("failed to pop mail job", slog.String("error", err.Error()))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}
		if !ok {
			continue
		}
		if job.Expired(q.now()) {
			q.logger.Warn("discarding expired mail job",
				slog.String("to", job.Message.To),
				slog.Time("expires_at", job.ExpiresAt),
			)
			continue
		}

		if err := d.Submit(ctx, job); err != nil {
			// 取り出し済みのジョブは失わないよう戻す
			if pushErr := q.Enqueue(context.WithoutCancel(ctx), job); pushErr != nil {
				q.logger.Error("failed to requeue mail job",
					slog.String("to", job.Message.To),
					slog.String("error", pushErr.Error()),
				)
			}
			if errors.Is(err, ErrDispatcherClosed) {
				return err
			}
		}
	}
}

// pop はジョブを1件取り出す。タイムアウトした場合はokがfalseになる。
func (q *RedisQueue) pop(ctx context.Context) (Job, bool, error) {
	res, err := q.client.BRPop(ctx, q.popTimeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}

	// BRPOPの結果は [key, value]
	if len(res) != 2 {
		return Job{}, false, fmt.Errorf("unexpected BRPOP reply length %d", len(res))
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		q.logger.Error("discarding undecodable mail job", slog.String("error", err.Error()))
		return Job{}, false, nil
	}
	return job, true, nil
}

var _ Enqueuer = (*RedisQueue)(nil)
