// Package otp はワンタイムパスワードの生成と一時保存を提供する。
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix はOTPレコードのキー接頭辞。キーは "otp:" + email。
const keyPrefix = "otp:"

// ConsumeResult はOTP照合の結果を表す。
type ConsumeResult int

const (
	// ResultMissing はレコードが存在しない（未発行・期限切れ・消費済み）。
	ResultMissing ConsumeResult = iota
	// ResultOK はコードが一致し、レコードを削除した。
	ResultOK
	// ResultMismatch はコードが一致せず、試行回数を加算した。
	ResultMismatch
	// ResultLocked は試行回数の上限に達し、レコードを削除した。
	ResultLocked
)

// String はメトリクスのラベル値として使う名前を返す。
func (r ConsumeResult) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultMismatch:
		return "mismatch"
	case ResultLocked:
		return "locked"
	default:
		return "missing"
	}
}

// Store はOTPレコードの保存と照合のインターフェース。
type Store interface {
	// Save はemailに対するOTPをTTL付きで保存する。既存レコードは上書きし試行回数もリセットする。
	Save(ctx context.Context, email, code string, ttl time.Duration) error

	// Consume はコードを照合する。一致した場合はレコードを削除する。
	// 同一コードでの並行呼び出しのうちResultOKを受け取るのは1つだけ。
	Consume(ctx context.Context, email, code string) (ConsumeResult, error)
}

// consumeScript は照合・削除・試行回数の加算を1回のスクリプト実行で行う。
// ARGV[2]が0以下の場合は試行回数の上限を設けない。
var consumeScript = redis.NewScript(`
local code = redis.call('HGET', KEYS[1], 'code')
if not code then
  return 0
end
if code == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
local max = tonumber(ARGV[2])
if max > 0 and attempts >= max then
  redis.call('DEL', KEYS[1])
  return 3
end
return 2
`)

// RedisStore はRedisハッシュ {code, attempts} を使ったStore実装。
// 有効期限はキーのTTLで管理し、期限切れの掃除処理は持たない。
type RedisStore struct {
	client      redis.Cmdable
	maxAttempts int
}

// NewRedisStore はRedisStoreを生成する。maxAttemptsが0の場合は試行回数無制限。
func NewRedisStore(client redis.Cmdable, maxAttempts int) *RedisStore {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &RedisStore{client: client, maxAttempts: maxAttempts}
}

// Save はemailに対するOTPをTTL付きで保存する。
func (s *RedisStore) Save(ctx context.Context, email, code string, ttl time.Duration) error {
	key := Key(email)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "code", code, "attempts", 0)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save otp: %w", err)
	}
	return nil
}

// Consume はコードを照合し、結果に応じてレコードを削除または試行回数を加算する。
func (s *RedisStore) Consume(ctx context.Context, email, code string) (ConsumeResult, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{Key(email)}, code, s.maxAttempts).Int()
	if err != nil {
		return ResultMissing, fmt.Errorf("failed to consume otp: %w", err)
	}

	switch ConsumeResult(n) {
	case ResultOK, ResultMismatch, ResultLocked:
		return ConsumeResult(n), nil
	default:
		return ResultMissing, nil
	}
}

// Key はemailに対応するRedisキーを返す。
func Key(email string) string {
	return keyPrefix + email
}

// GenerateCode は[100000, 999999]の一様乱数による6桁のコードを生成する。
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

var _ Store = (*RedisStore)(nil)
