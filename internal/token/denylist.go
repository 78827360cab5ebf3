package token

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// revokedKeyPrefix は失効済みjtiのキー接頭辞。
const revokedKeyPrefix = "token:revoked:"

// Denylist は失効済みトークンの管理インターフェース。
type Denylist interface {
	Revoke(ctx context.Context, claims *Claims) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisDenylist はjtiをトークンの残り有効期間だけRedisに保持する。
type RedisDenylist struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisDenylist はRedisDenylistを生成する。
func NewRedisDenylist(client redis.Cmdable) *RedisDenylist {
	return &RedisDenylist{client: client, now: time.Now}
}

// Revoke はトークンを失効させる。期限切れのトークンは何もしない。
func (d *RedisDenylist) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return fmt.Errorf("%w: missing jti or exp", ErrInvalidToken)
	}

	ttl := claims.ExpiresAt.Time.Sub(d.now())
	if ttl <= 0 {
		return nil
	}

	if err := d.client.Set(ctx, revokedKeyPrefix+claims.ID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked はjtiが失効済みかどうかを返す。
func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revoked token: %w", err)
	}
	return n > 0, nil
}

var _ Denylist = (*RedisDenylist)(nil)
