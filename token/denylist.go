package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const denyKeyPrefix = "rvk:"

var ErrDenylistUnavailable = errors.New("token denylist unavailable")

// Denylist records revoked jtis in Redis. Entries expire with the
// token itself, so the set stays bounded by the refresh TTL.
type Denylist struct {
	redis redis.UniversalClient
}

func NewDenylist(redisClient redis.UniversalClient) *Denylist {
	return &Denylist{redis: redisClient}
}

// Revoke marks a jti revoked until its natural expiry. Revoking an
// already-revoked or expired jti is a no-op.
func (d *Denylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := d.redis.Set(ctx, denyKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDenylistUnavailable, err)
	}
	return nil
}

func (d *Denylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := d.redis.Get(ctx, denyKeyPrefix+jti).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrDenylistUnavailable, err)
	}
	return true, nil
}
