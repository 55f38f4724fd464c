package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/halcyonlabs/authcore/internal"
)

const resetKeyPrefix = "psr:"

// resetStore maps outstanding password-reset grants to user IDs. Only
// a digest of the token is stored, and consumption is a single GETDEL
// so a grant can never be redeemed twice, even by concurrent callers.
type resetStore struct {
	redis redis.UniversalClient
}

func newResetStore(redisClient redis.UniversalClient) *resetStore {
	return &resetStore{redis: redisClient}
}

// Put records a grant for the user. Issuing a new grant does not
// invalidate earlier ones still inside their TTL.
func (s *resetStore) Put(ctx context.Context, token, userID string, ttl time.Duration) error {
	return s.redis.Set(ctx, resetKeyPrefix+internal.HashToken(token), userID, ttl).Err()
}

// Consume atomically redeems a grant, returning the user it was issued
// for. Unknown, expired, and already-consumed tokens all come back as
// ErrNotFound.
func (s *resetStore) Consume(ctx context.Context, token string) (string, error) {
	userID, err := s.redis.GetDel(ctx, resetKeyPrefix+internal.HashToken(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return userID, nil
}
