package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const enrollKeyPrefix = "2fa:pending:"

// enrollmentStore keeps the not-yet-confirmed TOTP secret between
// BeginTOTPEnrollment and ConfirmTOTPEnrollment. Secrets expire on
// their own; an abandoned enrollment leaves no trace.
type enrollmentStore struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

func newEnrollmentStore(redisClient redis.UniversalClient, ttl time.Duration) *enrollmentStore {
	return &enrollmentStore{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Put stores the pending secret, replacing any earlier unconfirmed
// enrollment for the same user.
func (s *enrollmentStore) Put(ctx context.Context, userID, secret string) error {
	return s.redis.Set(ctx, enrollKeyPrefix+userID, secret, s.ttl).Err()
}

// Get returns the pending secret, or ErrNoPendingEnrollment when none
// exists or it already expired.
func (s *enrollmentStore) Get(ctx context.Context, userID string) (string, error) {
	secret, err := s.redis.Get(ctx, enrollKeyPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoPendingEnrollment
		}
		return "", err
	}
	return secret, nil
}

func (s *enrollmentStore) Delete(ctx context.Context, userID string) error {
	return s.redis.Del(ctx, enrollKeyPrefix+userID).Err()
}
