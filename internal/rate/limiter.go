package rate

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "rl:"
	// maxTxRetries bounds optimistic-lock retries under contention.
	maxTxRetries = 5
)

// Rule bounds one endpoint: MaxRequests admitted per Window.
type Rule struct {
	MaxRequests int
	Window      time.Duration
}

// Result reports the outcome of an admission check.
type Result struct {
	// Remaining is the attempt budget left after this check.
	Remaining int
	// RetryAfter is zero when admitted, otherwise the wait until the
	// oldest in-window attempt ages out.
	RetryAfter time.Duration
}

// Limiter enforces per-(endpoint, IP) sliding windows over Redis.
type Limiter struct {
	redis redis.UniversalClient
	now   func() time.Time
}

func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{
		redis: redisClient,
		now:   time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow admits or rejects one attempt. Admitted attempts are recorded;
// rejected attempts are not, so hammering a closed window does not
// extend it.
func (l *Limiter) Allow(ctx context.Context, endpoint, ip string, rule Rule) (Result, error) {
	if rule.MaxRequests <= 0 || rule.Window <= 0 {
		return Result{Remaining: 1}, nil
	}

	key := keyPrefix + endpoint + ":" + ip

	var res Result
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		now := l.now()
		cutoff := now.Add(-rule.Window)
		stamps := pruneStamps(decodeStamps(raw), cutoff)

		if len(stamps) >= rule.MaxRequests {
			oldest := time.Unix(0, stamps[0])
			res = Result{
				Remaining:  0,
				RetryAfter: oldest.Add(rule.Window).Sub(now),
			}
			return ErrRateLimited
		}

		stamps = append(stamps, now.UnixNano())
		res = Result{Remaining: rule.MaxRequests - len(stamps)}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encodeStamps(stamps), rule.Window)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := l.redis.Watch(ctx, txn, key)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, ErrRateLimited):
			return res, ErrRateLimited
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return Result{}, fmt.Errorf("%w: transaction contention on %s", ErrRedisUnavailable, key)
}

// Reset clears the window for one (endpoint, IP) pair.
func (l *Limiter) Reset(ctx context.Context, endpoint, ip string) error {
	if err := l.redis.Del(ctx, keyPrefix+endpoint+":"+ip).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Timestamps are little-endian int64 UnixNanos, stored oldest first.

func encodeStamps(stamps []int64) []byte {
	out := make([]byte, 8*len(stamps))
	for i, s := range stamps {
		binary.LittleEndian.PutUint64(out[8*i:], uint64(s))
	}
	return out
}

func decodeStamps(raw []byte) []int64 {
	n := len(raw) / 8
	stamps := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		stamps = append(stamps, int64(binary.LittleEndian.Uint64(raw[8*i:])))
	}
	return stamps
}

func pruneStamps(stamps []int64, cutoff time.Time) []int64 {
	limit := cutoff.UnixNano()
	kept := stamps[:0]
	for _, s := range stamps {
		if s > limit {
			kept = append(kept, s)
		}
	}
	return kept
}
