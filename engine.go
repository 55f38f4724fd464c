package authcore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/halcyonlabs/authcore/internal/rate"
	"github.com/halcyonlabs/authcore/token"
)

// Engine is the embeddable account-security core. Construct it with
// [New]; all fields are wired once at Build time and never mutated.
type Engine struct {
	config Config
	logger *slog.Logger

	accounts    AccountStore
	sessions    SessionStore
	backupCodes BackupCodeStore
	auditStore  AuditStore
	notifier    Notifier
	hasher      Hasher

	tokens   *token.Manager
	denylist *token.Denylist
	limiter  *rate.Limiter
	enroll   *enrollmentStore
	resets   *resetStore
	totp     *totpManager

	audit   *auditDispatcher
	metrics *Metrics

	// decoyHash is verified against when the identity is unknown, so a
	// probe cannot distinguish "no such account" from "wrong password"
	// by timing.
	decoyHash string

	now func() time.Time
}

// Close drains the audit pipeline. The engine must not be used after
// Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because
// the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// VerifyToken checks signature, expiry, and revocation, in that order.
// The denylist is consulted last so a Redis round-trip is only paid
// for tokens that are otherwise valid.
func (e *Engine) VerifyToken(ctx context.Context, tokenStr string) (*token.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		switch {
		case errors.Is(err, token.ErrExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenMalformed
		}
	}

	revoked, err := e.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, internalError(err)
	}
	if revoked {
		e.metricInc(MetricTokenRejected)
		return nil, ErrTokenRevoked
	}

	e.metricInc(MetricTokenVerified)
	return claims, nil
}

// checkRate admits or rejects one attempt at a limited endpoint. A
// backend outage fails closed: a limiter that cannot count cannot
// safely admit.
func (e *Engine) checkRate(ctx context.Context, endpoint Endpoint) error {
	if !e.config.RateLimit.Enabled || e.limiter == nil {
		return nil
	}
	rule, ok := e.config.RateLimit.Rules[endpoint]
	if !ok {
		return nil
	}

	ip := clientIPFromContext(ctx)
	if ip == "" {
		ip = "-"
	}

	res, err := e.limiter.Allow(ctx, string(endpoint), ip, rate.Rule{
		MaxRequests: rule.MaxRequests,
		Window:      rule.Window,
	})
	if err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emitRateLimit(ctx, endpoint, nil)
			return &RateLimitError{RetryAfter: res.RetryAfter}
		}
		return internalError(err)
	}
	return nil
}

// notifyAsync delivers one notification without blocking or failing
// the caller. Panics in Notifier implementations are contained here.
func (e *Engine) notifyAsync(name string, send func(ctx context.Context) error) {
	if e == nil || e.notifier == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("notifier panic",
					slog.String("notification", name),
					slog.Any("panic", r),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := send(ctx); err != nil {
			e.logger.Warn("notification failed",
				slog.String("notification", name),
				slog.String("error", err.Error()),
			)
		}
	}()
}
