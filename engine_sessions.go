package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Sessions lists the user's active sessions, most recent activity
// first.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	sessions, err := e.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, internalError(err)
	}
	return sessions, nil
}

// TerminateSession deactivates one session. ErrNotFound means no
// active session matched; already-terminated keys are not an error a
// second teardown can distinguish.
func (e *Engine) TerminateSession(ctx context.Context, userID, key string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.Terminate(ctx, userID, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return internalError(err)
	}

	e.metricInc(MetricSessionTerminated)
	e.emitAudit(ctx, auditActionSessionTerminated, true, userID, nil, func() map[string]string {
		return map[string]string{"session_key": key}
	})
	return nil
}

// TerminateAllSessions deactivates every active session for the user,
// optionally sparing exceptKey (the caller's own session), and returns
// how many were terminated.
func (e *Engine) TerminateAllSessions(ctx context.Context, userID, exceptKey string) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	count, err := e.sessions.TerminateAll(ctx, userID, exceptKey)
	if err != nil {
		return 0, internalError(err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditActionLogoutAll, true, userID, nil, func() map[string]string {
		return map[string]string{"terminated": strconv.FormatInt(count, 10)}
	})
	return count, nil
}

// TouchSession stamps activity on an active session. Inactive or
// unknown keys return ErrNotFound.
func (e *Engine) TouchSession(ctx context.Context, key string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.Touch(ctx, key, e.now().UTC()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return internalError(err)
	}
	return nil
}

// RecentSecurityEvents reads back the audit trail. It requires an
// audit store to have been configured at build time.
func (e *Engine) RecentSecurityEvents(ctx context.Context, since time.Time, limit int) ([]AuditEvent, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.auditStore == nil {
		return nil, ErrEngineNotReady
	}
	events, err := e.auditStore.RecentSecurityEvents(ctx, since, limit)
	if err != nil {
		return nil, internalError(err)
	}
	return events, nil
}
