package authcore

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
)

// verifyCredentials resolves the account and checks the primary
// credential, enforcing the lockout policy. Unknown identities burn a
// hash comparison against the decoy so their latency matches a
// wrong-password rejection.
func (e *Engine) verifyCredentials(ctx context.Context, email, password string) (*Account, error) {
	account, err := e.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_, _ = e.hasher.Verify(password, e.decoyHash)
			e.emitAudit(ctx, auditActionFailedLogin, false, "", ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, internalError(err)
	}

	if account.Locked(e.now().UTC()) {
		e.emitAudit(ctx, auditActionFailedLogin, false, account.ID, ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	ok, err := e.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, internalError(err)
	}
	if !ok {
		e.recordFailure(ctx, account)
		return nil, ErrInvalidCredentials
	}

	// Account-state checks come after the hash comparison so a caller
	// holding only a wrong password learns nothing about the account.
	if !account.Active {
		e.emitAudit(ctx, auditActionFailedLogin, false, account.ID, ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}
	if e.config.Registration.RequireVerifiedEmail && !account.Verified {
		e.emitAudit(ctx, auditActionFailedLogin, false, account.ID, ErrAccountUnverified, nil)
		return nil, ErrAccountUnverified
	}

	return account, nil
}

// recordFailure bumps the atomic failure counter and audits the
// lockout transition exactly once, on the call that caused it.
func (e *Engine) recordFailure(ctx context.Context, account *Account) {
	attempts, locked, err := e.accounts.RecordLoginFailure(
		ctx,
		account.ID,
		e.config.Lockout.MaxFailedAttempts,
		e.config.Lockout.LockoutDuration,
	)
	if err != nil {
		e.logger.Warn("failed-login bookkeeping error",
			slog.String("user_id", account.ID),
			slog.String("error", err.Error()),
		)
		e.emitAudit(ctx, auditActionFailedLogin, false, account.ID, ErrInvalidCredentials, nil)
		return
	}

	e.emitAudit(ctx, auditActionFailedLogin, false, account.ID, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"attempts": strconv.Itoa(attempts)}
	})

	if locked {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditActionLoginLocked, false, account.ID, ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"attempts":       strconv.Itoa(attempts),
				"locked_minutes": strconv.Itoa(int(e.config.Lockout.LockoutDuration.Minutes())),
			}
		})
	}
}
