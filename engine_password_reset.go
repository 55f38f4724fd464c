package authcore

import (
	"context"
	"errors"

	"github.com/halcyonlabs/authcore/internal"
)

// RequestPasswordReset issues a single-use grant for the account and
// hands the token to the notifier. Unknown emails return ErrNotFound:
// the reset surface deliberately discloses account existence, unlike
// login.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	if err := e.checkRate(ctx, EndpointPasswordResetRequest); err != nil {
		return "", err
	}

	account, err := e.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.emitAudit(ctx, auditActionPasswordResetRequest, false, "", ErrNotFound, nil)
			return "", ErrNotFound
		}
		return "", internalError(err)
	}

	grant := internal.NewOpaqueToken()
	if err := e.resets.Put(ctx, grant, account.ID, e.config.PasswordReset.GrantTTL); err != nil {
		return "", internalError(err)
	}

	e.notifyAsync("password_reset", func(ctx context.Context) error {
		return e.notifier.NotifyPasswordReset(ctx, account.Email, grant)
	})

	e.metricInc(MetricPasswordResetRequested)
	e.emitAudit(ctx, auditActionPasswordResetRequest, true, account.ID, nil, nil)
	return grant, nil
}

// ConfirmPasswordReset redeems a grant and installs the new password.
// The grant is consumed atomically, so of two concurrent confirmations
// with the same token exactly one succeeds; the loser sees ErrNotFound.
// All sessions are terminated because the old credential may be
// compromised.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, grant, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.checkRate(ctx, EndpointPasswordResetConfirm); err != nil {
		return err
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	userID, err := e.resets.Consume(ctx, grant)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metricInc(MetricPasswordResetReplayed)
			e.emitAudit(ctx, auditActionPasswordResetReplay, false, "", ErrNotFound, nil)
			return ErrNotFound
		}
		return internalError(err)
	}

	account, err := e.accounts.GetByID(ctx, userID)
	if err != nil {
		return internalError(err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return internalError(err)
	}
	if err := e.accounts.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return internalError(err)
	}
	if err := e.accounts.ClearLockout(ctx, userID); err != nil {
		return internalError(err)
	}
	if _, err := e.sessions.TerminateAll(ctx, userID, ""); err != nil {
		return internalError(err)
	}

	e.notifyAsync("password_changed", func(ctx context.Context) error {
		return e.notifier.NotifyPasswordChanged(ctx, account.Email)
	})

	e.metricInc(MetricPasswordResetCompleted)
	e.emitAudit(ctx, auditActionPasswordResetComplete, true, userID, nil, nil)
	return nil
}
