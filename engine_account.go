package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/halcyonlabs/authcore/internal"
)

const temporaryPasswordLength = 12

// Register creates an account and kicks off email verification. Unlike
// login, registration discloses whether an email is taken; the
// uniqueness error is the product surface here.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.checkRate(ctx, EndpointRegister); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, internalError(err)
	}

	now := e.now().UTC()
	account := &Account{
		ID:                 internal.NewOpaqueToken(),
		Email:              email,
		Username:           strings.TrimSpace(req.Username),
		PasswordHash:       hash,
		Role:               e.config.Registration.DefaultRole,
		Active:             true,
		VerificationToken:  internal.NewOpaqueToken(),
		VerificationSentAt: now,
		CreatedAt:          now,
	}

	if err := e.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditActionRegister, false, "", ErrEmailTaken, nil)
			return nil, ErrEmailTaken
		}
		return nil, internalError(err)
	}

	e.notifyAsync("verification", func(ctx context.Context) error {
		return e.notifier.NotifyVerification(ctx, account.Email, account.VerificationToken)
	})

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditActionRegister, true, account.ID, nil, nil)
	return account, nil
}

// VerifyEmail redeems a verification token inside its validity window.
func (e *Engine) VerifyEmail(ctx context.Context, verificationToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	account, err := e.accounts.GetByVerificationToken(ctx, verificationToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return internalError(err)
	}

	if e.now().UTC().Sub(account.VerificationSentAt) > e.config.Registration.VerificationTTL {
		return ErrNotFound
	}

	if err := e.accounts.SetVerified(ctx, account.ID, true); err != nil {
		return internalError(err)
	}

	e.notifyAsync("welcome", func(ctx context.Context) error {
		return e.notifier.NotifyWelcome(ctx, account.Email)
	})

	e.metricInc(MetricEmailVerified)
	e.emitAudit(ctx, auditActionEmailVerified, true, account.ID, nil, nil)
	return nil
}

// ResendVerification rotates the verification token and re-sends it.
// Already-verified accounts are a silent no-op.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	account, err := e.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return internalError(err)
	}
	if account.Verified {
		return nil
	}

	verificationToken := internal.NewOpaqueToken()
	if err := e.accounts.SetVerificationToken(ctx, account.ID, verificationToken, e.now().UTC()); err != nil {
		return internalError(err)
	}

	e.notifyAsync("verification", func(ctx context.Context) error {
		return e.notifier.NotifyVerification(ctx, account.Email, verificationToken)
	})

	e.emitAudit(ctx, auditActionVerificationResent, true, account.ID, nil, nil)
	return nil
}

// ChangePassword installs a new password after a fresh proof of the
// old one. Other sessions are terminated; exceptSessionKey keeps the
// caller's own session alive.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword, exceptSessionKey string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	account, err := e.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return internalError(err)
	}

	ok, err := e.hasher.Verify(oldPassword, account.PasswordHash)
	if err != nil {
		return internalError(err)
	}
	if !ok {
		e.emitAudit(ctx, auditActionPasswordChange, false, userID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	same, err := e.hasher.Verify(newPassword, account.PasswordHash)
	if err != nil {
		return internalError(err)
	}
	if same {
		e.emitAudit(ctx, auditActionPasswordChange, false, userID, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return internalError(err)
	}
	if err := e.accounts.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return internalError(err)
	}
	if _, err := e.sessions.TerminateAll(ctx, userID, exceptSessionKey); err != nil {
		return internalError(err)
	}

	e.notifyAsync("password_changed", func(ctx context.Context) error {
		return e.notifier.NotifyPasswordChanged(ctx, account.Email)
	})

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, auditActionPasswordChange, true, userID, nil, nil)
	return nil
}

// SetRole changes the account role. The acting administrator is taken
// from the context (WithActor) and lands in the audit record.
func (e *Engine) SetRole(ctx context.Context, userID, role string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	account, err := e.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return internalError(err)
	}
	oldRole := account.Role

	if err := e.accounts.SetRole(ctx, userID, role); err != nil {
		return internalError(err)
	}

	e.notifyAsync("role_changed", func(ctx context.Context) error {
		return e.notifier.NotifyRoleChanged(ctx, account.Email, role)
	})

	e.emitAudit(ctx, auditActionAdminRoleChange, true, userID, nil, func() map[string]string {
		return map[string]string{"old_role": oldRole, "new_role": role}
	})
	return nil
}

// SetAccountActive soft-activates or soft-deactivates an account.
// Deactivation also terminates every session.
func (e *Engine) SetAccountActive(ctx context.Context, userID string, active bool) error {
	if e == nil {
		return ErrEngineNotReady
	}

	account, err := e.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return internalError(err)
	}

	if err := e.accounts.SetActive(ctx, userID, active); err != nil {
		return internalError(err)
	}
	if !active {
		if _, err := e.sessions.TerminateAll(ctx, userID, ""); err != nil {
			return internalError(err)
		}
	}

	e.notifyAsync("account_status", func(ctx context.Context) error {
		return e.notifier.NotifyAccountStatusChanged(ctx, account.Email, active)
	})

	e.emitAudit(ctx, auditActionAdminStatusChange, true, userID, nil, func() map[string]string {
		if active {
			return map[string]string{"status": "active"}
		}
		return map[string]string{"status": "inactive"}
	})
	return nil
}

// ResetFailedAttempts clears the lockout state ahead of its expiry.
func (e *Engine) ResetFailedAttempts(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.accounts.ClearLockout(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return internalError(err)
	}

	e.emitAudit(ctx, auditActionAdminUnlock, true, userID, nil, nil)
	return nil
}

// SetTemporaryPassword replaces the credential with a random one-off
// password, unlocks the account, and terminates every session. The
// plaintext goes to the notifier and is returned once to the caller.
func (e *Engine) SetTemporaryPassword(ctx context.Context, userID string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	account, err := e.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", internalError(err)
	}

	temp, err := internal.NewBackupCode(temporaryPasswordLength)
	if err != nil {
		return "", internalError(err)
	}
	hash, err := e.hasher.Hash(temp)
	if err != nil {
		return "", internalError(err)
	}

	if err := e.accounts.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return "", internalError(err)
	}
	if err := e.accounts.ClearLockout(ctx, userID); err != nil {
		return "", internalError(err)
	}
	if _, err := e.sessions.TerminateAll(ctx, userID, ""); err != nil {
		return "", internalError(err)
	}

	e.notifyAsync("temporary_password", func(ctx context.Context) error {
		return e.notifier.NotifyTemporaryPassword(ctx, account.Email, temp)
	})

	e.emitAudit(ctx, auditActionAdminPasswordReset, true, userID, nil, nil)
	return temp, nil
}

// AccountStats returns the dashboard projection over the account store.
func (e *Engine) AccountStats(ctx context.Context) (AccountStats, error) {
	if e == nil {
		return AccountStats{}, ErrEngineNotReady
	}
	stats, err := e.accounts.Stats(ctx)
	if err != nil {
		return AccountStats{}, internalError(err)
	}
	return stats, nil
}

func (e *Engine) checkPasswordPolicy(password string) error {
	if len(password) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
