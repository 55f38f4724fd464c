package authcore

import (
	"context"
	"errors"

	"github.com/halcyonlabs/authcore/internal"
)

// BeginTOTPEnrollment generates a fresh secret and parks it in the
// TTL store. Nothing on the account changes until the code round-trip
// in ConfirmTOTPEnrollment proves the authenticator holds the secret.
func (e *Engine) BeginTOTPEnrollment(ctx context.Context, userID string) (*TOTPEnrollment, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internalError(err)
	}
	if account.TwoFactorEnabled() {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	secret, uri, err := e.totp.GenerateSecret(account.Email)
	if err != nil {
		return nil, internalError(err)
	}
	if err := e.enroll.Put(ctx, userID, secret); err != nil {
		return nil, internalError(err)
	}

	e.emitAudit(ctx, auditActionTwoFactorSetup, true, userID, nil, nil)
	return &TOTPEnrollment{
		Secret:          secret,
		ProvisioningURI: uri,
	}, nil
}

// ConfirmTOTPEnrollment validates the first code against the pending
// secret, commits the secret to the account, and returns the one and
// only plaintext copy of the backup codes.
func (e *Engine) ConfirmTOTPEnrollment(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internalError(err)
	}
	if account.TwoFactorEnabled() {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	secret, err := e.enroll.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoPendingEnrollment) {
			return nil, ErrNoPendingEnrollment
		}
		return nil, internalError(err)
	}

	if !e.totp.Validate(code, secret) {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditActionTwoFactorFailure, false, userID, ErrInvalidTwoFactorCode, nil)
		return nil, ErrInvalidTwoFactorCode
	}

	codes, hashes, err := e.newBackupCodeBatch(userID)
	if err != nil {
		return nil, internalError(err)
	}

	if err := e.accounts.SetTOTPSecret(ctx, userID, secret); err != nil {
		return nil, internalError(err)
	}
	if err := e.backupCodes.Replace(ctx, userID, hashes); err != nil {
		return nil, internalError(err)
	}
	if err := e.enroll.Delete(ctx, userID); err != nil {
		e.logger.Warn("pending enrollment cleanup failed", "user_id", userID, "error", err.Error())
	}

	e.notifyAsync("two_factor_enabled", func(ctx context.Context) error {
		return e.notifier.NotifyTwoFactorChanged(ctx, account.Email, true)
	})

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditActionTwoFactorEnable, true, userID, nil, nil)
	return codes, nil
}

// verifySecondFactor checks the presented second factor during login.
// A backup code takes precedence over a TOTP code when both are given.
func (e *Engine) verifySecondFactor(ctx context.Context, account *Account, totpCode, backupCode string) error {
	if backupCode != "" {
		consumed, err := e.backupCodes.Consume(ctx, account.ID, internal.HashBackupCode(account.ID, backupCode))
		if err != nil {
			return internalError(err)
		}
		if !consumed {
			e.metricInc(MetricBackupCodeFailed)
			e.emitAudit(ctx, auditActionTwoFactorFailure, false, account.ID, ErrInvalidTwoFactorCode, func() map[string]string {
				return map[string]string{"factor": "backup_code"}
			})
			return ErrInvalidTwoFactorCode
		}

		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, auditActionBackupCodeUsed, true, account.ID, nil, nil)
		return nil
	}

	if !e.totp.Validate(totpCode, account.TOTPSecret) {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditActionTwoFactorFailure, false, account.ID, ErrInvalidTwoFactorCode, func() map[string]string {
			return map[string]string{"factor": "totp"}
		})
		return ErrInvalidTwoFactorCode
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditActionTwoFactorSuccess, true, account.ID, nil, nil)
	return nil
}

// DisableTwoFactor turns the feature off after a fresh proof of the
// primary credential. All backup codes die with the secret.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, password string) error {
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
	if !account.TwoFactorEnabled() {
		return ErrTwoFactorNotEnabled
	}

	ok, err := e.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return internalError(err)
	}
	if !ok {
		e.emitAudit(ctx, auditActionTwoFactorDisable, false, userID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.accounts.SetTOTPSecret(ctx, userID, ""); err != nil {
		return internalError(err)
	}
	if err := e.backupCodes.DeleteAll(ctx, userID); err != nil {
		return internalError(err)
	}
	if err := e.enroll.Delete(ctx, userID); err != nil {
		e.logger.Warn("pending enrollment cleanup failed", "user_id", userID, "error", err.Error())
	}

	e.notifyAsync("two_factor_disabled", func(ctx context.Context) error {
		return e.notifier.NotifyTwoFactorChanged(ctx, account.Email, false)
	})

	e.emitAudit(ctx, auditActionTwoFactorDisable, true, userID, nil, nil)
	return nil
}

// RegenerateBackupCodes replaces the whole batch. Codes from the old
// batch stop working immediately, used or not.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internalError(err)
	}
	if !account.TwoFactorEnabled() {
		return nil, ErrTwoFactorNotEnabled
	}

	codes, hashes, err := e.newBackupCodeBatch(userID)
	if err != nil {
		return nil, internalError(err)
	}
	if err := e.backupCodes.Replace(ctx, userID, hashes); err != nil {
		return nil, internalError(err)
	}

	e.metricInc(MetricBackupCodesRegenerated)
	e.emitAudit(ctx, auditActionBackupCodesRegenerated, true, userID, nil, nil)
	return codes, nil
}

// TwoFactorStatus reports the enabled flag and how many backup codes
// remain unconsumed.
func (e *Engine) TwoFactorStatus(ctx context.Context, userID string) (*TwoFactorStatus, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internalError(err)
	}

	status := &TwoFactorStatus{Enabled: account.TwoFactorEnabled()}
	if status.Enabled {
		remaining, err := e.backupCodes.CountRemaining(ctx, userID)
		if err != nil {
			return nil, internalError(err)
		}
		status.RemainingBackupCodes = remaining
	}
	return status, nil
}

// newBackupCodeBatch produces the configured number of distinct codes
// with their storage hashes.
func (e *Engine) newBackupCodeBatch(userID string) ([]string, []string, error) {
	count := e.config.TwoFactor.BackupCodeCount
	codes := make([]string, 0, count)
	hashes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)

	for len(codes) < count {
		code, err := internal.NewBackupCode(e.config.TwoFactor.BackupCodeLength)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
		hashes = append(hashes, internal.HashBackupCode(userID, code))
	}
	return codes, hashes, nil
}
