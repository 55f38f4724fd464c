package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditActionLogin                  = "login"
	auditActionFailedLogin            = "failed_login"
	auditActionLoginLocked            = "login_locked"
	auditActionLogout                 = "logout"
	auditActionLogoutAll              = "logout_all"
	auditActionRegister               = "register"
	auditActionEmailVerified          = "email_verified"
	auditActionVerificationResent     = "verification_resent"
	auditActionPasswordChange         = "password_change"
	auditActionPasswordResetRequest   = "password_reset_request"
	auditActionPasswordResetComplete  = "password_reset_complete"
	auditActionPasswordResetReplay    = "password_reset_replay"
	auditActionTwoFactorSetup         = "2fa_setup"
	auditActionTwoFactorEnable        = "2fa_enable"
	auditActionTwoFactorDisable       = "2fa_disable"
	auditActionTwoFactorFailure       = "2fa_failure"
	auditActionTwoFactorSuccess       = "2fa_success"
	auditActionBackupCodeUsed         = "2fa_backup_used"
	auditActionBackupCodesRegenerated = "2fa_backup_regenerated"
	auditActionSessionTerminated      = "session_terminated"
	auditActionAdminRoleChange        = "admin_role_change"
	auditActionAdminStatusChange      = "admin_status_change"
	auditActionAdminPasswordReset     = "admin_password_reset"
	auditActionAdminUnlock            = "admin_unlock"
	auditActionRateLimitTriggered     = "rate_limit_triggered"
)

// AuditErrorCode is the stable machine-readable failure code recorded
// on unsuccessful events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrAccountUnverified  AuditErrorCode = "account_unverified"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrTwoFactorRequired  AuditErrorCode = "2fa_required"
	auditErrTwoFactorInvalid   AuditErrorCode = "2fa_invalid"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrTokenMalformed     AuditErrorCode = "token_malformed"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// emitAudit enqueues one event. The detailsBuilder is only invoked
// when auditing is enabled, so callers can defer map construction.
func (e *Engine) emitAudit(
	ctx context.Context,
	action string,
	success bool,
	userID string,
	err error,
	detailsBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var details map[string]string
	if detailsBuilder != nil {
		details = detailsBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		Action:    action,
		UserID:    userID,
		AdminID:   actorFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Details:   details,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, endpoint Endpoint, detailsBuilder func() map[string]string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditActionRateLimitTriggered, false, "", ErrRateLimited, func() map[string]string {
		base := map[string]string{
			"endpoint": string(endpoint),
		}
		if detailsBuilder == nil {
			return base
		}
		for k, v := range detailsBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrAccountUnverified):
		return auditErrAccountUnverified
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTwoFactorRequired):
		return auditErrTwoFactorRequired
	case errors.Is(err, ErrInvalidTwoFactorCode),
		errors.Is(err, ErrTwoFactorAlreadyEnabled),
		errors.Is(err, ErrTwoFactorNotEnabled),
		errors.Is(err, ErrNoPendingEnrollment):
		return auditErrTwoFactorInvalid
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenMalformed):
		return auditErrTokenMalformed
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrEmailTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	default:
		return auditErrInternal
	}
}
