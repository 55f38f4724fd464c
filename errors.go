package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned for unknown identities and wrong
	// passwords alike, so callers cannot distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout window is in effect.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrAccountInactive is returned for soft-deactivated accounts.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountUnverified is returned when email verification is required
	// and the account has not completed it.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrRateLimited is the sentinel matched by [RateLimitError].
	ErrRateLimited = errors.New("rate limited")
	// ErrTwoFactorRequired signals that credentials were accepted but a
	// second factor must be presented before tokens are issued.
	ErrTwoFactorRequired = errors.New("two-factor verification required")
	// ErrInvalidTwoFactorCode covers wrong TOTP codes and unknown or
	// already-consumed backup codes.
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	// ErrTwoFactorAlreadyEnabled is returned by enrollment when a
	// confirmed secret already exists.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorNotEnabled is returned by operations that require a
	// confirmed secret.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrNoPendingEnrollment is returned when confirmation arrives after
	// the pending enrollment expired or was never started.
	ErrNoPendingEnrollment = errors.New("no pending two-factor enrollment")
	// ErrTokenExpired is returned for tokens past their embedded expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned for token identifiers on the denylist.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenMalformed is returned for tokens that fail parsing or
	// signature verification.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrNotFound is returned for missing sessions, backup codes, reset
	// grants, and lookups that are allowed to disclose absence.
	ErrNotFound = errors.New("not found")
	// ErrInvalidEmail is returned by registration for unusable email
	// addresses.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrEmailTaken is returned by registration for duplicate emails.
	// Registration discloses existence by design.
	ErrEmailTaken = errors.New("email already registered")
	// ErrPasswordPolicy is returned when a new password fails policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a password change submits the
	// current password as the new one.
	ErrPasswordReuse = errors.New("new password must differ from current")
	// ErrInternal wraps unexpected storage or signing failures. Callers
	// see only the sentinel; details go to the log.
	ErrInternal = errors.New("internal error")
	// ErrEngineNotReady indicates the engine was not built correctly.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitError reports how long the caller must wait before the
// request can be retried. It unwraps to [ErrRateLimited].
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

func internalError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInternal, err)
}
