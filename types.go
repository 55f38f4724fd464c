package authcore

import (
	"context"
	"time"
)

// Account is the canonical user record managed by the engine. Accounts
// are soft-deactivated via Active; rows are never physically deleted.
type Account struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         string
	Verified     bool
	Active       bool

	// TOTPSecret is the confirmed base32 secret. Empty means two-factor
	// is disabled. Pending enrollment secrets never touch this field.
	TOTPSecret string

	FailedLoginAttempts int
	LockedUntil         *time.Time

	VerificationToken  string
	VerificationSentAt time.Time

	LastLoginAt *time.Time
	LastLoginIP string
	CreatedAt   time.Time
}

// TwoFactorEnabled reports whether the account has a confirmed secret.
func (a *Account) TwoFactorEnabled() bool {
	return a != nil && a.TOTPSecret != ""
}

// Locked reports whether a lockout window is in effect at the given time.
func (a *Account) Locked(now time.Time) bool {
	return a != nil && a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// Session is one row per successful login. Terminated sessions stay in
// the store with Active=false for audit history.
type Session struct {
	Key          string
	UserID       string
	IP           string
	UserAgent    string
	CreatedAt    time.Time
	LastActivity time.Time
	Active       bool
}

// AccountStore is the relational user record collaborator. All update
// methods must be atomic per call; RecordLoginFailure in particular is
// a single read-modify-write unit so concurrent failed logins cannot
// lose increments.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByVerificationToken(ctx context.Context, token string) (*Account, error)
	Create(ctx context.Context, account *Account) error

	// RecordLoginFailure increments the failed-attempt counter and, when
	// it reaches threshold, sets LockedUntil=now+lockout in the same
	// atomic unit. It returns the post-update counter and whether this
	// call caused the account to transition into the locked state.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockout time.Duration) (attempts int, locked bool, err error)

	// ClearLockout resets the failed-attempt counter to zero and clears
	// any lockout expiry.
	ClearLockout(ctx context.Context, id string) error
	MarkLogin(ctx context.Context, id, ip string, at time.Time) error

	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetTOTPSecret(ctx context.Context, id, secret string) error
	SetVerified(ctx context.Context, id string, verified bool) error
	SetVerificationToken(ctx context.Context, id, token string, sentAt time.Time) error
	SetRole(ctx context.Context, id, role string) error
	SetActive(ctx context.Context, id string, active bool) error

	Stats(ctx context.Context) (AccountStats, error)
}

// SessionStore tracks login sessions. Terminate and TerminateAll only
// flip the active flag.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	ListActive(ctx context.Context, userID string) ([]Session, error)
	Touch(ctx context.Context, key string, at time.Time) error

	// Terminate marks the matching active session inactive. It returns
	// ErrNotFound when no active session matches.
	Terminate(ctx context.Context, userID, key string) error

	// TerminateAll marks every active session for the user inactive,
	// optionally sparing exceptKey, and returns the count terminated.
	TerminateAll(ctx context.Context, userID, exceptKey string) (int64, error)
}

// BackupCodeStore persists hashed one-time recovery codes. Consume must
// be an atomic check-and-mark: of two concurrent calls with the same
// hash, exactly one observes consumed=true.
type BackupCodeStore interface {
	Replace(ctx context.Context, userID string, hashes []string) error
	Consume(ctx context.Context, userID, hash string) (consumed bool, err error)
	CountRemaining(ctx context.Context, userID string) (int, error)
	DeleteAll(ctx context.Context, userID string) error
}

// AuditStore is the append-only persistence collaborator for audit
// events. Rows are never mutated after Append.
type AuditStore interface {
	Append(ctx context.Context, event AuditEvent) error
	RecentSecurityEvents(ctx context.Context, since time.Time, limit int) ([]AuditEvent, error)
}

// Notifier delivers outbound notifications. Every call is fire-and-forget
// from the engine's perspective: errors are logged and never change the
// outcome of the operation that triggered them. Rendering and transport
// are entirely the implementation's concern.
type Notifier interface {
	NotifyVerification(ctx context.Context, email, token string) error
	NotifyWelcome(ctx context.Context, email string) error
	NotifyPasswordReset(ctx context.Context, email, token string) error
	NotifyPasswordChanged(ctx context.Context, email string) error
	NotifyRoleChanged(ctx context.Context, email, role string) error
	NotifyAccountStatusChanged(ctx context.Context, email string, active bool) error
	NotifyTwoFactorChanged(ctx context.Context, email string, enabled bool) error
	NotifyTemporaryPassword(ctx context.Context, email, password string) error
}

// NoOpNotifier discards all notifications.
type NoOpNotifier struct{}

func (NoOpNotifier) NotifyVerification(context.Context, string, string) error     { return nil }
func (NoOpNotifier) NotifyWelcome(context.Context, string) error                  { return nil }
func (NoOpNotifier) NotifyPasswordReset(context.Context, string, string) error    { return nil }
func (NoOpNotifier) NotifyPasswordChanged(context.Context, string) error          { return nil }
func (NoOpNotifier) NotifyRoleChanged(context.Context, string, string) error      { return nil }
func (NoOpNotifier) NotifyAccountStatusChanged(context.Context, string, bool) error {
	return nil
}
func (NoOpNotifier) NotifyTwoFactorChanged(context.Context, string, bool) error { return nil }
func (NoOpNotifier) NotifyTemporaryPassword(context.Context, string, string) error {
	return nil
}

// Hasher is the pluggable one-way password hashing capability. The
// default implementation is [password.Argon2id]; the engine only relies
// on this contract.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// LoginRequest carries one login attempt. TOTPCode and BackupCode are
// mutually exclusive; both empty means no second factor was presented.
type LoginRequest struct {
	Email      string
	Password   string
	TOTPCode   string
	BackupCode string
}

// LoginResult is returned by [Engine.Login]. When TwoFactorRequired is
// set, no tokens or session were created and the caller must retry with
// a code.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	SessionKey   string

	TwoFactorRequired bool

	Account *Account
}

// LogoutRequest identifies what to tear down. Missing tokens never
// prevent the session-side cleanup from completing.
type LogoutRequest struct {
	UserID       string
	SessionKey   string
	AccessToken  string
	RefreshToken string
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email    string
	Username string
	Password string
}

// TOTPEnrollment is returned by [Engine.BeginTOTPEnrollment]. The
// secret lives only in the TTL store until confirmed.
type TOTPEnrollment struct {
	Secret          string
	ProvisioningURI string
}

// TwoFactorStatus is a read-only snapshot for one account.
type TwoFactorStatus struct {
	Enabled              bool
	RemainingBackupCodes int
}

// AccountStats is the read-only dashboard projection over the account
// store.
type AccountStats struct {
	TotalAccounts    int64
	ActiveAccounts   int64
	VerifiedAccounts int64
	LockedAccounts   int64
	RecentSignups    int64
}
