package authcore

import (
	"errors"
	"time"
)

// Endpoint names a rate-limited entry point. The limiter only applies
// to endpoints present in [RateLimitConfig.Rules]; everything else
// passes unthrottled.
type Endpoint string

const (
	// EndpointLogin is an exported rate-limit endpoint key.
	EndpointLogin Endpoint = "login"
	// EndpointRegister is an exported rate-limit endpoint key.
	EndpointRegister Endpoint = "register"
	// EndpointPasswordResetRequest is an exported rate-limit endpoint key.
	EndpointPasswordResetRequest Endpoint = "password_reset_request"
	// EndpointPasswordResetConfirm is an exported rate-limit endpoint key.
	EndpointPasswordResetConfirm Endpoint = "password_reset_confirm"
)

// Config is the engine configuration. Configure once, then treat as
// immutable; the Builder clones it at Build time.
type Config struct {
	Lockout       LockoutConfig
	TwoFactor     TwoFactorConfig
	Tokens        TokenConfig
	RateLimit     RateLimitConfig
	PasswordReset PasswordResetConfig
	Registration  RegistrationConfig
	Password      PasswordConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

// LockoutConfig controls brute-force lockout on the credential path.
type LockoutConfig struct {
	// MaxFailedAttempts is the consecutive-failure threshold at which
	// the account locks.
	MaxFailedAttempts int
	// LockoutDuration is how long the lock holds once triggered.
	LockoutDuration time.Duration
}

// TwoFactorConfig controls TOTP enrollment and backup codes.
type TwoFactorConfig struct {
	// Issuer appears in the otpauth:// provisioning URI.
	Issuer string
	// EnrollmentTTL bounds how long a pending (unconfirmed) secret
	// survives in the TTL store.
	EnrollmentTTL time.Duration
	// Skew is the accepted clock-drift tolerance in 30s time steps.
	Skew uint
	// BackupCodeCount codes are generated per batch.
	BackupCodeCount int
	// BackupCodeLength is the character length of each code.
	BackupCodeLength int
}

// TokenConfig carries signing key material and token lifetimes. The
// key bytes are treated as an opaque capability; "hs256" and "ed25519"
// are supported methods.
type TokenConfig struct {
	SigningMethod string
	SigningKey    []byte
	PublicKey     []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// RateLimitRule bounds one endpoint: at most MaxRequests per Window
// from a single client IP.
type RateLimitRule struct {
	MaxRequests int
	Window      time.Duration
}

// RateLimitConfig enables the sliding-window limiter and lists the
// endpoints it covers.
type RateLimitConfig struct {
	Enabled bool
	Rules   map[Endpoint]RateLimitRule
}

// PasswordResetConfig controls the single-use reset grants.
type PasswordResetConfig struct {
	GrantTTL time.Duration
}

// RegistrationConfig controls account creation and email verification.
type RegistrationConfig struct {
	// RequireVerifiedEmail blocks login for accounts that never
	// completed verification.
	RequireVerifiedEmail bool
	// VerificationTTL bounds how long a verification token is honored.
	VerificationTTL time.Duration
	DefaultRole     string
}

// PasswordConfig holds Argon2id parameters for the default hasher and
// the minimum accepted password length.
type PasswordConfig struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the request path when
	// the buffer is saturated. Dropped counts are observable via
	// [Engine.AuditDropped].
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the shipped defaults: 5 failures lock for 30
// minutes, 5-minute enrollment TTL, 10 backup codes of 8 characters,
// 15m/7d token lifetimes, 1h reset grants, and the standard
// per-endpoint limiter rules.
func DefaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			LockoutDuration:   30 * time.Minute,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:           "authcore",
			EnrollmentTTL:    5 * time.Minute,
			Skew:             1,
			BackupCodeCount:  10,
			BackupCodeLength: 8,
		},
		Tokens: TokenConfig{
			SigningMethod: "hs256",
			Issuer:        "authcore",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Rules: map[Endpoint]RateLimitRule{
				EndpointLogin:                {MaxRequests: 5, Window: 5 * time.Minute},
				EndpointRegister:             {MaxRequests: 3, Window: time.Hour},
				EndpointPasswordResetRequest: {MaxRequests: 3, Window: time.Hour},
				EndpointPasswordResetConfirm: {MaxRequests: 5, Window: time.Hour},
			},
		},
		PasswordReset: PasswordResetConfig{
			GrantTTL: time.Hour,
		},
		Registration: RegistrationConfig{
			RequireVerifiedEmail: true,
			VerificationTTL:      24 * time.Hour,
			DefaultRole:          "user",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Lockout.MaxFailedAttempts <= 0 {
		return errors.New("lockout MaxFailedAttempts must be positive")
	}
	if c.Lockout.LockoutDuration <= 0 {
		return errors.New("lockout LockoutDuration must be positive")
	}
	if c.TwoFactor.EnrollmentTTL <= 0 {
		return errors.New("two-factor EnrollmentTTL must be positive")
	}
	if c.TwoFactor.BackupCodeCount <= 0 {
		return errors.New("two-factor BackupCodeCount must be positive")
	}
	if c.TwoFactor.BackupCodeLength < 6 {
		return errors.New("two-factor BackupCodeLength must be at least 6")
	}
	if c.TwoFactor.Issuer == "" {
		return errors.New("two-factor Issuer required")
	}
	switch c.Tokens.SigningMethod {
	case "hs256", "ed25519":
	default:
		return errors.New("tokens SigningMethod must be hs256 or ed25519")
	}
	if len(c.Tokens.SigningKey) == 0 {
		return errors.New("tokens SigningKey required")
	}
	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Tokens.RefreshTTL < c.Tokens.AccessTTL {
		return errors.New("tokens RefreshTTL must not be shorter than AccessTTL")
	}
	if c.RateLimit.Enabled {
		for endpoint, rule := range c.RateLimit.Rules {
			if rule.MaxRequests <= 0 || rule.Window <= 0 {
				return errors.New("rate limit rule for " + string(endpoint) + " must have positive MaxRequests and Window")
			}
		}
	}
	if c.PasswordReset.GrantTTL <= 0 {
		return errors.New("password reset GrantTTL must be positive")
	}
	if c.Registration.VerificationTTL <= 0 {
		return errors.New("registration VerificationTTL must be positive")
	}
	if c.Registration.DefaultRole == "" {
		return errors.New("registration DefaultRole required")
	}
	if c.Password.MinLength < 8 {
		return errors.New("password MinLength must be at least 8")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit BufferSize must be positive when audit is enabled")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.SigningKey = cloneBytes(cfg.Tokens.SigningKey)
	out.Tokens.PublicKey = cloneBytes(cfg.Tokens.PublicKey)
	if cfg.RateLimit.Rules != nil {
		out.RateLimit.Rules = make(map[Endpoint]RateLimitRule, len(cfg.RateLimit.Rules))
		for endpoint, rule := range cfg.RateLimit.Rules {
			out.RateLimit.Rules[endpoint] = rule
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
