package authcore

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// configFile is the on-disk YAML schema. Durations are given in
// seconds; key material is base64. It is deliberately separate from
// [Config] so file layout can evolve without touching the runtime
// type.
type configFile struct {
	Lockout struct {
		MaxFailedAttempts int   `yaml:"max_failed_attempts"`
		DurationSeconds   int64 `yaml:"duration_seconds"`
	} `yaml:"lockout"`
	TwoFactor struct {
		Issuer               string `yaml:"issuer"`
		EnrollmentTTLSeconds int64  `yaml:"enrollment_ttl_seconds"`
		Skew                 uint   `yaml:"skew"`
		BackupCodeCount      int    `yaml:"backup_code_count"`
		BackupCodeLength     int    `yaml:"backup_code_length"`
	} `yaml:"two_factor"`
	Tokens struct {
		SigningMethod     string `yaml:"signing_method"`
		SigningKeyBase64  string `yaml:"signing_key_base64"`
		PublicKeyBase64   string `yaml:"public_key_base64"`
		Issuer            string `yaml:"issuer"`
		AccessTTLSeconds  int64  `yaml:"access_ttl_seconds"`
		RefreshTTLSeconds int64  `yaml:"refresh_ttl_seconds"`
	} `yaml:"tokens"`
	RateLimit struct {
		Enabled bool `yaml:"enabled"`
		Rules   map[string]struct {
			MaxRequests   int   `yaml:"max_requests"`
			WindowSeconds int64 `yaml:"window_seconds"`
		} `yaml:"rules"`
	} `yaml:"rate_limit"`
	PasswordReset struct {
		GrantTTLSeconds int64 `yaml:"grant_ttl_seconds"`
	} `yaml:"password_reset"`
	Registration struct {
		RequireVerifiedEmail   *bool  `yaml:"require_verified_email"`
		VerificationTTLSeconds int64  `yaml:"verification_ttl_seconds"`
		DefaultRole            string `yaml:"default_role"`
	} `yaml:"registration"`
	Password struct {
		MemoryKiB   uint32 `yaml:"memory_kib"`
		Time        uint32 `yaml:"time"`
		Parallelism uint8  `yaml:"parallelism"`
		MinLength   int    `yaml:"min_length"`
	} `yaml:"password"`
	Audit struct {
		Enabled    *bool `yaml:"enabled"`
		BufferSize int   `yaml:"buffer_size"`
		DropIfFull *bool `yaml:"drop_if_full"`
	} `yaml:"audit"`
	Metrics struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// LoadConfig reads a YAML file and overlays it on [DefaultConfig].
// Absent fields keep their defaults, so a minimal file only needs the
// signing key.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var file configFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := DefaultConfig()

	if file.Lockout.MaxFailedAttempts > 0 {
		cfg.Lockout.MaxFailedAttempts = file.Lockout.MaxFailedAttempts
	}
	if file.Lockout.DurationSeconds > 0 {
		cfg.Lockout.LockoutDuration = time.Duration(file.Lockout.DurationSeconds) * time.Second
	}

	if file.TwoFactor.Issuer != "" {
		cfg.TwoFactor.Issuer = file.TwoFactor.Issuer
	}
	if file.TwoFactor.EnrollmentTTLSeconds > 0 {
		cfg.TwoFactor.EnrollmentTTL = time.Duration(file.TwoFactor.EnrollmentTTLSeconds) * time.Second
	}
	if file.TwoFactor.Skew > 0 {
		cfg.TwoFactor.Skew = file.TwoFactor.Skew
	}
	if file.TwoFactor.BackupCodeCount > 0 {
		cfg.TwoFactor.BackupCodeCount = file.TwoFactor.BackupCodeCount
	}
	if file.TwoFactor.BackupCodeLength > 0 {
		cfg.TwoFactor.BackupCodeLength = file.TwoFactor.BackupCodeLength
	}

	if file.Tokens.SigningMethod != "" {
		cfg.Tokens.SigningMethod = file.Tokens.SigningMethod
	}
	if file.Tokens.SigningKeyBase64 != "" {
		key, err := base64.StdEncoding.DecodeString(file.Tokens.SigningKeyBase64)
		if err != nil {
			return Config{}, fmt.Errorf("decode signing key: %w", err)
		}
		cfg.Tokens.SigningKey = key
	}
	if file.Tokens.PublicKeyBase64 != "" {
		key, err := base64.StdEncoding.DecodeString(file.Tokens.PublicKeyBase64)
		if err != nil {
			return Config{}, fmt.Errorf("decode public key: %w", err)
		}
		cfg.Tokens.PublicKey = key
	}
	if file.Tokens.Issuer != "" {
		cfg.Tokens.Issuer = file.Tokens.Issuer
	}
	if file.Tokens.AccessTTLSeconds > 0 {
		cfg.Tokens.AccessTTL = time.Duration(file.Tokens.AccessTTLSeconds) * time.Second
	}
	if file.Tokens.RefreshTTLSeconds > 0 {
		cfg.Tokens.RefreshTTL = time.Duration(file.Tokens.RefreshTTLSeconds) * time.Second
	}

	if file.RateLimit.Rules != nil {
		cfg.RateLimit.Enabled = file.RateLimit.Enabled
		cfg.RateLimit.Rules = make(map[Endpoint]RateLimitRule, len(file.RateLimit.Rules))
		for name, rule := range file.RateLimit.Rules {
			cfg.RateLimit.Rules[Endpoint(name)] = RateLimitRule{
				MaxRequests: rule.MaxRequests,
				Window:      time.Duration(rule.WindowSeconds) * time.Second,
			}
		}
	}

	if file.PasswordReset.GrantTTLSeconds > 0 {
		cfg.PasswordReset.GrantTTL = time.Duration(file.PasswordReset.GrantTTLSeconds) * time.Second
	}

	if file.Registration.RequireVerifiedEmail != nil {
		cfg.Registration.RequireVerifiedEmail = *file.Registration.RequireVerifiedEmail
	}
	if file.Registration.VerificationTTLSeconds > 0 {
		cfg.Registration.VerificationTTL = time.Duration(file.Registration.VerificationTTLSeconds) * time.Second
	}
	if file.Registration.DefaultRole != "" {
		cfg.Registration.DefaultRole = file.Registration.DefaultRole
	}

	if file.Password.MemoryKiB > 0 {
		cfg.Password.Memory = file.Password.MemoryKiB
	}
	if file.Password.Time > 0 {
		cfg.Password.Time = file.Password.Time
	}
	if file.Password.Parallelism > 0 {
		cfg.Password.Parallelism = file.Password.Parallelism
	}
	if file.Password.MinLength > 0 {
		cfg.Password.MinLength = file.Password.MinLength
	}

	if file.Audit.Enabled != nil {
		cfg.Audit.Enabled = *file.Audit.Enabled
	}
	if file.Audit.BufferSize > 0 {
		cfg.Audit.BufferSize = file.Audit.BufferSize
	}
	if file.Audit.DropIfFull != nil {
		cfg.Audit.DropIfFull = *file.Audit.DropIfFull
	}

	if file.Metrics.Enabled != nil {
		cfg.Metrics.Enabled = *file.Metrics.Enabled
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
