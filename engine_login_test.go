package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginSuccessIssuesTokensAndSession(t *testing.T) {
	engine, backend := newTestEngine(t, nil)
	account := seedAccount(t, engine, backend, "alice@example.com", "correct-horse-battery")

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	result, err := engine.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" || result.SessionKey == "" {
		t.Fatal("expected tokens and session key")
	}
	if result.TwoFactorRequired {
		t.Fatal("unexpected two-factor challenge")
	}
	if !backend.sessions.active(result.SessionKey) {
		t.Fatal("expected active session row")
	}

	claims, err := engine.VerifyToken(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if claims.UserID != account.ID {
		t.Fatalf("claims user %q, want %q", claims.UserID, account.ID)
	}
	if claims.SessionKey != result.SessionKey {
		t.Fatal("claims session key mismatch")
	}

	waitForAudit(t, backend, "login")
}

func TestLoginWrongPassword(t *testing.T) {
	engine, backend := newTestEngine(t, nil)
	seedAccount(t, engine, backend, "alice@example.com", "correct-horse-battery")

	_, err := engine.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password-entirely",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	waitForAudit(t, backend, "failed_login")
}

func TestLoginUnknownEmail(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	_, err := engine.Login(context.Background(), LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever-password",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLockoutAfterThresholdEvenWithCorrectPassword(t *testing.T) {
	engine, backend := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.Enabled = false
	})
	account := seedAccount(t, engine, backend, "alice@example.com", "correct-horse-battery")

	for i := 0; i < engine.config.Lockout.MaxFailedAttempts; i++ {
		_, err := engine.Login(context.Background(), LoginRequest{
			Email:    "alice@example.com",
			Password: "wrong-password-entirely",
		})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	_, err := engine.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-horse-battery",
	})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	stored, _ := backend.accounts.GetByID(context.Background(), account.ID)
	if stored.FailedLoginAttempts != engine.config.Lockout.MaxFailedAttempts {
		t.Fatalf("attempts = %d, want %d", stored.FailedLoginAttempts, engine.config.Lockout.MaxFailedAttempts)
	}
	if stored.LockedUntil == nil {
		t.Fatal("expected LockedUntil set")
	}
	waitForAudit(t, backend, "login_locked")
}

func TestLockoutExpiryRestoresLogin(t *testing.T) {
	engine, backend := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.Enabled = false
	})
	account := seedAccount(t, engine, backend, "alice@example.com", "correct-horse-battery")

	past := time.Now().UTC().Add(-time.Minute)
	_ = backend.accounts.mutate(account.ID, func(a *Account) {
		a.FailedLoginAttempts = 5
		a.LockedUntil = &past
	})

	result, err := engine.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("Login after lockout expiry failed: %v", err)
	}
	if result.SessionKey == "" {
		t.Fatal("expected session key")
	}

	stored, _ := backend.accounts.GetByID(context.Background(), account.ID)
	if stored.FailedLoginAttempts != 0 || stored.LockedUntil != nil {
		t.Fatal("expected counters cleared after successful login")
	}
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	engine, backend := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.Enabled = false
	})
	account := seedAccount(t, engine, backend, "alice@example.com", "correct-horse-battery")

	for i := 0; i < 3; i++ {
		_, _ = engine.Login(context.Background(), LoginRequest{
			Email:    "alice@example.com",
			Password: "wrong-password-entirely",
		})
	}
	if _, err := engine.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-horse-battery",
	}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	stored, _ := backend.accounts.GetByID(context.Background(), account.ID)
	if stored.FailedLoginAttempts != 0 {
		t.Fatalf("attempts = %d after success, want 0", stored.FailedLoginAttempts)
	}
}

func TestLoginInactiveAndUnverifiedAccounts(t *testing.T) {
	engine, backend := newTestEngine(t, nil)

	inactive := seedAccount(t, engine, backend, "off@example.com", "correct-horse-battery")
	_ = backend.accounts.mutate(inactive.ID, func(a *Account) { a.Active = false })

	unverified := seedAccount(t, engine, backend, "new@example.com", "correct-horse-battery")
	_ = backend.accounts.mutate(unverified.ID, func(a *Account) { a.Verified = false })

	_, err := engine.Login(context.Background(), LoginRequest{
		Email:    "off@example.com",
		Password: "correct-horse-battery",
	})
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}

	_, err = engine.Login(context.Background(), LoginRequest{
		Email:    "new@example.com",
		Password: "correct-horse-battery",
	})
	if !errors.Is(err, ErrAccountUnverified) {
		t.Fatalf("expected ErrAccountUnverified, got %v", err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	engine, backend := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.Rules[EndpointLogin] = RateLimitRule{MaxRequests: 3, Window: 5 * time.Minute}
	})
	seedAccount(t, engine, backend, "alice@example.com", "correct-horse-battery")

	ctx := WithClientIP(context.Background(), "198.51.100.9")
	for i := 0; i < 3; i++ {
		_, err := engine.Login(ctx, LoginRequest{
			Email:    "alice@example.com",
			Password: "wrong-password-entirely",
		})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	_, err := engine.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-horse-battery",
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter <= 0 {
		t.Fatalf("expected positive RetryAfter, got %+v", rl)
	}

	// Different IPs get independent windows.
	otherCtx := WithClientIP(context.Background(), "198.51.100.10")
	if _, err := engine.Login(otherCtx, LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-horse-battery",
	}); err != nil {
		t.Fatalf("login from fresh IP failed: %v", err)
	}

	// Window expiry reopens the endpoint.
	backend.redis.FastForward(5*time.Minute + time.Second)
	if _, err := engine.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-horse-battery",
	}); err != nil {
		t.Fatalf("login after window elapsed failed: %v", err)
	}
}

func TestLogoutRevokesAndTerminates(t *testing.T) {
	engine, backend := newTestEngine(t, nil)
	account := seedAccount(t, engine, backend, "alice@example.com", "correct-horse-battery")

	ctx := context.Background()
	result, err := engine.Login(ctx, LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := engine.Logout(ctx, LogoutRequest{
		UserID:       account.ID,
		SessionKey:   result.SessionKey,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if backend.sessions.active(result.SessionKey) {
		t.Fatal("expected session terminated")
	}
	if _, err := engine.VerifyToken(ctx, result.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked for access token, got %v", err)
	}
	if _, err := engine.VerifyToken(ctx, result.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked for refresh token, got %v", err)
	}
	waitForAudit(t, backend, "logout")
}

func TestLogoutIdempotentOnMissingSession(t *testing.T) {
	engine, backend := newTestEngine(t, nil)
	account := seedAccount(t, engine, backend, "alice@example.com", "correct-horse-battery")

	err := engine.Logout(context.Background(), LogoutRequest{
		UserID:     account.ID,
		SessionKey: "never-existed",
	})
	if err != nil {
		t.Fatalf("Logout of unknown session should succeed, got %v", err)
	}
}
