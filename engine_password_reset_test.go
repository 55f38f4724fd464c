package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPasswordResetRoundTrip(t *testing.T) {
	engine, backend := newTestEngine(t, nil)
	account := seedAccount(t, engine, backend, "alice@example.com", "correct-horse-battery")

	// Park an active session so we can watch the reset sweep it away.
	login, err := engine.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	grant, err := engine.RequestPasswordReset(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if grant == "" {
		t.Fatal("expected a grant")
	}
	backend.notifier.expect(t, "password_reset")

	if err := engine.ConfirmPasswordReset(context.Background(), grant, "entirely-new-password"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}
	backend.notifier.expect(t, "password_changed")

	if backend.sessions.active(login.SessionKey) {
		t.Fatal("reset must terminate existing sessions")
	}

	// Old password dead, new one live.
	if _, err := engine.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-horse-battery",
	}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should fail, got %v", err)
	}
	if _, err := engine.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "entirely-new-password",
	}); err != nil {
		t.Fatalf("new password login failed: %v", err)
	}

	stored, _ := backend.accounts.GetByID(context.Background(), account.ID)
	if stored.FailedLoginAttempts != 0 || stored.LockedUntil != nil {
		t.Fatal("reset must clear lockout state")
	}
	waitForAudit(t, backend, "password_reset_complete")
}

func TestPasswordResetGrantSingleUse(t *testing.T) {
	engine, backend := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.Enabled = false
	})
	seedAccount(t, engine, backend, "alice@example.com", "correct-horse-battery")

	grant, err := engine.RequestPasswordReset(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if err := engine.ConfirmPasswordReset(context.Background(), grant, "entirely-new-password"); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}
	if err := engine.ConfirmPasswordReset(context.Background(), grant, "another-new-password"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on replay, got %v", err)
	}
	waitForAudit(t, backend, "password_reset_replay")
}

func TestPasswordResetGrantConcurrentConfirm(t *testing.T) {
	engine, backend := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.Enabled = false
	})
	seedAccount(t, engine, backend, "alice@example.com", "correct-horse-battery")

	grant, err := engine.RequestPasswordReset(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	const racers = 4
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- engine.ConfirmPasswordReset(context.Background(), grant, "entirely-new-password")
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrNotFound) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("grant consumed %d times, want exactly 1", successes)
	}
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	_, err := engine.RequestPasswordReset(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPasswordResetGrantExpiry(t *testing.T) {
	engine, backend := newTestEngine(t, nil)
	seedAccount(t, engine, backend, "alice@example.com", "correct-horse-battery")

	grant, err := engine.RequestPasswordReset(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	backend.redis.FastForward(engine.config.PasswordReset.GrantTTL + time.Second)

	if err := engine.ConfirmPasswordReset(context.Background(), grant, "entirely-new-password"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired grant, got %v", err)
	}
}

func TestPasswordResetPolicyCheckBeforeConsume(t *testing.T) {
	engine, backend := newTestEngine(t, nil)
	seedAccount(t, engine, backend, "alice@example.com", "correct-horse-battery")

	grant, err := engine.RequestPasswordReset(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	if err := engine.ConfirmPasswordReset(context.Background(), grant, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	// A policy rejection must not burn the grant.
	if err := engine.ConfirmPasswordReset(context.Background(), grant, "entirely-new-password"); err != nil {
		t.Fatalf("confirm after policy rejection failed: %v", err)
	}
}
