package authcore

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/halcyonlabs/authcore/internal"
)

// In-memory store fakes. They honor the same atomicity contracts as
// the real adapters so concurrency tests are meaningful.

type memAccounts struct {
	mu   sync.Mutex
	byID map[string]*Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: map[string]*Account{}}
}

func (s *memAccounts) get(id string) (*Account, bool) {
	a, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

func (s *memAccounts) GetByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.get(id); ok {
		return a, nil
	}
	return nil, ErrNotFound
}

func (s *memAccounts) GetByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.byID {
		if a.Email == email {
			cp, _ := s.get(id)
			return cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memAccounts) GetByVerificationToken(_ context.Context, token string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		return nil, ErrNotFound
	}
	for id, a := range s.byID {
		if a.VerificationToken == token {
			cp, _ := s.get(id)
			return cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memAccounts) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if a.Email == account.Email {
			return ErrEmailTaken
		}
	}
	cp := *account
	s.byID[account.ID] = &cp
	return nil
}

func (s *memAccounts) RecordLoginFailure(_ context.Context, id string, threshold int, lockout time.Duration) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return 0, false, ErrNotFound
	}
	a.FailedLoginAttempts++
	if a.FailedLoginAttempts >= threshold {
		until := time.Now().UTC().Add(lockout)
		a.LockedUntil = &until
		return a.FailedLoginAttempts, true, nil
	}
	return a.FailedLoginAttempts, false, nil
}

func (s *memAccounts) ClearLockout(_ context.Context, id string) error {
	return s.mutate(id, func(a *Account) {
		a.FailedLoginAttempts = 0
		a.LockedUntil = nil
	})
}

func (s *memAccounts) MarkLogin(_ context.Context, id, ip string, at time.Time) error {
	return s.mutate(id, func(a *Account) {
		a.FailedLoginAttempts = 0
		a.LockedUntil = nil
		a.LastLoginAt = &at
		a.LastLoginIP = ip
	})
}

func (s *memAccounts) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return s.mutate(id, func(a *Account) { a.PasswordHash = hash })
}

func (s *memAccounts) SetTOTPSecret(_ context.Context, id, secret string) error {
	return s.mutate(id, func(a *Account) { a.TOTPSecret = secret })
}

func (s *memAccounts) SetVerified(_ context.Context, id string, verified bool) error {
	return s.mutate(id, func(a *Account) {
		a.Verified = verified
		if verified {
			a.VerificationToken = ""
		}
	})
}

func (s *memAccounts) SetVerificationToken(_ context.Context, id, token string, sentAt time.Time) error {
	return s.mutate(id, func(a *Account) {
		a.VerificationToken = token
		a.VerificationSentAt = sentAt
	})
}

func (s *memAccounts) SetRole(_ context.Context, id, role string) error {
	return s.mutate(id, func(a *Account) { a.Role = role })
}

func (s *memAccounts) SetActive(_ context.Context, id string, active bool) error {
	return s.mutate(id, func(a *Account) { a.Active = active })
}

func (s *memAccounts) Stats(_ context.Context) (AccountStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := AccountStats{}
	now := time.Now().UTC()
	for _, a := range s.byID {
		stats.TotalAccounts++
		if a.Active {
			stats.ActiveAccounts++
		}
		if a.Verified {
			stats.VerifiedAccounts++
		}
		if a.LockedUntil != nil && now.Before(*a.LockedUntil) {
			stats.LockedAccounts++
		}
		if now.Sub(a.CreatedAt) < 7*24*time.Hour {
			stats.RecentSignups++
		}
	}
	return stats, nil
}

func (s *memAccounts) mutate(id string, fn func(*Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(a)
	return nil
}

type memSessions struct {
	mu    sync.Mutex
	byKey map[string]*Session
}

func newMemSessions() *memSessions {
	return &memSessions{byKey: map[string]*Session{}}
}

func (s *memSessions) Create(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.byKey[session.Key] = &cp
	return nil
}

func (s *memSessions) ListActive(_ context.Context, userID string) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for _, sess := range s.byKey {
		if sess.UserID == userID && sess.Active {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (s *memSessions) Touch(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byKey[key]
	if !ok || !sess.Active {
		return ErrNotFound
	}
	sess.LastActivity = at
	return nil
}

func (s *memSessions) Terminate(_ context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byKey[key]
	if !ok || sess.UserID != userID || !sess.Active {
		return ErrNotFound
	}
	sess.Active = false
	return nil
}

func (s *memSessions) TerminateAll(_ context.Context, userID, exceptKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for key, sess := range s.byKey {
		if sess.UserID == userID && sess.Active && key != exceptKey {
			sess.Active = false
			count++
		}
	}
	return count, nil
}

func (s *memSessions) active(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byKey[key]
	return ok && sess.Active
}

type memBackupCodes struct {
	mu     sync.Mutex
	byUser map[string]map[string]bool // hash -> used
}

func newMemBackupCodes() *memBackupCodes {
	return &memBackupCodes{byUser: map[string]map[string]bool{}}
}

func (s *memBackupCodes) Replace(_ context.Context, userID string, hashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		batch[h] = false
	}
	s.byUser[userID] = batch
	return nil
}

func (s *memBackupCodes) Consume(_ context.Context, userID, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.byUser[userID]
	if !ok {
		return false, nil
	}
	used, ok := batch[hash]
	if !ok || used {
		return false, nil
	}
	batch[hash] = true
	return true, nil
}

func (s *memBackupCodes) CountRemaining(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, used := range s.byUser[userID] {
		if !used {
			count++
		}
	}
	return count, nil
}

func (s *memBackupCodes) DeleteAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
	return nil
}

type memAudit struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *memAudit) Append(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memAudit) RecentSecurityEvents(_ context.Context, since time.Time, limit int) ([]AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if !s.events[i].Timestamp.Before(since) {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

func (s *memAudit) snapshot() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *memAudit) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

// recordingNotifier pushes each delivery onto a channel so tests can
// wait for the async send.
type recordingNotifier struct {
	calls chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{calls: make(chan string, 32)}
}

func (n *recordingNotifier) record(name string) error {
	select {
	case n.calls <- name:
	default:
	}
	return nil
}

func (n *recordingNotifier) NotifyVerification(_ context.Context, _, _ string) error {
	return n.record("verification")
}
func (n *recordingNotifier) NotifyWelcome(context.Context, string) error { return n.record("welcome") }
func (n *recordingNotifier) NotifyPasswordReset(_ context.Context, _, _ string) error {
	return n.record("password_reset")
}
func (n *recordingNotifier) NotifyPasswordChanged(context.Context, string) error {
	return n.record("password_changed")
}
func (n *recordingNotifier) NotifyRoleChanged(_ context.Context, _, _ string) error {
	return n.record("role_changed")
}
func (n *recordingNotifier) NotifyAccountStatusChanged(_ context.Context, _ string, _ bool) error {
	return n.record("account_status")
}
func (n *recordingNotifier) NotifyTwoFactorChanged(_ context.Context, _ string, _ bool) error {
	return n.record("two_factor")
}
func (n *recordingNotifier) NotifyTemporaryPassword(_ context.Context, _, _ string) error {
	return n.record("temporary_password")
}

func (n *recordingNotifier) expect(t *testing.T, name string) {
	t.Helper()
	select {
	case got := <-n.calls:
		if got != name {
			t.Fatalf("expected notification %q, got %q", name, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for notification %q", name)
	}
}

type testBackend struct {
	accounts *memAccounts
	sessions *memSessions
	codes    *memBackupCodes
	audit    *memAudit
	notifier *recordingNotifier
	redis    *miniredis.Miniredis
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Tokens.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	// Cheap hashing keeps the suite fast; parameter strength is covered
	// in package password.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *testBackend) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	backend := &testBackend{
		accounts: newMemAccounts(),
		sessions: newMemSessions(),
		codes:    newMemBackupCodes(),
		audit:    &memAudit{},
		notifier: newRecordingNotifier(),
		redis:    mr,
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(backend.accounts).
		WithSessionStore(backend.sessions).
		WithBackupCodeStore(backend.codes).
		WithAuditStore(backend.audit).
		WithNotifier(backend.notifier).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, backend
}

// seedAccount creates a verified active account directly in the store.
func seedAccount(t *testing.T, engine *Engine, backend *testBackend, email, password string) *Account {
	t.Helper()
	hash, err := engine.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	account := &Account{
		ID:           internal.NewOpaqueToken(),
		Email:        email,
		Username:     "user",
		PasswordHash: hash,
		Role:         "user",
		Verified:     true,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := backend.accounts.Create(context.Background(), account); err != nil {
		t.Fatalf("seed account failed: %v", err)
	}
	return account
}

// waitForAudit polls until the action shows up in the persisted trail.
func waitForAudit(t *testing.T, backend *testBackend, action string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, got := range backend.audit.actions() {
			if got == action {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("audit action %q never recorded; saw %v", action, backend.audit.actions())
}
