package authcore

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/halcyonlabs/authcore/internal"
	"github.com/halcyonlabs/authcore/internal/rate"
	"github.com/halcyonlabs/authcore/password"
	"github.com/halcyonlabs/authcore/token"
)

// Builder assembles an [Engine]. Stores and the Redis client are
// required; everything else has a working default.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts    AccountStore
	sessions    SessionStore
	backupCodes BackupCodeStore
	auditStore  AuditStore
	notifier    Notifier
	hasher      Hasher
	auditSink   AuditSink
	logger      *slog.Logger

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

func (b *Builder) WithSessionStore(store SessionStore) *Builder {
	b.sessions = store
	return b
}

func (b *Builder) WithBackupCodeStore(store BackupCodeStore) *Builder {
	b.backupCodes = store
	return b
}

// WithAuditStore enables persisted audit events and the
// RecentSecurityEvents query. Without it, events only reach the sink
// given to WithAuditSink.
func (b *Builder) WithAuditStore(store AuditStore) *Builder {
	b.auditStore = store
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithHasher(h Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration, wires the internals, and starts
// the audit dispatcher. A Builder can build only once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.sessions == nil {
		return nil, errors.New("session store required")
	}
	if b.backupCodes == nil {
		return nil, errors.New("backup code store required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	hasher := b.hasher
	if hasher == nil {
		argon, err := password.NewArgon2(password.Params{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		hasher = argon
	}

	// The decoy hash makes unknown-identity rejections cost one real
	// verification, same as a wrong password.
	decoyHash, err := hasher.Hash(internal.NewOpaqueToken())
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		SigningMethod: token.SigningMethod(cfg.Tokens.SigningMethod),
		SigningKey:    cfg.Tokens.SigningKey,
		PublicKey:     cfg.Tokens.PublicKey,
		Issuer:        cfg.Tokens.Issuer,
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
	})
	if err != nil {
		return nil, err
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = NoOpNotifier{}
	}

	sink := b.auditSink
	if sink == nil && b.auditStore != nil {
		sink = NewStoreSink(b.auditStore, logger)
	} else if sink != nil && b.auditStore != nil {
		sink = MultiSink{NewStoreSink(b.auditStore, logger), sink}
	}

	e := &Engine{
		config:      cfg,
		logger:      logger,
		accounts:    b.accounts,
		sessions:    b.sessions,
		backupCodes: b.backupCodes,
		auditStore:  b.auditStore,
		notifier:    notifier,
		hasher:      hasher,
		tokens:      tokens,
		denylist:    token.NewDenylist(b.redis),
		limiter:     rate.New(b.redis),
		enroll:      newEnrollmentStore(b.redis, cfg.TwoFactor.EnrollmentTTL),
		resets:      newResetStore(b.redis),
		totp:        newTOTPManager(cfg.TwoFactor),
		audit:       newAuditDispatcher(cfg.Audit, sink),
		metrics:     NewMetrics(cfg.Metrics),
		decoyHash:   decoyHash,
		now:         time.Now,
	}

	b.built = true
	return e, nil
}
