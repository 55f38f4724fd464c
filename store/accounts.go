package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/halcyonlabs/authcore"
)

// Accounts implements [authcore.AccountStore] over Postgres.
type Accounts struct {
	db *gorm.DB
}

func NewAccounts(db *gorm.DB) *Accounts {
	return &Accounts{db: db}
}

func (r *Accounts) GetByID(ctx context.Context, id string) (*authcore.Account, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return toAccount(rec), nil
}

func (r *Accounts) GetByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return toAccount(rec), nil
}

func (r *Accounts) GetByVerificationToken(ctx context.Context, token string) (*authcore.Account, error) {
	if token == "" {
		return nil, authcore.ErrNotFound
	}
	var rec accountModel
	if err := r.db.WithContext(ctx).Where("verification_token = ?", token).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return toAccount(rec), nil
}

func (r *Accounts) Create(ctx context.Context, account *authcore.Account) error {
	rec := fromAccount(account)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return authcore.ErrEmailTaken
		}
		return err
	}
	account.CreatedAt = rec.CreatedAt
	return nil
}

// RecordLoginFailure is one transaction with a row lock, so concurrent
// failures on the same account serialize and no increment is lost.
func (r *Accounts) RecordLoginFailure(ctx context.Context, id string, threshold int, lockout time.Duration) (int, bool, error) {
	var attempts int
	var locked bool

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec accountModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return authcore.ErrNotFound
			}
			return err
		}

		attempts = rec.FailedLoginAttempts + 1
		updates := map[string]any{
			"failed_login_attempts": attempts,
			"updated_at":            time.Now().UTC(),
		}
		if attempts >= threshold {
			until := time.Now().UTC().Add(lockout)
			updates["locked_until"] = until
			locked = true
		}
		return tx.Model(&accountModel{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return 0, false, err
	}
	return attempts, locked, nil
}

func (r *Accounts) ClearLockout(ctx context.Context, id string) error {
	return r.update(ctx, id, map[string]any{
		"failed_login_attempts": 0,
		"locked_until":          nil,
	})
}

func (r *Accounts) MarkLogin(ctx context.Context, id, ip string, at time.Time) error {
	return r.update(ctx, id, map[string]any{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login_at":         at,
		"last_login_ip":         ip,
	})
}

func (r *Accounts) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.update(ctx, id, map[string]any{"password_hash": hash})
}

func (r *Accounts) SetTOTPSecret(ctx context.Context, id, secret string) error {
	return r.update(ctx, id, map[string]any{"totp_secret": secret})
}

func (r *Accounts) SetVerified(ctx context.Context, id string, verified bool) error {
	updates := map[string]any{"verified": verified}
	if verified {
		updates["verification_token"] = ""
	}
	return r.update(ctx, id, updates)
}

func (r *Accounts) SetVerificationToken(ctx context.Context, id, token string, sentAt time.Time) error {
	return r.update(ctx, id, map[string]any{
		"verification_token":   token,
		"verification_sent_at": sentAt,
	})
}

func (r *Accounts) SetRole(ctx context.Context, id, role string) error {
	return r.update(ctx, id, map[string]any{"role": role})
}

func (r *Accounts) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(ctx, id, map[string]any{"active": active})
}

// Stats counts signups over the trailing week as recent.
func (r *Accounts) Stats(ctx context.Context) (authcore.AccountStats, error) {
	var stats authcore.AccountStats
	db := r.db.WithContext(ctx).Model(&accountModel{})

	if err := db.Session(&gorm.Session{}).Count(&stats.TotalAccounts).Error; err != nil {
		return authcore.AccountStats{}, err
	}
	if err := db.Session(&gorm.Session{}).Where("active").Count(&stats.ActiveAccounts).Error; err != nil {
		return authcore.AccountStats{}, err
	}
	if err := db.Session(&gorm.Session{}).Where("verified").Count(&stats.VerifiedAccounts).Error; err != nil {
		return authcore.AccountStats{}, err
	}
	now := time.Now().UTC()
	if err := db.Session(&gorm.Session{}).Where("locked_until > ?", now).Count(&stats.LockedAccounts).Error; err != nil {
		return authcore.AccountStats{}, err
	}
	if err := db.Session(&gorm.Session{}).Where("created_at > ?", now.AddDate(0, 0, -7)).Count(&stats.RecentSignups).Error; err != nil {
		return authcore.AccountStats{}, err
	}
	return stats, nil
}

func (r *Accounts) update(ctx context.Context, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&accountModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

func toAccount(rec accountModel) *authcore.Account {
	return &authcore.Account{
		ID:                  rec.ID,
		Email:               rec.Email,
		Username:            rec.Username,
		PasswordHash:        rec.PasswordHash,
		Role:                rec.Role,
		Verified:            rec.Verified,
		Active:              rec.Active,
		TOTPSecret:          rec.TOTPSecret,
		FailedLoginAttempts: rec.FailedLoginAttempts,
		LockedUntil:         rec.LockedUntil,
		VerificationToken:   rec.VerificationToken,
		VerificationSentAt:  rec.VerificationSentAt,
		LastLoginAt:         rec.LastLoginAt,
		LastLoginIP:         rec.LastLoginIP,
		CreatedAt:           rec.CreatedAt,
	}
}

func fromAccount(a *authcore.Account) accountModel {
	now := a.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return accountModel{
		ID:                  a.ID,
		Email:               a.Email,
		Username:            a.Username,
		PasswordHash:        a.PasswordHash,
		Role:                a.Role,
		Verified:            a.Verified,
		Active:              a.Active,
		TOTPSecret:          a.TOTPSecret,
		FailedLoginAttempts: a.FailedLoginAttempts,
		LockedUntil:         a.LockedUntil,
		VerificationToken:   a.VerificationToken,
		VerificationSentAt:  a.VerificationSentAt,
		LastLoginAt:         a.LastLoginAt,
		LastLoginIP:         a.LastLoginIP,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}
