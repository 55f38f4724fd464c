package store

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// BackupCodes implements [authcore.BackupCodeStore] over Postgres.
type BackupCodes struct {
	db *gorm.DB
}

func NewBackupCodes(db *gorm.DB) *BackupCodes {
	return &BackupCodes{db: db}
}

// Replace swaps the full code set in one transaction so there is no
// window with both old and new codes redeemable.
func (r *BackupCodes) Replace(ctx context.Context, userID string, hashes []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&backupCodeModel{}).Error; err != nil {
			return err
		}
		if len(hashes) == 0 {
			return nil
		}
		now := time.Now().UTC()
		recs := make([]backupCodeModel, 0, len(hashes))
		for _, hash := range hashes {
			recs = append(recs, backupCodeModel{
				UserID:    userID,
				CodeHash:  hash,
				CreatedAt: now,
			})
		}
		return tx.Create(&recs).Error
	})
}

// Consume marks the code used. The guarded UPDATE means exactly one of
// any concurrent redemptions of the same code wins.
func (r *BackupCodes) Consume(ctx context.Context, userID, hash string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&backupCodeModel{}).
		Where("user_id = ? AND code_hash = ? AND NOT used", userID, hash).
		Updates(map[string]any{
			"used":    true,
			"used_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *BackupCodes) CountRemaining(ctx context.Context, userID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&backupCodeModel{}).
		Where("user_id = ? AND NOT used", userID).
		Count(&count).Error
	return int(count), err
}

func (r *BackupCodes) DeleteAll(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&backupCodeModel{}).Error
}
