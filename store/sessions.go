package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/halcyonlabs/authcore"
)

// Sessions implements [authcore.SessionStore] over Postgres.
// Terminated rows are retained for history.
type Sessions struct {
	db *gorm.DB
}

func NewSessions(db *gorm.DB) *Sessions {
	return &Sessions{db: db}
}

func (r *Sessions) Create(ctx context.Context, session *authcore.Session) error {
	rec := sessionModel{
		Key:          session.Key,
		UserID:       session.UserID,
		IPAddress:    nullableString(session.IP),
		UserAgent:    session.UserAgent,
		CreatedAt:    session.CreatedAt,
		LastActivity: session.LastActivity,
		Active:       session.Active,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *Sessions) ListActive(ctx context.Context, userID string) ([]authcore.Session, error) {
	var recs []sessionModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND active", userID).
		Order("last_activity_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	sessions := make([]authcore.Session, 0, len(recs))
	for _, rec := range recs {
		sessions = append(sessions, authcore.Session{
			Key:          rec.Key,
			UserID:       rec.UserID,
			IP:           stringValue(rec.IPAddress),
			UserAgent:    rec.UserAgent,
			CreatedAt:    rec.CreatedAt,
			LastActivity: rec.LastActivity,
			Active:       rec.Active,
		})
	}
	return sessions, nil
}

func (r *Sessions) Touch(ctx context.Context, key string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&sessionModel{}).
		Where("session_key = ? AND active", key).
		Update("last_activity_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

func (r *Sessions) Terminate(ctx context.Context, userID, key string) error {
	res := r.db.WithContext(ctx).Model(&sessionModel{}).
		Where("session_key = ? AND user_id = ? AND active", key, userID).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

func (r *Sessions) TerminateAll(ctx context.Context, userID, exceptKey string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&sessionModel{}).
		Where("user_id = ? AND active", userID)
	if exceptKey != "" {
		q = q.Where("session_key <> ?", exceptKey)
	}
	res := q.Update("active", false)
	return res.RowsAffected, res.Error
}
