package store

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/halcyonlabs/authcore"
)

// AuditEvents implements [authcore.AuditStore] over Postgres. The
// table is append-only.
type AuditEvents struct {
	db *gorm.DB
}

func NewAuditEvents(db *gorm.DB) *AuditEvents {
	return &AuditEvents{db: db}
}

func (r *AuditEvents) Append(ctx context.Context, event authcore.AuditEvent) error {
	details := ""
	if len(event.Details) > 0 {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			return err
		}
		details = string(raw)
	}

	rec := auditEventModel{
		Timestamp: event.Timestamp,
		Action:    event.Action,
		UserID:    nullableString(event.UserID),
		AdminID:   nullableString(event.AdminID),
		IPAddress: nullableString(event.IP),
		UserAgent: event.UserAgent,
		Success:   event.Success,
		Error:     event.Error,
		Details:   details,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *AuditEvents) RecentSecurityEvents(ctx context.Context, since time.Time, limit int) ([]authcore.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var recs []auditEventModel
	err := r.db.WithContext(ctx).
		Where("timestamp >= ?", since).
		Order("timestamp DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	events := make([]authcore.AuditEvent, 0, len(recs))
	for _, rec := range recs {
		event := authcore.AuditEvent{
			Timestamp: rec.Timestamp,
			Action:    rec.Action,
			UserID:    stringValue(rec.UserID),
			AdminID:   stringValue(rec.AdminID),
			IP:        stringValue(rec.IPAddress),
			UserAgent: rec.UserAgent,
			Success:   rec.Success,
			Error:     rec.Error,
		}
		if rec.Details != "" {
			_ = json.Unmarshal([]byte(rec.Details), &event.Details)
		}
		events = append(events, event)
	}
	return events, nil
}
