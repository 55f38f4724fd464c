package store

import (
	"time"
)

type accountModel struct {
	ID           string `gorm:"column:id;type:uuid;primaryKey"`
	Email        string `gorm:"column:email;uniqueIndex"`
	Username     string `gorm:"column:username"`
	PasswordHash string `gorm:"column:password_hash"`
	Role         string `gorm:"column:role"`
	Verified     bool   `gorm:"column:verified"`
	Active       bool   `gorm:"column:active"`

	TOTPSecret string `gorm:"column:totp_secret"`

	FailedLoginAttempts int        `gorm:"column:failed_login_attempts"`
	LockedUntil         *time.Time `gorm:"column:locked_until"`

	VerificationToken  string    `gorm:"column:verification_token;index"`
	VerificationSentAt time.Time `gorm:"column:verification_sent_at"`

	LastLoginAt *time.Time `gorm:"column:last_login_at"`
	LastLoginIP string     `gorm:"column:last_login_ip"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

func (accountModel) TableName() string { return "accounts" }

type sessionModel struct {
	Key          string    `gorm:"column:session_key;primaryKey"`
	UserID       string    `gorm:"column:user_id;index"`
	IPAddress    *string   `gorm:"column:ip_address"`
	UserAgent    string    `gorm:"column:user_agent"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	LastActivity time.Time `gorm:"column:last_activity_at"`
	Active       bool      `gorm:"column:active;index"`
}

func (sessionModel) TableName() string { return "sessions" }

type backupCodeModel struct {
	ID        int64      `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    string     `gorm:"column:user_id;uniqueIndex:idx_backup_user_hash"`
	CodeHash  string     `gorm:"column:code_hash;uniqueIndex:idx_backup_user_hash"`
	Used      bool       `gorm:"column:used"`
	UsedAt    *time.Time `gorm:"column:used_at"`
	CreatedAt time.Time  `gorm:"column:created_at"`
}

func (backupCodeModel) TableName() string { return "backup_codes" }

type auditEventModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"column:timestamp;index"`
	Action    string    `gorm:"column:action;index"`
	UserID    *string   `gorm:"column:user_id;index"`
	AdminID   *string   `gorm:"column:admin_id"`
	IPAddress *string   `gorm:"column:ip_address"`
	UserAgent string    `gorm:"column:user_agent"`
	Success   bool      `gorm:"column:success"`
	Error     string    `gorm:"column:error"`
	Details   string    `gorm:"column:details;type:jsonb"`
}

func (auditEventModel) TableName() string { return "audit_events" }

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
