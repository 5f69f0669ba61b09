package model

import (
	"time"
)

type SessionStatus string

const (
	SessionPending    SessionStatus = "PENDING"
	SessionProcessing SessionStatus = "PROCESSING"
	SessionSucceeded  SessionStatus = "SUCCEEDED"
	SessionFailed     SessionStatus = "FAILED"
	SessionExpired    SessionStatus = "EXPIRED"
)

// ActiveSessionStatuses 可以被过期清理的状态
var ActiveSessionStatuses = []SessionStatus{SessionPending, SessionProcessing}

func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionSucceeded, SessionFailed, SessionExpired:
		return true
	}
	return false
}

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionPending, SessionProcessing, SessionSucceeded, SessionFailed, SessionExpired:
		return true
	}
	return false
}

// PaymentSession 解锁资源的一次支付尝试，终态后作为审计记录保留
type PaymentSession struct {
	ID         int64         `gorm:"primaryKey" json:"-"`
	SessionID  string        `gorm:"size:36;uniqueIndex;not null" json:"session_id"`
	ResourceID int64         `gorm:"not null;index" json:"resource_id"`
	UserID     int64         `gorm:"not null;index" json:"user_id"`
	Amount     float64       `gorm:"type:decimal(10,2)" json:"amount"`
	Currency   string        `gorm:"size:3;not null" json:"currency"`
	Status     SessionStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	ExpiresAt  time.Time     `gorm:"not null;index" json:"expires_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

func (PaymentSession) TableName() string {
	return "payment_sessions"
}

// ExpiredAt 判断会话在 now 时刻是否已过期（now 严格晚于 expires_at）
func (s *PaymentSession) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
