package model

import (
	"time"
)

// FreeUnlockSource 免费解锁授予的来源标记
const FreeUnlockSource = "free-unlock"

type Entitlement struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	UserID          int64     `gorm:"not null;uniqueIndex:idx_entitlement_user_resource,priority:1" json:"user_id"`
	ResourceID      int64     `gorm:"not null;uniqueIndex:idx_entitlement_user_resource,priority:2;index" json:"resource_id"`
	SourceSessionID string    `gorm:"size:36;not null" json:"source_session_id"`
	GrantedAt       time.Time `gorm:"not null" json:"granted_at"`
}

func (Entitlement) TableName() string {
	return "entitlements"
}

func (e *Entitlement) IsFree() bool {
	return e.SourceSessionID == FreeUnlockSource
}

// Source 授予来源：paid 或 free
func (e *Entitlement) Source() string {
	if e.IsFree() {
		return "free"
	}
	return "paid"
}
