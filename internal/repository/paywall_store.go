package repository

import (
	"context"

	"gorm.io/gorm"
)

// PaywallStore 会话与授权记录的存储，支持在同一事务内组合操作
type PaywallStore struct {
	db           *gorm.DB
	sessions     *SessionRepository
	entitlements *EntitlementRepository
}

func NewPaywallStore(db *gorm.DB) *PaywallStore {
	return &PaywallStore{
		db:           db,
		sessions:     NewSessionRepository(db),
		entitlements: NewEntitlementRepository(db),
	}
}

func (s *PaywallStore) Sessions() *SessionRepository {
	return s.sessions
}

func (s *PaywallStore) Entitlements() *EntitlementRepository {
	return s.entitlements
}

// Transaction 在单个数据库事务中执行 fn，fn 返回错误时整体回滚
func (s *PaywallStore) Transaction(ctx context.Context, fn func(tx *PaywallStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewPaywallStore(tx))
	})
}
