package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/campus_forum_server/internal/model"
)

var seq int64

func nextSeq() int64 {
	return atomic.AddInt64(&seq, 1)
}

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := nextSeq()
	email := fmt.Sprintf("test_%d@example.com", n)
	user := &model.User{
		Username: fmt.Sprintf("testuser_%d", n),
		Email:    &email,
		Role:     model.RoleStudent,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithRole 设置角色
func WithRole(role string) func(*model.User) {
	return func(u *model.User) {
		u.Role = role
	}
}

// WithCollege 设置所属学院
func WithCollege(collegeID int64) func(*model.User) {
	return func(u *model.User) {
		u.CollegeID = &collegeID
	}
}

// TestResource 创建测试资源（默认全国板块、已锁定）
func TestResource(t *testing.T, db *gorm.DB, uploaderID int64, opts ...func(*model.Resource)) *model.Resource {
	t.Helper()

	resource := &model.Resource{
		UploaderID: uploaderID,
		Panel:      model.PanelNational,
		Title:      fmt.Sprintf("Test Resource %d", nextSeq()),
		FileName:   "notes.pdf",
		IsLocked:   true,
		Price:      9.9,
		Currency:   "CNY",
	}

	for _, opt := range opts {
		opt(resource)
	}

	if err := db.Create(resource).Error; err != nil {
		t.Fatalf("Failed to create test resource: %v", err)
	}
	// gorm 对 bool 零值使用 default 标签，需要显式写回
	if !resource.IsLocked {
		if err := db.Model(resource).Update("is_locked", false).Error; err != nil {
			t.Fatalf("Failed to unlock test resource: %v", err)
		}
	}

	return resource
}

// WithResourceCollege 设置为学院板块资源
func WithResourceCollege(collegeID int64) func(*model.Resource) {
	return func(r *model.Resource) {
		r.Panel = model.PanelCollege
		r.CollegeID = &collegeID
	}
}

// WithLocked 设置锁定状态
func WithLocked(locked bool) func(*model.Resource) {
	return func(r *model.Resource) {
		r.IsLocked = locked
	}
}

// WithPrice 设置价格
func WithPrice(price float64, currency string) func(*model.Resource) {
	return func(r *model.Resource) {
		r.Price = price
		r.Currency = currency
	}
}

// TestSession 直接写入一条支付会话
func TestSession(t *testing.T, db *gorm.DB, userID, resourceID int64, status model.SessionStatus, createdAt time.Time, ttl time.Duration) *model.PaymentSession {
	t.Helper()

	session := &model.PaymentSession{
		SessionID:  uuid.NewString(),
		ResourceID: resourceID,
		UserID:     userID,
		Amount:     9.9,
		Currency:   "CNY",
		Status:     status,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
		ExpiresAt:  createdAt.Add(ttl),
	}

	if err := db.Create(session).Error; err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}

	return session
}

// TestEntitlement 直接写入一条授权记录
func TestEntitlement(t *testing.T, db *gorm.DB, userID, resourceID int64, source string) *model.Entitlement {
	t.Helper()

	e := &model.Entitlement{
		UserID:          userID,
		ResourceID:      resourceID,
		SourceSessionID: source,
		GrantedAt:       time.Now().UTC(),
	}

	if err := db.Create(e).Error; err != nil {
		t.Fatalf("Failed to create test entitlement: %v", err)
	}

	return e
}
