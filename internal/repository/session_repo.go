package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/campus_forum_server/internal/model"
)

// SessionTransition 一次带条件的状态迁移（compare-and-set）
type SessionTransition struct {
	SessionID string
	From      []model.SessionStatus
	To        model.SessionStatus
	At        time.Time
	// RequireUnexpired 仅当 expires_at >= At 时迁移
	RequireUnexpired bool
	// RequireExpired 仅当 expires_at < At 时迁移
	RequireExpired bool
}

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.PaymentSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *SessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*model.PaymentSession, error) {
	var session model.PaymentSession
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Transition 原子地执行状态迁移，返回是否命中（false 表示前置状态已被并发修改）
func (r *SessionRepository) Transition(ctx context.Context, t SessionTransition) (bool, error) {
	updates := map[string]interface{}{
		"status":     t.To,
		"updated_at": t.At,
	}
	if t.To.IsTerminal() {
		updates["resolved_at"] = t.At
	}

	q := r.db.WithContext(ctx).Model(&model.PaymentSession{}).
		Where("session_id = ? AND status IN ?", t.SessionID, t.From)
	if t.RequireUnexpired {
		q = q.Where("expires_at >= ?", t.At)
	}
	if t.RequireExpired {
		q = q.Where("expires_at < ?", t.At)
	}

	result := q.Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListExpired 获取已过期但尚未终结的会话
func (r *SessionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.PaymentSession, error) {
	var sessions []*model.PaymentSession
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at < ?", model.ActiveSessionStatuses, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*model.PaymentSession, int64, error) {
	var sessions []*model.PaymentSession
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PaymentSession{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&sessions).Error
	return sessions, total, err
}

// CountByStatus 按状态统计会话数量
func (r *SessionRepository) CountByStatus(ctx context.Context) (map[model.SessionStatus]int64, error) {
	var rows []struct {
		Status model.SessionStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.PaymentSession{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.SessionStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
