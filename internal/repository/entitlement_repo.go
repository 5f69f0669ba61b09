package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/campus_forum_server/internal/model"
)

type EntitlementRepository struct {
	db *gorm.DB
}

func NewEntitlementRepository(db *gorm.DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

// CreateIfAbsent 幂等创建授权记录。已存在时返回已有记录，created 为 false
func (r *EntitlementRepository) CreateIfAbsent(ctx context.Context, e *model.Entitlement) (*model.Entitlement, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(e)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return e, true, nil
	}

	existing, err := r.Get(ctx, e.UserID, e.ResourceID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *EntitlementRepository) Get(ctx context.Context, userID, resourceID int64) (*model.Entitlement, error) {
	var e model.Entitlement
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND resource_id = ?", userID, resourceID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EntitlementRepository) Exists(ctx context.Context, userID, resourceID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Entitlement{}).
		Where("user_id = ? AND resource_id = ?", userID, resourceID).
		Count(&count).Error
	return count > 0, err
}

func (r *EntitlementRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Entitlement, error) {
	var entitlements []*model.Entitlement
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("granted_at DESC").
		Find(&entitlements).Error
	return entitlements, err
}

func (r *EntitlementRepository) CountByResource(ctx context.Context, resourceID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Entitlement{}).
		Where("resource_id = ?", resourceID).
		Count(&count).Error
	return count, err
}
