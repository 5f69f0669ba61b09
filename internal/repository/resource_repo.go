package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/campus_forum_server/internal/model"
)

type ResourceRepository struct {
	db *gorm.DB
}

func NewResourceRepository(db *gorm.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

func (r *ResourceRepository) Create(ctx context.Context, resource *model.Resource) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *ResourceRepository) GetByID(ctx context.Context, id int64) (*model.Resource, error) {
	var resource model.Resource
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&resource).Error
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

// IncrementUnlockCount 解锁计数 +1
func (r *ResourceRepository) IncrementUnlockCount(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.Resource{}).Where("id = ?", id).
		UpdateColumn("unlock_count", gorm.Expr("unlock_count + 1")).Error
}
