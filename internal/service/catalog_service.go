package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/qs3c/campus_forum_server/internal/model"
	"github.com/qs3c/campus_forum_server/internal/repository"
)

// ResourceCatalog 资源元数据、锁定状态与价格策略
type ResourceCatalog interface {
	GetResource(ctx context.Context, resourceID int64) (*model.Resource, error)
	IsEntitled(ctx context.Context, userID, resourceID int64) (bool, error)
	MarkUnlocked(ctx context.Context, userID, resourceID int64) error
}

type CatalogService struct {
	resourceRepo    *repository.ResourceRepository
	entitlementRepo *repository.EntitlementRepository
	defaultCurrency string
}

func NewCatalogService(
	resourceRepo *repository.ResourceRepository,
	entitlementRepo *repository.EntitlementRepository,
	defaultCurrency string,
) *CatalogService {
	return &CatalogService{
		resourceRepo:    resourceRepo,
		entitlementRepo: entitlementRepo,
		defaultCurrency: defaultCurrency,
	}
}

// GetResource 获取资源，未配置币种的资源使用默认币种
func (s *CatalogService) GetResource(ctx context.Context, resourceID int64) (*model.Resource, error) {
	resource, err := s.resourceRepo.GetByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "资源 %d 不存在", resourceID)
		}
		return nil, err
	}

	if resource.Currency == "" {
		resource.Currency = s.defaultCurrency
	}
	return resource, nil
}

func (s *CatalogService) IsEntitled(ctx context.Context, userID, resourceID int64) (bool, error) {
	return s.entitlementRepo.Exists(ctx, userID, resourceID)
}

// MarkUnlocked 记录一次解锁。访问判定以授权记录为准，这里只维护资源上的解锁计数
func (s *CatalogService) MarkUnlocked(ctx context.Context, userID, resourceID int64) error {
	return s.resourceRepo.IncrementUnlockCount(ctx, resourceID)
}

// GetAccess 资源访问状态，未锁定的资源视为所有人可访问
func (s *CatalogService) GetAccess(ctx context.Context, userID, resourceID int64) (locked bool, entitled bool, err error) {
	resource, err := s.GetResource(ctx, resourceID)
	if err != nil {
		return false, false, err
	}
	if !resource.IsLocked {
		return false, true, nil
	}

	entitled, err = s.IsEntitled(ctx, userID, resourceID)
	if err != nil {
		return true, false, err
	}
	return true, entitled, nil
}

// ListEntitlements 用户已解锁的资源
func (s *CatalogService) ListEntitlements(ctx context.Context, userID int64) ([]*model.Entitlement, error) {
	return s.entitlementRepo.ListByUser(ctx, userID)
}
