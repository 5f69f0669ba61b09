package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/qs3c/campus_forum_server/internal/model"
	"github.com/qs3c/campus_forum_server/internal/repository"
)

// UserDirectory 用户身份、角色与学院归属
type UserDirectory interface {
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	CanAccessResource(ctx context.Context, userID, resourceID int64) (bool, error)
}

type DirectoryService struct {
	userRepo     *repository.UserRepository
	resourceRepo *repository.ResourceRepository
}

func NewDirectoryService(userRepo *repository.UserRepository, resourceRepo *repository.ResourceRepository) *DirectoryService {
	return &DirectoryService{
		userRepo:     userRepo,
		resourceRepo: resourceRepo,
	}
}

func (s *DirectoryService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "用户 %d 不存在", userID)
		}
		return nil, err
	}
	return user, nil
}

// CanAccessResource 判断用户能否访问资源所在板块：
// 版主/管理员不受限制；全国板块对所有人开放；学院板块要求学院一致
func (s *DirectoryService) CanAccessResource(ctx context.Context, userID, resourceID int64) (bool, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}

	resource, err := s.resourceRepo.GetByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, newError(KindNotFound, "资源 %d 不存在", resourceID)
		}
		return false, err
	}

	if user.IsStaff() {
		return true, nil
	}
	if resource.CollegeID == nil {
		return true, nil
	}
	return user.CollegeID != nil && *user.CollegeID == *resource.CollegeID, nil
}
