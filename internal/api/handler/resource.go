package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/campus_forum_server/internal/api/middleware"
	"github.com/qs3c/campus_forum_server/internal/model/dto"
	"github.com/qs3c/campus_forum_server/internal/pkg/logger"
	"github.com/qs3c/campus_forum_server/internal/pkg/response"
	"github.com/qs3c/campus_forum_server/internal/service"
)

type ResourceHandler struct {
	manager *service.SessionManager
	catalog *service.CatalogService
	users   service.UserDirectory
	logger  *zap.Logger
}

func NewResourceHandler(
	manager *service.SessionManager,
	catalog *service.CatalogService,
	users service.UserDirectory,
	log *zap.Logger,
) *ResourceHandler {
	return &ResourceHandler{
		manager: manager,
		catalog: catalog,
		users:   users,
		logger:  logger.OrNop(log),
	}
}

// FreeUnlock 免费解锁（需开启配置）
// POST /api/v1/resources/:id/unlock/free
func (h *ResourceHandler) FreeUnlock(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	resourceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的资源ID")
		return
	}

	if !checkAccess(c, h.logger, h.users, userID, resourceID) {
		return
	}

	entitlement, err := h.manager.GrantFreeUnlock(c.Request.Context(), userID, resourceID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, entitlement)
}

// Access 资源访问状态，前端据此决定是否展示付费墙
// GET /api/v1/resources/:id/access
func (h *ResourceHandler) Access(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	resourceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的资源ID")
		return
	}

	locked, entitled, err := h.catalog.GetAccess(c.Request.Context(), userID, resourceID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, dto.AccessResponse{
		ResourceID: resourceID,
		IsLocked:   locked,
		Entitled:   entitled,
	})
}

// Entitlements 当前用户已解锁的资源
// GET /api/v1/user/entitlements
func (h *ResourceHandler) Entitlements(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	entitlements, err := h.catalog.ListEntitlements(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, entitlements)
}
