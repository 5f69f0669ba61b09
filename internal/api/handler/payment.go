package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/campus_forum_server/internal/api/middleware"
	"github.com/qs3c/campus_forum_server/internal/model"
	"github.com/qs3c/campus_forum_server/internal/model/dto"
	"github.com/qs3c/campus_forum_server/internal/pkg/logger"
	"github.com/qs3c/campus_forum_server/internal/pkg/queue"
	"github.com/qs3c/campus_forum_server/internal/pkg/response"
	"github.com/qs3c/campus_forum_server/internal/service"
)

// JobQueue 模拟支付任务队列
type JobQueue interface {
	Push(ctx context.Context, job *queue.PaymentJob) error
}

type PaymentHandler struct {
	manager *service.SessionManager
	users   service.UserDirectory
	jobs    JobQueue
	delay   time.Duration
	logger  *zap.Logger
}

func NewPaymentHandler(
	manager *service.SessionManager,
	users service.UserDirectory,
	jobs JobQueue,
	delay time.Duration,
	log *zap.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		manager: manager,
		users:   users,
		jobs:    jobs,
		delay:   delay,
		logger:  logger.OrNop(log),
	}
}

// Initiate 发起解锁支付
// POST /api/v1/resources/:id/unlock/initiate
func (h *PaymentHandler) Initiate(c *gin.Context) {
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

	session, err := h.manager.CreateSession(c.Request.Context(), userID, resourceID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, session)
}

// Process 开始处理支付，并投递模拟支付任务
// POST /api/v1/payments/sessions/:session_id/process
func (h *PaymentHandler) Process(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	sessionID := c.Param("session_id")
	if _, ok := h.ownedSession(c, userID, sessionID); !ok {
		return
	}

	session, err := h.manager.BeginProcessing(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	if h.jobs != nil {
		job := &queue.PaymentJob{
			SessionID: session.SessionID,
			UserID:    userID,
			ProcessAt: time.Now().UTC().Add(h.delay),
		}
		// 投递失败不影响会话状态，会话最终由过期清理收尾
		if err := h.jobs.Push(c.Request.Context(), job); err != nil {
			h.logger.Error("enqueue payment job failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	response.Success(c, session)
}

// Verify 支付结果回调
// POST /api/v1/payments/sessions/:session_id/verify
func (h *PaymentHandler) Verify(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.VerifyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, err.Error())
			return
		}
	}
	outcome := true
	if req.Outcome != nil {
		outcome = *req.Outcome
	}

	sessionID := c.Param("session_id")
	if _, ok := h.ownedSession(c, userID, sessionID); !ok {
		return
	}

	result, err := h.manager.Verify(c.Request.Context(), sessionID, outcome)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.Success(c, dto.VerifyResponse{
		Session:     result.Session,
		Entitlement: result.Entitlement,
	})
}

// Get 查询支付会话
// GET /api/v1/payments/sessions/:session_id
func (h *PaymentHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	session, ok := h.ownedSession(c, userID, c.Param("session_id"))
	if !ok {
		return
	}

	response.Success(c, session)
}

// List 当前用户的支付会话
// GET /api/v1/payments/sessions
func (h *PaymentHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.SessionListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	sessions, total, err := h.manager.ListSessions(c.Request.Context(), userID, req.Page, req.PageSize)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.SuccessPage(c, total, req.Page, req.PageSize, sessions)
}

// ownedSession 读取会话并校验归属，他人的会话按不存在处理
func (h *PaymentHandler) ownedSession(c *gin.Context, userID int64, sessionID string) (*model.PaymentSession, bool) {
	session, err := h.manager.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, h.logger, err)
		return nil, false
	}
	if session.UserID != userID {
		writeError(c, h.logger, service.ErrNotFound)
		return nil, false
	}
	return session, true
}

// checkAccess 板块访问权限校验
func checkAccess(c *gin.Context, log *zap.Logger, users service.UserDirectory, userID, resourceID int64) bool {
	allowed, err := users.CanAccessResource(c.Request.Context(), userID, resourceID)
	if err != nil {
		writeError(c, log, err)
		return false
	}
	if !allowed {
		writeError(c, log, service.ErrForbidden)
		return false
	}
	return true
}
