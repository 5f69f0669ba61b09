package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/campus_forum_server/config"
	"github.com/qs3c/campus_forum_server/internal/model"
	"github.com/qs3c/campus_forum_server/internal/pkg/logger"
	"github.com/qs3c/campus_forum_server/internal/pkg/metrics"
	"github.com/qs3c/campus_forum_server/internal/repository"
)

// SessionNotifier 会话进入终态后的通知（如推送到客户端）
type SessionNotifier interface {
	SessionResolved(ctx context.Context, session *model.PaymentSession) error
}

// VerifyResult 支付校验结果，Entitlement 仅在成功时非空
type VerifyResult struct {
	Session     *model.PaymentSession
	Entitlement *model.Entitlement
}

// errLostRace 事务内条件更新未命中，回滚后重新读取会话判定错误类型
var errLostRace = errors.New("session transition lost race")

type ManagerOption func(*SessionManager)

// WithClock 替换时间来源
func WithClock(now func() time.Time) ManagerOption {
	return func(m *SessionManager) {
		m.now = now
	}
}

// WithNotifier 设置终态通知
func WithNotifier(n SessionNotifier) ManagerOption {
	return func(m *SessionManager) {
		m.notifier = n
	}
}

// SessionManager 管理资源解锁的支付会话状态机：
//
//	PENDING -> PROCESSING -> SUCCEEDED | FAILED
//	PENDING | PROCESSING -> EXPIRED（超过 expires_at 后强制）
//
// 所有迁移都是存储层的条件更新，本身不等待、不重试。
type SessionManager struct {
	store      *repository.PaywallStore
	catalog    ResourceCatalog
	users      UserDirectory
	notifier   SessionNotifier
	ttl        time.Duration
	freeUnlock bool
	sweepBatch int
	now        func() time.Time
	logger     *zap.Logger
}

func NewSessionManager(
	store *repository.PaywallStore,
	catalog ResourceCatalog,
	users UserDirectory,
	cfg *config.Config,
	log *zap.Logger,
	opts ...ManagerOption,
) *SessionManager {
	m := &SessionManager{
		store:      store,
		catalog:    catalog,
		users:      users,
		ttl:        cfg.Paywall.SessionTTL(),
		freeUnlock: cfg.Paywall.FreeUnlockEnabled,
		sweepBatch: cfg.Paywall.SweepBatchSize,
		now:        time.Now,
		logger:     logger.OrNop(log),
	}
	if m.sweepBatch <= 0 {
		m.sweepBatch = config.DefaultSweepBatchSize
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SessionManager) clock() time.Time {
	return m.now().UTC().Truncate(time.Millisecond)
}

// CreateSession 为用户创建解锁资源的支付会话
func (m *SessionManager) CreateSession(ctx context.Context, userID, resourceID int64) (*model.PaymentSession, error) {
	if _, err := m.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	resource, err := m.catalog.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	entitled, err := m.catalog.IsEntitled(ctx, userID, resourceID)
	if err != nil {
		return nil, fmt.Errorf("check entitlement: %w", err)
	}
	if entitled {
		return nil, newError(KindAlreadyEntitled, "用户 %d 已解锁资源 %d", userID, resourceID)
	}
	if !resource.IsLocked {
		return nil, newError(KindResourceNotLocked, "资源 %d 无需解锁", resourceID)
	}

	now := m.clock()
	session := &model.PaymentSession{
		SessionID:  uuid.NewString(),
		ResourceID: resourceID,
		UserID:     userID,
		Amount:     resource.Price,
		Currency:   resource.Currency,
		Status:     model.SessionPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.store.Sessions().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	metrics.SessionsCreated.Inc()
	m.logger.Info("payment session created",
		zap.String("session_id", session.SessionID),
		zap.Int64("user_id", userID),
		zap.Int64("resource_id", resourceID),
		zap.Float64("amount", session.Amount),
		zap.Time("expires_at", session.ExpiresAt),
	)
	return session, nil
}

// BeginProcessing PENDING -> PROCESSING，交给（模拟的）支付处理方
func (m *SessionManager) BeginProcessing(ctx context.Context, sessionID string) (*model.PaymentSession, error) {
	session, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	if err := m.precheck(ctx, session, now, model.SessionPending); err != nil {
		return nil, err
	}

	ok, err := m.store.Sessions().Transition(ctx, repository.SessionTransition{
		SessionID:        sessionID,
		From:             []model.SessionStatus{model.SessionPending},
		To:               model.SessionProcessing,
		At:               now,
		RequireUnexpired: true,
	})
	if err != nil {
		return nil, fmt.Errorf("begin processing: %w", err)
	}
	if !ok {
		return nil, m.lostRace(ctx, sessionID, now, model.SessionPending)
	}

	metrics.SessionTransitions.WithLabelValues(string(model.SessionProcessing)).Inc()
	m.logger.Info("payment session processing", zap.String("session_id", sessionID))
	return m.load(ctx, sessionID)
}

// Verify 处理支付结果。过期优先于成功信号：过期会话一律转为 EXPIRED
func (m *SessionManager) Verify(ctx context.Context, sessionID string, outcome bool) (*VerifyResult, error) {
	session, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	if err := m.precheck(ctx, session, now, model.SessionProcessing); err != nil {
		return nil, err
	}

	if !outcome {
		return m.fail(ctx, session, now)
	}

	var entitlement *model.Entitlement
	var granted bool
	err = m.store.Transaction(ctx, func(tx *repository.PaywallStore) error {
		ok, err := tx.Sessions().Transition(ctx, repository.SessionTransition{
			SessionID:        sessionID,
			From:             []model.SessionStatus{model.SessionProcessing},
			To:               model.SessionSucceeded,
			At:               now,
			RequireUnexpired: true,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}

		entitlement, granted, err = tx.Entitlements().CreateIfAbsent(ctx, &model.Entitlement{
			UserID:          session.UserID,
			ResourceID:      session.ResourceID,
			SourceSessionID: session.SessionID,
			GrantedAt:       now,
		})
		return err
	})
	if errors.Is(err, errLostRace) {
		return nil, m.lostRace(ctx, sessionID, now, model.SessionProcessing)
	}
	if err != nil {
		return nil, fmt.Errorf("commit verified session: %w", err)
	}

	if granted {
		metrics.EntitlementsGranted.WithLabelValues(entitlement.Source()).Inc()
		if err := m.catalog.MarkUnlocked(ctx, session.UserID, session.ResourceID); err != nil {
			m.logger.Warn("mark resource unlocked failed",
				zap.String("session_id", sessionID),
				zap.Int64("resource_id", session.ResourceID),
				zap.Error(err),
			)
		}
	}

	resolved, err := m.resolved(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Session: resolved, Entitlement: entitlement}, nil
}

func (m *SessionManager) fail(ctx context.Context, session *model.PaymentSession, now time.Time) (*VerifyResult, error) {
	ok, err := m.store.Sessions().Transition(ctx, repository.SessionTransition{
		SessionID:        session.SessionID,
		From:             []model.SessionStatus{model.SessionProcessing},
		To:               model.SessionFailed,
		At:               now,
		RequireUnexpired: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fail session: %w", err)
	}
	if !ok {
		return nil, m.lostRace(ctx, session.SessionID, now, model.SessionProcessing)
	}

	resolved, err := m.resolved(ctx, session.SessionID)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Session: resolved}, nil
}

// GrantFreeUnlock 免费（演示）解锁，跳过支付会话；重复调用返回已有授权
func (m *SessionManager) GrantFreeUnlock(ctx context.Context, userID, resourceID int64) (*model.Entitlement, error) {
	if !m.freeUnlock {
		return nil, ErrFreeUnlockDisabled
	}

	if _, err := m.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := m.catalog.GetResource(ctx, resourceID); err != nil {
		return nil, err
	}

	entitlement, created, err := m.store.Entitlements().CreateIfAbsent(ctx, &model.Entitlement{
		UserID:          userID,
		ResourceID:      resourceID,
		SourceSessionID: model.FreeUnlockSource,
		GrantedAt:       m.clock(),
	})
	if err != nil {
		return nil, fmt.Errorf("grant free unlock: %w", err)
	}

	if created {
		metrics.EntitlementsGranted.WithLabelValues(entitlement.Source()).Inc()
		m.logger.Info("free unlock granted", zap.Int64("user_id", userID), zap.Int64("resource_id", resourceID))
		if err := m.catalog.MarkUnlocked(ctx, userID, resourceID); err != nil {
			m.logger.Warn("mark resource unlocked failed", zap.Int64("resource_id", resourceID), zap.Error(err))
		}
	}
	return entitlement, nil
}

// SweepExpired 将 expires_at < now 的未终结会话转为 EXPIRED，返回处理数量
func (m *SessionManager) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	expired := 0

	for {
		sessions, err := m.store.Sessions().ListExpired(ctx, now, m.sweepBatch)
		if err != nil {
			return expired, fmt.Errorf("list expired sessions: %w", err)
		}

		moved := 0
		for _, s := range sessions {
			ok, err := m.store.Sessions().Transition(ctx, repository.SessionTransition{
				SessionID:      s.SessionID,
				From:           model.ActiveSessionStatuses,
				To:             model.SessionExpired,
				At:             now,
				RequireExpired: true,
			})
			if err != nil {
				return expired, fmt.Errorf("expire session %s: %w", s.SessionID, err)
			}
			if !ok {
				// 已被并发的 verify 等操作终结
				continue
			}
			moved++
			s.Status = model.SessionExpired
			s.ResolvedAt = &now
			m.afterResolved(ctx, s)
		}
		expired += moved

		if len(sessions) < m.sweepBatch || moved == 0 {
			break
		}
	}

	if expired > 0 {
		m.logger.Info("expired payment sessions swept", zap.Int("count", expired))
	}
	return expired, nil
}

// GetSession 只读查询，不会触发过期
func (m *SessionManager) GetSession(ctx context.Context, sessionID string) (*model.PaymentSession, error) {
	return m.load(ctx, sessionID)
}

// ListSessions 用户的支付会话记录
func (m *SessionManager) ListSessions(ctx context.Context, userID int64, page, pageSize int) ([]*model.PaymentSession, int64, error) {
	return m.store.Sessions().ListByUser(ctx, userID, page, pageSize)
}

// ListExpiredCandidates 当前可被清理的会话（不做修改）
func (m *SessionManager) ListExpiredCandidates(ctx context.Context, now time.Time) ([]*model.PaymentSession, error) {
	return m.store.Sessions().ListExpired(ctx, now.UTC(), m.sweepBatch)
}

func (m *SessionManager) load(ctx context.Context, sessionID string) (*model.PaymentSession, error) {
	session, err := m.store.Sessions().GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "支付会话 %s 不存在", sessionID)
		}
		return nil, err
	}
	return session, nil
}

// precheck 按优先级校验：终态 > 过期 > 期望的源状态
func (m *SessionManager) precheck(ctx context.Context, session *model.PaymentSession, now time.Time, expected model.SessionStatus) error {
	if session.Status.IsTerminal() {
		return newError(KindSessionAlreadyResolved, "支付会话 %s 已结束（%s）", session.SessionID, session.Status)
	}
	if session.ExpiredAt(now) {
		return m.forceExpire(ctx, session, now)
	}
	if session.Status != expected {
		return newError(KindInvalidTransition, "支付会话 %s 当前状态为 %s，需要 %s", session.SessionID, session.Status, expected)
	}
	return nil
}

// forceExpire 将过期会话转为 EXPIRED，总是返回错误
func (m *SessionManager) forceExpire(ctx context.Context, session *model.PaymentSession, now time.Time) error {
	ok, err := m.store.Sessions().Transition(ctx, repository.SessionTransition{
		SessionID:      session.SessionID,
		From:           model.ActiveSessionStatuses,
		To:             model.SessionExpired,
		At:             now,
		RequireExpired: true,
	})
	if err != nil {
		return fmt.Errorf("expire session: %w", err)
	}

	if ok {
		session.Status = model.SessionExpired
		session.ResolvedAt = &now
		m.afterResolved(ctx, session)
		return newError(KindSessionExpired, "支付会话 %s 已过期", session.SessionID)
	}

	current, err := m.load(ctx, session.SessionID)
	if err != nil {
		return err
	}
	if current.Status == model.SessionExpired {
		return newError(KindSessionExpired, "支付会话 %s 已过期", session.SessionID)
	}
	return newError(KindSessionAlreadyResolved, "支付会话 %s 已结束（%s）", session.SessionID, current.Status)
}

// lostRace 条件更新未命中后重新读取，判定并发方留下的状态
func (m *SessionManager) lostRace(ctx context.Context, sessionID string, now time.Time, expected model.SessionStatus) error {
	current, err := m.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if current.Status == model.SessionExpired {
		return newError(KindSessionExpired, "支付会话 %s 已过期", sessionID)
	}
	if err := m.precheck(ctx, current, now, expected); err != nil {
		return err
	}
	return newError(KindInvalidTransition, "支付会话 %s 状态已被并发修改", sessionID)
}

// resolved 读取终态会话并触发通知
func (m *SessionManager) resolved(ctx context.Context, sessionID string) (*model.PaymentSession, error) {
	session, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m.afterResolved(ctx, session)
	return session, nil
}

func (m *SessionManager) afterResolved(ctx context.Context, session *model.PaymentSession) {
	metrics.SessionTransitions.WithLabelValues(string(session.Status)).Inc()
	if session.ResolvedAt != nil {
		metrics.SessionResolution.Observe(session.ResolvedAt.Sub(session.CreatedAt).Seconds())
	}

	m.logger.Info("payment session resolved",
		zap.String("session_id", session.SessionID),
		zap.Int64("user_id", session.UserID),
		zap.Int64("resource_id", session.ResourceID),
		zap.String("status", string(session.Status)),
	)

	if m.notifier == nil {
		return
	}
	if err := m.notifier.SessionResolved(ctx, session); err != nil {
		m.logger.Warn("notify session resolved failed", zap.String("session_id", session.SessionID), zap.Error(err))
	}
}
