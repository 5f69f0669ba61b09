package cron

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/campus_forum_server/internal/pkg/logger"
)

// Sweeper 清理过期支付会话
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

type Service struct {
	sweeper  Sweeper
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewService(sweeper Sweeper, interval time.Duration, log *zap.Logger) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		sweeper:  sweeper,
		interval: interval,
		now:      time.Now,
		logger:   logger.OrNop(log),
		stopChan: make(chan struct{}),
	}
}

// Start 启动定时清理
func (s *Service) Start() {
	s.wg.Add(1)
	go s.runSweep()
	s.logger.Info("cron service started", zap.Duration("sweep_interval", s.interval))
}

// Stop 停止定时任务并等待当前清理结束
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.logger.Info("cron service stopped")
}

func (s *Service) runSweep() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.RunNow(context.Background()); err != nil {
				s.logger.Error("sweep expired sessions failed", zap.Error(err))
			}
		}
	}
}

// RunNow 立即执行一次清理（用于测试或手动触发）
func (s *Service) RunNow(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	return s.sweeper.SweepExpired(ctx, s.now().UTC())
}
