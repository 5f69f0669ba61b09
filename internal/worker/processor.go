package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/campus_forum_server/internal/pkg/logger"
	"github.com/qs3c/campus_forum_server/internal/pkg/metrics"
	"github.com/qs3c/campus_forum_server/internal/pkg/queue"
	"github.com/qs3c/campus_forum_server/internal/service"
)

const popTimeout = 5 * time.Second

// Verifier 接收支付处理结果
type Verifier interface {
	Verify(ctx context.Context, sessionID string, outcome bool) (*service.VerifyResult, error)
}

// JobSource 支付任务来源
type JobSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.PaymentJob, error)
}

// Processor 模拟支付处理方：等待到任务的 ProcessAt 后回调 verify
type Processor struct {
	verifier       Verifier
	defaultOutcome bool
	now            func() time.Time
	logger         *zap.Logger
}

// NewProcessor 创建任务处理器
func NewProcessor(verifier Verifier, defaultOutcome bool, log *zap.Logger) *Processor {
	return &Processor{
		verifier:       verifier,
		defaultOutcome: defaultOutcome,
		now:            time.Now,
		logger:         logger.OrNop(log),
	}
}

// Process 处理一条支付任务。会话已结束或已过期属于正常结果，不返回错误
func (p *Processor) Process(ctx context.Context, job *queue.PaymentJob) error {
	if wait := job.ProcessAt.Sub(p.now()); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	outcome := p.defaultOutcome
	if job.Outcome != nil {
		outcome = *job.Outcome
	}

	result, err := p.verifier.Verify(ctx, job.SessionID, outcome)
	if err != nil {
		var pe *service.PaywallError
		if errors.As(err, &pe) {
			metrics.VerifyJobsProcessed.WithLabelValues("rejected").Inc()
			p.logger.Info("payment job rejected",
				zap.String("session_id", job.SessionID),
				zap.String("kind", string(pe.Kind)),
			)
			return nil
		}
		metrics.VerifyJobsProcessed.WithLabelValues("error").Inc()
		return fmt.Errorf("verify session %s: %w", job.SessionID, err)
	}

	metrics.VerifyJobsProcessed.WithLabelValues("ok").Inc()
	p.logger.Info("payment job processed",
		zap.String("session_id", job.SessionID),
		zap.Bool("outcome", outcome),
		zap.String("status", string(result.Session.Status)),
	)
	return nil
}

// Run 启动 workers 个消费协程，阻塞到 ctx 取消且所有协程退出
func (p *Processor) Run(ctx context.Context, source JobSource, workers int) {
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.loop(ctx, source, workerID)
		}(i)
	}
	wg.Wait()
}

func (p *Processor) loop(ctx context.Context, source JobSource, workerID int) {
	log := p.logger.With(zap.Int("worker", workerID))
	for {
		select {
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		default:
		}

		job, err := source.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("failed to pop payment job", zap.Error(err))
			// 避免 Redis 不可用时空转
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue // 超时，继续等待
		}

		if err := p.Process(ctx, job); err != nil && ctx.Err() == nil {
			log.Error("payment job failed", zap.String("session_id", job.SessionID), zap.Error(err))
		}
	}
}
