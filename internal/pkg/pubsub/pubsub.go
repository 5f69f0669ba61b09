package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/campus_forum_server/internal/model"
)

const (
	ChannelSessionEvents = "payment_session_events"

	EventSessionResolved = "payment_session_resolved"
)

// SessionEvent 支付会话进入终态的通知
type SessionEvent struct {
	Type       string              `json:"type"`
	UserID     int64               `json:"user_id"`
	SessionID  string              `json:"session_id"`
	ResourceID int64               `json:"resource_id"`
	Status     model.SessionStatus `json:"status"`
	Message    string              `json:"message,omitempty"`
	Retryable  bool                `json:"retryable"`
}

// 终态对应的提示消息
var StatusMessages = map[model.SessionStatus]string{
	model.SessionSucceeded: "支付成功，资源已解锁",
	model.SessionFailed:    "支付失败",
	model.SessionExpired:   "支付会话已过期，请重新发起",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish 发布会话事件
func (p *Publisher) Publish(ctx context.Context, event *SessionEvent) error {
	if event.Message == "" {
		event.Message = StatusMessages[event.Status]
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	return p.client.Publish(ctx, ChannelSessionEvents, data).Err()
}

// SessionResolved 会话终态通知，失败和过期的会话可以重新发起
func (p *Publisher) SessionResolved(ctx context.Context, session *model.PaymentSession) error {
	return p.Publish(ctx, &SessionEvent{
		Type:       EventSessionResolved,
		UserID:     session.UserID,
		SessionID:  session.SessionID,
		ResourceID: session.ResourceID,
		Status:     session.Status,
		Retryable:  session.Status == model.SessionFailed || session.Status == model.SessionExpired,
	})
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅会话事件，直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*SessionEvent)) error {
	ps := s.client.Subscribe(ctx, ChannelSessionEvents)
	defer ps.Close()

	// 等待订阅确认，避免之后发布的消息丢失
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := ps.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue // 忽略解析错误
			}

			handler(&event)
		}
	}
}
