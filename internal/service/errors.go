package service

import (
	"fmt"
)

type ErrorKind string

const (
	KindNotFound               ErrorKind = "NOT_FOUND"
	KindAlreadyEntitled        ErrorKind = "ALREADY_ENTITLED"
	KindInvalidTransition      ErrorKind = "INVALID_TRANSITION"
	KindSessionExpired         ErrorKind = "SESSION_EXPIRED"
	KindSessionAlreadyResolved ErrorKind = "SESSION_ALREADY_RESOLVED"
	KindResourceNotLocked      ErrorKind = "RESOURCE_NOT_LOCKED"
	KindFreeUnlockDisabled     ErrorKind = "FREE_UNLOCK_DISABLED"
	KindForbidden              ErrorKind = "FORBIDDEN"
)

// PaywallError 解锁流程的业务错误，errors.Is 按 Kind 匹配
type PaywallError struct {
	Kind    ErrorKind
	Message string
}

func (e *PaywallError) Error() string {
	return e.Message
}

func (e *PaywallError) Is(target error) bool {
	t, ok := target.(*PaywallError)
	return ok && t.Kind == e.Kind
}

// Retryable 客户端是否应该发起新的会话重试
func (e *PaywallError) Retryable() bool {
	return e.Kind == KindInvalidTransition || e.Kind == KindSessionExpired
}

var (
	ErrNotFound               = &PaywallError{Kind: KindNotFound, Message: "资源不存在"}
	ErrAlreadyEntitled        = &PaywallError{Kind: KindAlreadyEntitled, Message: "已解锁该资源"}
	ErrInvalidTransition      = &PaywallError{Kind: KindInvalidTransition, Message: "会话状态不允许该操作"}
	ErrSessionExpired         = &PaywallError{Kind: KindSessionExpired, Message: "支付会话已过期"}
	ErrSessionAlreadyResolved = &PaywallError{Kind: KindSessionAlreadyResolved, Message: "支付会话已结束"}
	ErrResourceNotLocked      = &PaywallError{Kind: KindResourceNotLocked, Message: "资源无需解锁"}
	ErrFreeUnlockDisabled     = &PaywallError{Kind: KindFreeUnlockDisabled, Message: "免费解锁未开放"}
	ErrForbidden              = &PaywallError{Kind: KindForbidden, Message: "无权访问该资源"}
)

func newError(kind ErrorKind, format string, args ...interface{}) *PaywallError {
	return &PaywallError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
