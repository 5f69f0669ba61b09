package dto

import (
	"github.com/qs3c/campus_forum_server/internal/model"
)

// VerifyRequest 支付结果回调，outcome 为空时视为支付成功
type VerifyRequest struct {
	Outcome *bool `json:"outcome"`
}

// VerifyResponse 会话终态及（成功时的）授权记录
type VerifyResponse struct {
	Session     *model.PaymentSession `json:"session"`
	Entitlement *model.Entitlement    `json:"entitlement,omitempty"`
}

// AccessResponse 资源访问状态
type AccessResponse struct {
	ResourceID int64 `json:"resource_id"`
	IsLocked   bool  `json:"is_locked"`
	Entitled   bool  `json:"entitled"`
}

// SessionListRequest 会话列表请求参数
type SessionListRequest struct {
	Page     int `form:"page,default=1"`
	PageSize int `form:"page_size,default=20"`
}
