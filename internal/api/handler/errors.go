package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/campus_forum_server/internal/pkg/response"
	"github.com/qs3c/campus_forum_server/internal/service"
)

var kindCodes = map[service.ErrorKind]int{
	service.KindNotFound:               response.CodeResourceNotFound,
	service.KindForbidden:              response.CodePermissionDenied,
	service.KindAlreadyEntitled:        response.CodeAlreadyEntitled,
	service.KindInvalidTransition:      response.CodeInvalidTransition,
	service.KindSessionExpired:         response.CodeSessionExpired,
	service.KindSessionAlreadyResolved: response.CodeSessionResolved,
	service.KindResourceNotLocked:      response.CodeResourceNotLocked,
	service.KindFreeUnlockDisabled:     response.CodeFreeUnlockDisabled,
}

// ErrorData 业务错误附带的信息
type ErrorData struct {
	Kind      service.ErrorKind `json:"kind"`
	Retryable bool              `json:"retryable"`
}

// writeError 业务错误按类型返回对应错误码，其余视为服务器错误
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var pe *service.PaywallError
	if errors.As(err, &pe) {
		code, ok := kindCodes[pe.Kind]
		if !ok {
			code = response.CodeServerError
		}
		response.ErrorWithData(c, code, pe.Message, ErrorData{Kind: pe.Kind, Retryable: pe.Retryable()})
		return
	}

	log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	_ = c.Error(err)
	response.ServerError(c, "")
}
