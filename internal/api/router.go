package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/qs3c/campus_forum_server/config"
	"github.com/qs3c/campus_forum_server/internal/api/handler"
	"github.com/qs3c/campus_forum_server/internal/api/middleware"
)

type Router struct {
	paymentHandler   *handler.PaymentHandler
	resourceHandler  *handler.ResourceHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
	logger           *zap.Logger
}

func NewRouter(
	paymentHandler *handler.PaymentHandler,
	resourceHandler *handler.ResourceHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		paymentHandler:   paymentHandler,
		resourceHandler:  resourceHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
		logger:           logger,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if r.logger != nil {
		engine.Use(middleware.Logger(r.logger))
	}
	engine.Use(middleware.CORS(r.cfg.CORS))

	if r.cfg.Metrics.Enabled {
		engine.GET(r.cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	api := engine.Group("/api/v1")
	{
		// WebSocket
		if r.websocketHandler != nil {
			api.GET("/ws", r.websocketHandler.Handle)
		}

		// 访问状态（未登录视为未解锁）
		api.GET("/resources/:id/access", middleware.OptionalAuth(r.cfg.JWT.Secret), r.resourceHandler.Access)

		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			// 资源解锁
			resources := authenticated.Group("/resources")
			{
				resources.POST("/:id/unlock/initiate", r.paymentHandler.Initiate)
				resources.POST("/:id/unlock/free", r.resourceHandler.FreeUnlock)
			}

			// 支付会话
			payments := authenticated.Group("/payments/sessions")
			{
				payments.GET("", r.paymentHandler.List)
				payments.GET("/:session_id", r.paymentHandler.Get)
				payments.POST("/:session_id/process", r.paymentHandler.Process)
				payments.POST("/:session_id/verify", r.paymentHandler.Verify)
			}

			authenticated.GET("/user/entitlements", r.resourceHandler.Entitlements)
		}
	}

	return engine
}
