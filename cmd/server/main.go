package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/campus_forum_server/config"
	"github.com/qs3c/campus_forum_server/internal/api"
	"github.com/qs3c/campus_forum_server/internal/api/handler"
	"github.com/qs3c/campus_forum_server/internal/database"
	"github.com/qs3c/campus_forum_server/internal/pkg/cron"
	"github.com/qs3c/campus_forum_server/internal/pkg/logger"
	"github.com/qs3c/campus_forum_server/internal/pkg/pubsub"
	"github.com/qs3c/campus_forum_server/internal/pkg/queue"
	"github.com/qs3c/campus_forum_server/internal/pkg/ws"
	"github.com/qs3c/campus_forum_server/internal/repository"
	"github.com/qs3c/campus_forum_server/internal/service"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	// 初始化数据库
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		zlog.Fatal("failed to connect database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zlog.Fatal("failed to migrate database", zap.Error(err))
	}
	zlog.Info("database connected", zap.String("driver", cfg.Database.Driver))

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		zlog.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()
	zlog.Info("redis connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化 Queue 和 Pub/Sub
	verifyQueue := queue.NewQueue(rdb, cfg.Paywall.VerifyQueue)
	publisher := pubsub.NewPublisher(rdb)
	subscriber := pubsub.NewSubscriber(rdb)

	// 会话事件推送到 WebSocket
	wsHub := ws.NewHub(zlog.Named("ws"))
	go func() {
		if err := subscriber.Subscribe(ctx, wsHub.HandleSessionEvent); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Error("session event subscriber stopped", zap.Error(err))
		}
	}()

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	store := repository.NewPaywallStore(db)

	// 初始化 Service
	catalogService := service.NewCatalogService(resourceRepo, store.Entitlements(), cfg.Paywall.DefaultCurrency)
	directoryService := service.NewDirectoryService(userRepo, resourceRepo)
	sessionManager := service.NewSessionManager(store, catalogService, directoryService, cfg, zlog.Named("paywall"),
		service.WithNotifier(publisher),
	)
	if cfg.Paywall.FreeUnlockEnabled {
		zlog.Warn("free unlock endpoint is enabled")
	}

	// 过期会话清理
	cronService := cron.NewService(sessionManager, cfg.Paywall.SweepInterval(), zlog.Named("cron"))
	cronService.Start()
	defer cronService.Stop()

	// 初始化 Handler
	paymentHandler := handler.NewPaymentHandler(sessionManager, directoryService, verifyQueue, cfg.Paywall.ProcessingDelay(), zlog)
	resourceHandler := handler.NewResourceHandler(sessionManager, catalogService, directoryService, zlog)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins, zlog.Named("ws"))

	// 初始化 Router
	router := api.NewRouter(paymentHandler, resourceHandler, websocketHandler, cfg, zlog.Named("http"))
	engine := router.Setup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		zlog.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	zlog.Info("received shutdown signal")

	cancel()
	zlog.Info("closing websocket connections", zap.Int("count", wsHub.ConnectionCount()))
	wsHub.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
	}
	zlog.Info("server stopped")
}
