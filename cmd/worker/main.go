package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/qs3c/campus_forum_server/config"
	"github.com/qs3c/campus_forum_server/internal/database"
	"github.com/qs3c/campus_forum_server/internal/pkg/logger"
	"github.com/qs3c/campus_forum_server/internal/pkg/pubsub"
	"github.com/qs3c/campus_forum_server/internal/pkg/queue"
	"github.com/qs3c/campus_forum_server/internal/repository"
	"github.com/qs3c/campus_forum_server/internal/service"
	"github.com/qs3c/campus_forum_server/internal/worker"
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

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		zlog.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	verifyQueue := queue.NewQueue(rdb, cfg.Paywall.VerifyQueue)
	publisher := pubsub.NewPublisher(rdb)

	resourceRepo := repository.NewResourceRepository(db)
	store := repository.NewPaywallStore(db)
	catalogService := service.NewCatalogService(resourceRepo, store.Entitlements(), cfg.Paywall.DefaultCurrency)
	directoryService := service.NewDirectoryService(repository.NewUserRepository(db), resourceRepo)
	sessionManager := service.NewSessionManager(store, catalogService, directoryService, cfg, zlog.Named("paywall"),
		service.WithNotifier(publisher),
	)

	// 创建任务处理器
	processor := worker.NewProcessor(sessionManager, cfg.Paywall.Outcome(), zlog.Named("worker"))

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		zlog.Info("received shutdown signal")
		cancel()
	}()

	backlog, err := verifyQueue.Length(ctx)
	if err != nil {
		zlog.Warn("read queue length failed", zap.Error(err))
	}
	zlog.Info("worker started",
		zap.Int64("backlog", backlog),
		zap.Int("max_workers", cfg.Worker.MaxWorkers),
		zap.String("queue", verifyQueue.Name()),
		zap.Bool("simulated_outcome", cfg.Paywall.Outcome()),
	)
	processor.Run(ctx, verifyQueue, cfg.Worker.MaxWorkers)
	zlog.Info("worker shutdown complete")
}
