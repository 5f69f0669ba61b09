package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/campus_forum_server/config"
	"github.com/qs3c/campus_forum_server/internal/database"
	"github.com/qs3c/campus_forum_server/internal/pkg/logger"
	"github.com/qs3c/campus_forum_server/internal/repository"
	"github.com/qs3c/campus_forum_server/internal/service"
)

var (
	dryRun = flag.Bool("dry-run", false, "List expired sessions without changing them")
)

func main() {
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		zlog.Fatal("failed to connect database", zap.Error(err))
	}

	resourceRepo := repository.NewResourceRepository(db)
	store := repository.NewPaywallStore(db)
	catalogService := service.NewCatalogService(resourceRepo, store.Entitlements(), cfg.Paywall.DefaultCurrency)
	directoryService := service.NewDirectoryService(repository.NewUserRepository(db), resourceRepo)
	sessionManager := service.NewSessionManager(store, catalogService, directoryService, cfg, zlog.Named("paywall"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now().UTC()
	zlog.Info("starting expiry sweep", zap.Time("now", now), zap.Bool("dry_run", *dryRun))

	if *dryRun {
		candidates, err := sessionManager.ListExpiredCandidates(ctx, now)
		if err != nil {
			zlog.Fatal("failed to list expired sessions", zap.Error(err))
		}
		for _, s := range candidates {
			zlog.Info("would expire session",
				zap.String("session_id", s.SessionID),
				zap.String("status", string(s.Status)),
				zap.Time("expires_at", s.ExpiresAt),
			)
		}
		zlog.Info("dry run complete", zap.Int("candidates", len(candidates)))
		return
	}

	expired, err := sessionManager.SweepExpired(ctx, now)
	if err != nil {
		zlog.Fatal("sweep failed", zap.Error(err), zap.Int("expired", expired))
	}

	counts, err := store.Sessions().CountByStatus(ctx)
	if err != nil {
		zlog.Warn("failed to count sessions", zap.Error(err))
	}
	fields := []zap.Field{zap.Int("expired", expired)}
	for status, n := range counts {
		fields = append(fields, zap.Int64(string(status), n))
	}
	zlog.Info("sweep complete", fields...)
}
