package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/database"
	"github.com/qs3c/mirror_server/internal/pkg/logger"
	"github.com/qs3c/mirror_server/internal/repository"
	"github.com/qs3c/mirror_server/internal/service"
)

var (
	dryRun      = flag.Bool("dry-run", true, "Only report what would change")
	pruneMonths = flag.Int("prune-months", -1, "Months of usage history to keep, 0 disables pruning (default from config)")
	timeout     = flag.Duration("timeout", 5*time.Minute, "Maximum run time")
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

	// 日志写到 stderr，stdout 只输出报告
	zlog, err := logger.NewWithWriter(cfg.Log, os.Stderr)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	db, err := database.NewDB(&cfg.Database, false)
	if err != nil {
		zlog.Fatal("failed to connect database", zap.Error(err))
	}

	months := *pruneMonths
	if months < 0 {
		months = cfg.Maintenance.UsageRetentionMonths
	}

	maintenance := service.NewMaintenanceService(
		repository.NewUserRepository(db),
		repository.NewSubscriptionRepository(db),
		repository.NewGiftRepository(db),
		repository.NewUsageRepository(db),
		cfg,
		zlog,
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report, err := maintenance.Run(ctx, *dryRun, months)
	if err != nil {
		zlog.Fatal("maintenance failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		zlog.Fatal("failed to write report", zap.Error(err))
	}
	if *dryRun {
		zlog.Info("dry run, nothing was changed; run with -dry-run=false to apply")
	}
}
