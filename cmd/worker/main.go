package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/database"
	"github.com/qs3c/mirror_server/internal/pkg/email"
	"github.com/qs3c/mirror_server/internal/pkg/logger"
	"github.com/qs3c/mirror_server/internal/pkg/metrics"
	"github.com/qs3c/mirror_server/internal/pkg/oss"
	"github.com/qs3c/mirror_server/internal/pkg/queue"
	"github.com/qs3c/mirror_server/internal/repository"
	"github.com/qs3c/mirror_server/internal/service"
	"github.com/qs3c/mirror_server/internal/worker"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	// 初始化数据库
	db, err := database.NewDB(&cfg.Database, false)
	if err != nil {
		zlog.Fatal("failed to connect database", zap.Error(err))
	}

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		zlog.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	sender := email.NewSMTPSender(&cfg.Email)
	mailQueue := queue.NewQueue(rdb, cfg.Queue.EmailQueue)
	processor := worker.NewProcessor(mailQueue, sender, metrics.New(), zlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		zlog.Info("received shutdown signal")
		cancel()
	}()

	var wg sync.WaitGroup

	// 初始化 OSS（可选），负责补归档收据
	if cfg.OSS.Enabled() {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			zlog.Warn("failed to init OSS client, rearchiver disabled", zap.Error(err))
		} else {
			receipts := service.NewReceiptService(
				repository.NewReceiptRepository(db),
				repository.NewUserRepository(db),
				ossClient,
				sender,
				cfg,
				zlog,
			)
			wg.Add(1)
			go func() {
				defer wg.Done()
				worker.NewRearchiver(receipts, zlog).Start(ctx)
			}()
		}
	}

	workers := cfg.Queue.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	zlog.Info("worker started", zap.String("queue", mailQueue.Name()), zap.Int("workers", workers))

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			processor.Run(ctx, workerID)
		}(i)
	}

	wg.Wait()
	zlog.Info("worker shutdown complete")
}
