package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	rearchiveInterval = 5 * time.Minute
	rearchiveBatch    = 50
)

// PendingArchiver 补归档收据
type PendingArchiver interface {
	ArchivePending(ctx context.Context, limit int) (int, error)
}

// Rearchiver 后台重试归档失败的收据
type Rearchiver struct {
	archiver PendingArchiver
	interval time.Duration
	log      *zap.Logger
}

func NewRearchiver(archiver PendingArchiver, log *zap.Logger) *Rearchiver {
	return &Rearchiver{
		archiver: archiver,
		interval: rearchiveInterval,
		log:      log,
	}
}

// Start 启动后台循环，直到 ctx 取消
func (r *Rearchiver) Start(ctx context.Context) {
	// 启动后先执行一次
	r.run(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("rearchiver stopped")
			return
		case <-ticker.C:
			r.run(ctx)
		}
	}
}

func (r *Rearchiver) run(ctx context.Context) {
	n, err := r.archiver.ArchivePending(ctx, rearchiveBatch)
	if err != nil {
		r.log.Warn("rearchiver: failed to archive pending receipts", zap.Error(err))
		return
	}
	if n > 0 {
		r.log.Info("rearchiver: archived pending receipts", zap.Int("count", n))
	}
}
