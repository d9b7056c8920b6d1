package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/mirror_server/internal/pkg/email"
	"github.com/qs3c/mirror_server/internal/pkg/metrics"
	"github.com/qs3c/mirror_server/internal/pkg/queue"
)

// DefaultMaxAttempts 超过后进入死信队列
const DefaultMaxAttempts = 5

// Processor 邮件队列消费者
type Processor struct {
	queue       *queue.Queue
	sender      email.Mailer
	metrics     *metrics.Metrics
	log         *zap.Logger
	maxAttempts int
	// 重新入队前的等待，按次数线性增长
	backoff time.Duration
}

// NewProcessor 创建邮件处理器
func NewProcessor(q *queue.Queue, sender email.Mailer, m *metrics.Metrics, log *zap.Logger) *Processor {
	return &Processor{
		queue:       q,
		sender:      sender,
		metrics:     m,
		log:         log,
		maxAttempts: DefaultMaxAttempts,
		backoff:     2 * time.Second,
	}
}

// Process 发送一封邮件，失败时重新入队或放入死信队列
func (p *Processor) Process(ctx context.Context, job *queue.EmailJob) error {
	err := p.sender.Send(ctx, &email.Message{
		To:       job.To,
		Subject:  job.Subject,
		HTML:     job.HTML,
		Template: job.Template,
	})
	if err == nil {
		p.observe(job.Template, "sent")
		p.log.Info("email sent",
			zap.String("job_id", job.ID),
			zap.String("template", job.Template),
			zap.Int("attempts", job.Attempts+1))
		return nil
	}

	job.Attempts++
	job.LastError = err.Error()

	if job.Attempts >= p.maxAttempts {
		p.observe(job.Template, "dead")
		p.log.Error("email buried after retries",
			zap.String("job_id", job.ID),
			zap.String("template", job.Template),
			zap.Int("attempts", job.Attempts),
			zap.Error(err))
		if buryErr := p.queue.Bury(ctx, job); buryErr != nil {
			return fmt.Errorf("bury job %s: %w", job.ID, buryErr)
		}
		return err
	}

	p.observe(job.Template, "retry")
	p.log.Warn("email failed, retrying",
		zap.String("job_id", job.ID),
		zap.Int("attempts", job.Attempts),
		zap.Error(err))

	select {
	case <-ctx.Done():
	case <-time.After(p.backoff * time.Duration(job.Attempts)):
	}
	// ctx 取消时也要放回队列，避免丢信
	if pushErr := p.queue.Push(context.WithoutCancel(ctx), job); pushErr != nil {
		return fmt.Errorf("requeue job %s: %w", job.ID, pushErr)
	}
	return err
}

func (p *Processor) observe(template, outcome string) {
	if p.metrics != nil {
		p.metrics.EmailsQueued.WithLabelValues(template, outcome).Inc()
	}
}

// Run 阻塞消费队列直到 ctx 取消
func (p *Processor) Run(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			p.log.Info("mail worker shutting down", zap.Int("worker", workerID))
			return
		}

		job, err := p.queue.Pop(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("failed to pop email job", zap.Int("worker", workerID), zap.Error(err))
			continue
		}
		if job == nil {
			continue // 超时，继续等待
		}

		_ = p.Process(ctx, job)
	}
}
