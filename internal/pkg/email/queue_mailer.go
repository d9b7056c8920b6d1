package email

import (
	"context"

	"github.com/qs3c/mirror_server/internal/pkg/queue"
)

// QueueMailer 将邮件写入 Redis 队列，由 worker 实际发送
type QueueMailer struct {
	q *queue.Queue
}

func NewQueueMailer(q *queue.Queue) *QueueMailer {
	return &QueueMailer{q: q}
}

// Send 入队
func (m *QueueMailer) Send(ctx context.Context, msg *Message) error {
	return m.q.Push(ctx, &queue.EmailJob{
		To:       msg.To,
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Template: msg.Template,
	})
}
