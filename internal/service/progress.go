package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/qs3c/mirror_server/internal/pkg/pubsub"
)

// ProgressPublisher 生成进度推送，由 Redis pub/sub 转发到 websocket
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, msg *pubsub.ProgressMessage) error
}

// progress 推送失败不影响生成
type progress struct {
	pub ProgressPublisher
	log *zap.Logger
}

func (p progress) send(ctx context.Context, userID int64, kind, step string, resultID int64, errMsg string) {
	if p.pub == nil {
		return
	}
	msg := &pubsub.ProgressMessage{
		UserID:   userID,
		Kind:     kind,
		Step:     step,
		ResultID: resultID,
		Error:    errMsg,
	}
	if err := p.pub.PublishProgress(context.WithoutCancel(ctx), msg); err != nil {
		p.log.Debug("failed to publish progress", zap.Int64("user_id", userID), zap.String("step", step), zap.Error(err))
	}
}
