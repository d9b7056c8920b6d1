package ws

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/qs3c/mirror_server/internal/pkg/pubsub"
)

// Forward 把 Redis 上的生成进度推送给在线用户，直到 ctx 取消
func (h *Hub) Forward(ctx context.Context, sub *pubsub.Subscriber) error {
	err := sub.Subscribe(ctx, func(msg *pubsub.ProgressMessage) {
		if !h.IsOnline(msg.UserID) {
			return
		}
		if err := h.SendToUser(msg.UserID, &Message{Type: msg.Type, Data: msg}); err != nil {
			h.log.Warn("forward progress failed", zap.Int64("user_id", msg.UserID), zap.Error(err))
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
