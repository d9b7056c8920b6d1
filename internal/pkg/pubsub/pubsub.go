package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelGenerationProgress = "mirror:generation_progress"
)

// 生成类型
const (
	KindReflection = "reflection"
	KindEvolution  = "evolution"
)

// ProgressMessage 生成进度消息
type ProgressMessage struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	Kind     string `json:"kind"`
	Step     string `json:"step"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	ResultID int64  `json:"result_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// 进度阶段常量
const (
	StepValidating = "validating"
	StepComposing  = "composing"
	StepGenerating = "generating"
	StepFormatting = "formatting"
	StepDone       = "done"
	StepFailed     = "failed"
)

// 阶段对应的进度百分比
var StepProgress = map[string]int{
	StepValidating: 10,
	StepComposing:  25,
	StepGenerating: 50,
	StepFormatting: 85,
	StepDone:       100,
}

// 阶段对应的消息
var StepMessages = map[string]string{
	StepValidating: "Reading your answers",
	StepComposing:  "Preparing your mirror",
	StepGenerating: "Reflecting",
	StepFormatting: "Polishing the reflection",
	StepDone:       "Your reflection is ready",
	StepFailed:     "Something went wrong",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Fill 按阶段补全进度和消息
func (m *ProgressMessage) Fill() {
	m.Type = m.Kind + "_progress"
	if m.Progress == 0 && m.Step != "" {
		m.Progress = StepProgress[m.Step]
	}
	if m.Message == "" && m.Step != "" {
		m.Message = StepMessages[m.Step]
	}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	msg.Fill()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, ChannelGenerationProgress, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度消息，直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage)) error {
	ps := s.client.Subscribe(ctx, ChannelGenerationProgress)
	defer ps.Close()

	// 确认订阅成功
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := ps.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var progressMsg ProgressMessage
			if err := json.Unmarshal([]byte(msg.Payload), &progressMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&progressMsg)
		}
	}
}
