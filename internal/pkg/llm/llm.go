package llm

import (
	"context"
	"errors"
	"fmt"
)

// Request 一次文本生成请求
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
	// ThinkingBudget 大于 0 时开启 extended thinking
	ThinkingBudget int
}

// Response 生成结果及 token 用量
type Response struct {
	Text         string
	Model        string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Client 文本生成服务
type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// 上游错误分类，调用方用 errors.Is 判断
var (
	ErrTimeout     = errors.New("llm request timed out")
	ErrAuth        = errors.New("llm credentials rejected")
	ErrRateLimited = errors.New("llm rate limited")
	ErrUpstream    = errors.New("llm upstream error")
)

// APIError 上游返回的错误
type APIError struct {
	Kind       error
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%v (%d): %s", e.Kind, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// Outcome 用于日志和指标的错误分类名
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
