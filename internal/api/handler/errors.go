package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mirror_server/internal/api/middleware"
	"github.com/qs3c/mirror_server/internal/pkg/llm"
	"github.com/qs3c/mirror_server/internal/pkg/response"
	"github.com/qs3c/mirror_server/internal/service"
)

var notFoundErrors = []error{
	service.ErrUserNotFound,
	service.ErrDreamNotFound,
	service.ErrReflectionNotFound,
	service.ErrEvolutionNotFound,
	service.ErrGiftNotFound,
	service.ErrReceiptNotFound,
}

// respondError 处理各接口共有的业务错误，其余按 500 返回
func respondError(c *gin.Context, err error) {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			response.NotFoundError(c, target.Error())
			return
		}
	}

	var quotaErr *service.QuotaExceededError
	var eligibleErr *service.NotEligibleError
	var dreamLimitErr *service.DreamLimitError

	switch {
	case errors.As(err, &quotaErr):
		response.QuotaError(c, service.ErrQuotaExceeded.Error(), gin.H{
			"tier":  quotaErr.Tier,
			"limit": quotaErr.Limit,
			"used":  quotaErr.Used,
		})
	case errors.As(err, &eligibleErr):
		response.NotEligibleError(c, service.ErrNotEligible.Error(), gin.H{
			"tier": eligibleErr.Tier,
			"have": eligibleErr.Have,
			"need": eligibleErr.Need,
		})
	case errors.As(err, &dreamLimitErr):
		response.QuotaError(c, service.ErrDreamLimitReached.Error(), gin.H{
			"tier":  dreamLimitErr.Tier,
			"limit": dreamLimitErr.Limit,
		})
	case errors.Is(err, service.ErrMissingField):
		response.ParamError(c, err.Error())
	case errors.Is(err, llm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		response.TimeoutError(c, "生成超时，请稍后重试，本次不计入用量")
	case errors.Is(err, llm.ErrRateLimited):
		response.RateLimitError(c, "请求过于频繁，请稍后重试")
	case errors.Is(err, llm.ErrAuth):
		response.UpstreamAuthError(c, "生成服务配置异常，请联系管理员，本次不计入用量")
	case errors.Is(err, llm.ErrUpstream):
		response.UpstreamError(c, "生成服务暂时不可用，本次不计入用量")
	case errors.Is(err, service.ErrPaymentNotConfigured):
		response.UpstreamError(c, err.Error())
	default:
		_ = c.Error(err)
		response.ServerError(c, err.Error())
	}
}

// currentUser 取登录用户，未登录时直接写 401
func currentUser(c *gin.Context) (int64, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
	}
	return userID, ok
}

// pathID 解析路径中的 :id
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "无效的ID")
		return 0, false
	}
	return id, true
}

// queryID 解析可选的 ID 查询参数
func queryID(c *gin.Context, key string) (*int64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "无效的"+key)
		return nil, false
	}
	return &id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
