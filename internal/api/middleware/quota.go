package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/mirror_server/internal/pkg/metrics"
	"github.com/qs3c/mirror_server/internal/pkg/response"
	"github.com/qs3c/mirror_server/internal/service"
)

// QuotaCheck 生成前的配额预检，真正的扣减在 ReflectionService 中原子完成
func QuotaCheck(quotaService *service.QuotaService, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		info, err := quotaService.GetQuotaInfo(userID)
		if err != nil {
			response.ServerError(c, "配额检查失败")
			c.Abort()
			return
		}

		if !info.CanReflect {
			if m != nil {
				m.QuotaRejections.Inc()
			}
			response.QuotaError(c, service.ErrQuotaExceeded.Error(), info)
			c.Abort()
			return
		}

		c.Next()
	}
}
