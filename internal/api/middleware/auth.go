package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mirror_server/internal/pkg/jwt"
	"github.com/qs3c/mirror_server/internal/pkg/response"
	"github.com/qs3c/mirror_server/internal/repository"
)

const (
	UserIDKey = "userID"
)

// bearerToken 从 Authorization 头取 token，websocket 握手时允许 query 参数 token
func bearerToken(c *gin.Context, allowQuery bool) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if allowQuery {
			if token := c.Query("token"); token != "" {
				return token, ""
			}
		}
		return "", "请提供认证信息"
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return "", "认证格式错误"
	}
	return tokenString, ""
}

func authenticate(jwtSecret string, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, msg := bearerToken(c, allowQuery)
		if msg != "" {
			response.AuthError(c, msg)
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, "认证失败或已过期")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// Auth JWT 认证中间件
func Auth(jwtSecret string) gin.HandlerFunc {
	return authenticate(jwtSecret, false)
}

// WebSocketAuth 浏览器无法为 websocket 设置请求头，额外接受 ?token=
func WebSocketAuth(jwtSecret string) gin.HandlerFunc {
	return authenticate(jwtSecret, true)
}

// OptionalAuth 可选认证中间件（不强制要求登录）
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, msg := bearerToken(c, false)
		if msg != "" {
			c.Next()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err == nil {
			c.Set(UserIDKey, claims.UserID)
		}

		c.Next()
	}
}

// AdminOnly 只允许管理员访问，需放在 Auth 之后
func AdminOnly(userRepo *repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		user, err := userRepo.GetByID(userID)
		if err != nil || !user.IsAdmin {
			response.PermissionError(c, "需要管理员权限")
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}
