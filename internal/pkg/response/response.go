package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodePermissionDenied = 1002
	CodeResourceNotFound = 1003
	CodeQuotaExceeded    = 1004
	CodeDuplicateAction  = 1005
	CodeNotEligible      = 1006
	CodeRateLimited      = 1007
	CodeUpstreamError    = 1008
	CodeUpstreamTimeout  = 1009
	CodeUpstreamAuth     = 1010
	CodeServerError      = 5000
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "invalid request",
	CodeAuthFailed:       "authentication required",
	CodePermissionDenied: "permission denied",
	CodeResourceNotFound: "not found",
	CodeQuotaExceeded:    "monthly reflection limit reached",
	CodeDuplicateAction:  "already done",
	CodeNotEligible:      "not eligible yet",
	CodeRateLimited:      "too many requests, please try again shortly",
	CodeUpstreamError:    "the reflection service is unavailable, please try again",
	CodeUpstreamTimeout:  "the reflection took too long, please try again",
	CodeUpstreamAuth:     "the reflection service is misconfigured, please contact support",
	CodeServerError:      "internal server error",
}

// 错误码对应的 HTTP 状态
var codeStatus = map[int]int{
	CodeSuccess:          http.StatusOK,
	CodeParamError:       http.StatusBadRequest,
	CodeAuthFailed:       http.StatusUnauthorized,
	CodePermissionDenied: http.StatusForbidden,
	CodeResourceNotFound: http.StatusNotFound,
	CodeQuotaExceeded:    http.StatusForbidden,
	CodeDuplicateAction:  http.StatusConflict,
	CodeNotEligible:      http.StatusForbidden,
	CodeRateLimited:      http.StatusTooManyRequests,
	CodeUpstreamError:    http.StatusBadGateway,
	CodeUpstreamTimeout:  http.StatusGatewayTimeout,
	CodeUpstreamAuth:     http.StatusServiceUnavailable,
	CodeServerError:      http.StatusInternalServerError,
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// PageData 分页数据结构
type PageData struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Items    interface{} `json:"items"`
}

// StatusOf 错误码对应的 HTTP 状态，未知错误码按 500 处理
func StatusOf(code int) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	SuccessWithMessage(c, "success", data)
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Created 资源创建成功
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessPage 分页成功响应
func SuccessPage(c *gin.Context, total int64, page, pageSize int, items interface{}) {
	Success(c, PageData{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Items:    items,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

// ErrorWithData 携带附加信息的错误响应
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(StatusOf(code), Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

// AuthError 认证失败
func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

// PermissionError 权限不足
func PermissionError(c *gin.Context, message string) {
	Error(c, CodePermissionDenied, message)
}

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// QuotaError 配额不足，data 中带剩余额度
func QuotaError(c *gin.Context, message string, data interface{}) {
	ErrorWithData(c, CodeQuotaExceeded, message, data)
}

// DuplicateError 重复操作
func DuplicateError(c *gin.Context, message string) {
	Error(c, CodeDuplicateAction, message)
}

// NotEligibleError 尚未满足条件
func NotEligibleError(c *gin.Context, message string, data interface{}) {
	ErrorWithData(c, CodeNotEligible, message, data)
}

// RateLimitError 上游限流
func RateLimitError(c *gin.Context, message string) {
	Error(c, CodeRateLimited, message)
}

// UpstreamError 上游服务异常
func UpstreamError(c *gin.Context, message string) {
	Error(c, CodeUpstreamError, message)
}

// UpstreamAuthError 上游凭证缺失或无效
func UpstreamAuthError(c *gin.Context, message string) {
	Error(c, CodeUpstreamAuth, message)
}

// TimeoutError 上游超时
func TimeoutError(c *gin.Context, message string) {
	Error(c, CodeUpstreamTimeout, message)
}

// ServerError 服务器错误，非 debug 模式下隐藏细节
func ServerError(c *gin.Context, message string) {
	if !gin.IsDebugging() {
		message = ""
	}
	Error(c, CodeServerError, message)
}
