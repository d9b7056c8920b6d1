package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/pkg/response"
	"github.com/qs3c/mirror_server/internal/service"
)

// Stripe 单个事件最大 64KB
const maxWebhookBody = 65536

type PaymentHandler struct {
	paymentService *service.PaymentService
	log            *zap.Logger
}

func NewPaymentHandler(paymentService *service.PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		log:            log,
	}
}

func (h *PaymentHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPriceNotConfigured):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrNoBillingAccount):
		response.NotFoundError(c, err.Error())
	default:
		respondError(c, err)
	}
}

// Checkout 订阅结账
// POST /api/v1/payments/checkout
func (h *PaymentHandler) Checkout(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.paymentService.CreateCheckout(c.Request.Context(), userID, &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, resp)
}

// Portal 账单管理页
// POST /api/v1/payments/portal
func (h *PaymentHandler) Portal(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	resp, err := h.paymentService.CreatePortal(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, resp)
}

// Webhook 支付回调，签名错误返回 400，处理失败返回 500 让支付方重试
// POST /api/v1/payments/webhook
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.ParamError(c, "读取请求失败")
		return
	}

	err = h.paymentService.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, service.ErrInvalidWebhook):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrPaymentNotConfigured):
		response.UpstreamError(c, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		// 重试也找不到用户，直接确认
		h.log.Warn("webhook for unknown user acknowledged", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true})
	default:
		_ = c.Error(err)
		response.ServerError(c, "")
	}
}
