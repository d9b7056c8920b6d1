package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mirror_server/internal/api/middleware"
	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/pkg/response"
	"github.com/qs3c/mirror_server/internal/service"
)

type GiftHandler struct {
	giftService    *service.GiftService
	paymentService *service.PaymentService
}

func NewGiftHandler(giftService *service.GiftService, paymentService *service.PaymentService) *GiftHandler {
	return &GiftHandler{
		giftService:    giftService,
		paymentService: paymentService,
	}
}

func (h *GiftHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrGiftAlreadyRedeemed):
		response.DuplicateError(c, err.Error())
	case errors.Is(err, service.ErrGiftExpired):
		response.NotEligibleError(c, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidGiftTier), errors.Is(err, service.ErrPriceNotConfigured):
		response.ParamError(c, err.Error())
	default:
		respondError(c, err)
	}
}

// Get 兑换前查看礼物，无需登录
// GET /api/v1/gifts/:code
func (h *GiftHandler) Get(c *gin.Context) {
	gift, err := h.giftService.Get(c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, gift)
}

// Redeem 兑换礼物码
// POST /api/v1/gifts/redeem
func (h *GiftHandler) Redeem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.RedeemGiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.giftService.Redeem(c.Request.Context(), userID, req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.SuccessWithMessage(c, "兑换成功", resp)
}

// ListSent 我送出的礼物
// GET /api/v1/gifts/sent
func (h *GiftHandler) ListSent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	gifts, err := h.giftService.ListSent(userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, gifts)
}

// Checkout 购买礼物，未登录也可以购买
// POST /api/v1/gifts/checkout
func (h *GiftHandler) Checkout(c *gin.Context) {
	var req dto.CreateGiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	var giverID *int64
	if userID, ok := middleware.GetUserID(c); ok {
		giverID = &userID
	} else if req.GiverEmail == "" {
		response.ParamError(c, "未登录时需要填写 giver_email")
		return
	}

	resp, err := h.paymentService.CreateGiftCheckout(c.Request.Context(), giverID, &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, resp)
}

// AdminCreate 管理员直接发放礼物码
// POST /api/v1/admin/gifts
func (h *GiftHandler) AdminCreate(c *gin.Context) {
	var req dto.CreateGiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	gift, err := h.giftService.Create(c.Request.Context(), &service.GiftInput{Request: req})
	if err != nil {
		h.fail(c, err)
		return
	}

	info, err := h.giftService.Get(gift.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, info)
}
