package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mirror_server/internal/pkg/response"
	"github.com/qs3c/mirror_server/internal/service"
)

type ReceiptHandler struct {
	receiptService *service.ReceiptService
}

func NewReceiptHandler(receiptService *service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{
		receiptService: receiptService,
	}
}

// List 收据列表
// GET /api/v1/receipts?page=1&page_size=20
func (h *ReceiptHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	items, total, page, pageSize, err := h.receiptService.List(userID, queryInt(c, "page", 1), queryInt(c, "page_size", 20))
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Get 收据详情
// GET /api/v1/receipts/:id
func (h *ReceiptHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	receipt, err := h.receiptService.Get(userID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, receipt)
}

// HTML 可打印的收据页面
// GET /api/v1/receipts/:id/html
func (h *ReceiptHandler) HTML(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	html, err := h.receiptService.HTML(userID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
