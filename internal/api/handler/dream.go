package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/pkg/response"
	"github.com/qs3c/mirror_server/internal/service"
)

type DreamHandler struct {
	dreamService *service.DreamService
}

func NewDreamHandler(dreamService *service.DreamService) *DreamHandler {
	return &DreamHandler{
		dreamService: dreamService,
	}
}

func (h *DreamHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidTargetDate), errors.Is(err, service.ErrInvalidDreamState):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrDreamNotActive):
		response.DuplicateError(c, err.Error())
	default:
		respondError(c, err)
	}
}

// Create 创建梦想
// POST /api/v1/dreams
func (h *DreamHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateDreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	dream, err := h.dreamService.Create(userID, &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Created(c, dream)
}

// List 梦想列表
// GET /api/v1/dreams?status=active
func (h *DreamHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	dreams, err := h.dreamService.List(userID, c.Query("status"))
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, dreams)
}

// Get 梦想详情
// GET /api/v1/dreams/:id
func (h *DreamHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	dreamID, ok := pathID(c)
	if !ok {
		return
	}

	dream, err := h.dreamService.Get(userID, dreamID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, dream)
}

// Update 更新梦想
// PUT /api/v1/dreams/:id
func (h *DreamHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	dreamID, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.UpdateDreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	dream, err := h.dreamService.Update(userID, dreamID, &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, dream)
}

// UpdateStatus 完成、归档或放下梦想
// PATCH /api/v1/dreams/:id/status
func (h *DreamHandler) UpdateStatus(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	dreamID, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.UpdateDreamStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	dream, err := h.dreamService.UpdateStatus(userID, dreamID, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, dream)
}

// Delete 删除梦想，关联的反思保留
// DELETE /api/v1/dreams/:id
func (h *DreamHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	dreamID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.dreamService.Delete(userID, dreamID); err != nil {
		h.fail(c, err)
		return
	}

	response.SuccessWithMessage(c, "删除成功", nil)
}
