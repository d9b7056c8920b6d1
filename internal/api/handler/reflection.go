package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/pkg/response"
	"github.com/qs3c/mirror_server/internal/service"
)

type ReflectionHandler struct {
	reflectionService *service.ReflectionService
}

func NewReflectionHandler(reflectionService *service.ReflectionService) *ReflectionHandler {
	return &ReflectionHandler{
		reflectionService: reflectionService,
	}
}

// Create 生成反思，同步等待模型返回，进度通过 websocket 推送
// POST /api/v1/reflections
func (h *ReflectionHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateReflectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.reflectionService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, resp)
}

// List 反思列表
// GET /api/v1/reflections?page=1&page_size=20&dream_id=&tone=&is_premium=&search=
func (h *ReflectionHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var q dto.ReflectionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	items, total, page, pageSize, err := h.reflectionService.List(userID, &q)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Get 反思详情
// GET /api/v1/reflections/:id
func (h *ReflectionHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	detail, err := h.reflectionService.Get(userID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, detail)
}

// Update 修改标题和标签
// PUT /api/v1/reflections/:id
func (h *ReflectionHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.UpdateReflectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	detail, err := h.reflectionService.Update(userID, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, detail)
}

// Rate 评分和反馈
// POST /api/v1/reflections/:id/rating
func (h *ReflectionHandler) Rate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.RateReflectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	detail, err := h.reflectionService.Rate(userID, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, detail)
}

// Delete 删除反思
// DELETE /api/v1/reflections/:id
func (h *ReflectionHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.reflectionService.Delete(userID, id); err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "删除成功", nil)
}
