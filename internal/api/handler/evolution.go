package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/pkg/response"
	"github.com/qs3c/mirror_server/internal/service"
)

type EvolutionHandler struct {
	evolutionService *service.EvolutionService
}

func NewEvolutionHandler(evolutionService *service.EvolutionService) *EvolutionHandler {
	return &EvolutionHandler{
		evolutionService: evolutionService,
	}
}

// Eligibility 是否可以生成进化报告
// GET /api/v1/evolution/eligibility?dream_id=
func (h *EvolutionHandler) Eligibility(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	dreamID, ok := queryID(c, "dream_id")
	if !ok {
		return
	}

	info, err := h.evolutionService.Eligibility(userID, dreamID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, info)
}

// Create 生成进化报告
// POST /api/v1/evolution
func (h *EvolutionHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateEvolutionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, err.Error())
			return
		}
	}

	report, err := h.evolutionService.Create(c.Request.Context(), userID, req.DreamID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, report)
}

// List 报告列表
// GET /api/v1/evolution?dream_id=&page=1&page_size=20
func (h *EvolutionHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	dreamID, ok := queryID(c, "dream_id")
	if !ok {
		return
	}

	items, total, page, pageSize, err := h.evolutionService.List(userID, dreamID, queryInt(c, "page", 1), queryInt(c, "page_size", 20))
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Get 报告详情
// GET /api/v1/evolution/:id
func (h *EvolutionHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	report, err := h.evolutionService.Get(userID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, report)
}
