package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/pkg/response"
	"github.com/qs3c/mirror_server/internal/service"
)

const defaultHistoryMonths = 6

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GetProfile 获取当前用户信息
// GET /api/v1/user/profile
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	profile, err := h.userService.GetProfile(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, profile)
}

// UpdateProfile 更新用户信息
// PUT /api/v1/user/profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	profile, err := h.userService.UpdateProfile(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, profile)
}

// GetUsage 本月配额
// GET /api/v1/user/usage
func (h *UserHandler) GetUsage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	info, err := h.userService.GetUsage(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, info)
}

// UsageHistory 最近几个月的用量
// GET /api/v1/user/usage/history?months=6
func (h *UserHandler) UsageHistory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	months := queryInt(c, "months", defaultHistoryMonths)
	if months < 1 || months > 24 {
		response.ParamError(c, "months 取值范围为 1-24")
		return
	}

	items, err := h.userService.UsageHistory(userID, months)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, items)
}

// Plans 套餐列表
// GET /api/v1/plans
func (h *UserHandler) Plans(c *gin.Context) {
	response.Success(c, h.userService.Plans())
}
