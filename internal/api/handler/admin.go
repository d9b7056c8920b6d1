package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mirror_server/internal/pkg/response"
	"github.com/qs3c/mirror_server/internal/service"
)

type AdminHandler struct {
	maintenanceService *service.MaintenanceService
	retentionMonths    int
}

func NewAdminHandler(maintenanceService *service.MaintenanceService, retentionMonths int) *AdminHandler {
	return &AdminHandler{
		maintenanceService: maintenanceService,
		retentionMonths:    retentionMonths,
	}
}

// RunMaintenance 手动触发过期订阅处理和用量清理
// POST /api/v1/admin/maintenance?dry_run=true&prune_months=24
func (h *AdminHandler) RunMaintenance(c *gin.Context) {
	dryRun, _ := strconv.ParseBool(c.Query("dry_run"))
	months := queryInt(c, "prune_months", h.retentionMonths)
	if months < 0 {
		response.ParamError(c, "prune_months 不能为负数")
		return
	}

	report, err := h.maintenanceService.Run(c.Request.Context(), dryRun, months)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, report)
}
