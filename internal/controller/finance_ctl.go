package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"amzfin_v1_202608/internal/api/dto"
	"amzfin_v1_202608/internal/apperr"
	"amzfin_v1_202608/internal/service"
)

// FinanceController 财务控制器
type FinanceController struct {
	svc service.FinanceSyncService
}

// NewFinanceController 创建财务控制器
func NewFinanceController(svc service.FinanceSyncService) *FinanceController {
	return &FinanceController{svc: svc}
}

// ==================== 财务同步 ====================

// Sync 同步并返回区间财务汇总
// POST /api/finance/sync
func (c *FinanceController) Sync(ctx *gin.Context) {
	var req dto.SyncRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "参数错误: " + err.Error()})
		return
	}

	start, end, ok := parseDateRange(ctx, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	resp, err := c.svc.Reconcile(ctx, start, end, req.IncludeTransactions)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"code": 0, "data": resp})
}

// ForceRefresh 无视缓存强制重拉
// POST /api/finance/sync/trigger?startDate=2006-01-02&endDate=2006-01-02
func (c *FinanceController) ForceRefresh(ctx *gin.Context) {
	start, end, ok := parseDateRange(ctx, ctx.Query("startDate"), ctx.Query("endDate"))
	if !ok {
		return
	}

	resp, err := c.svc.ForceRefresh(ctx, start, end)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"code": 0, "data": resp})
}

// ListSummaries 已存区间汇总列表
// GET /api/finance/summaries?limit=50
func (c *FinanceController) ListSummaries(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))

	items, err := c.svc.ListSummaries(ctx, limit)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"code": 0, "data": items})
}

// ==================== 辅助函数 ====================

// parseDateRange 解析并校验日期区间，失败时直接写响应
func parseDateRange(ctx *gin.Context, startStr, endStr string) (time.Time, time.Time, bool) {
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "起始日期格式错误，应为 YYYY-MM-DD"})
		return time.Time{}, time.Time{}, false
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "结束日期格式错误，应为 YYYY-MM-DD"})
		return time.Time{}, time.Time{}, false
	}
	if end.Before(start) {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "起始日期不能晚于结束日期"})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// writeError 业务错误 → HTTP 响应
// 只暴露错误类别和可读信息，底层错误链留在服务端日志
func writeError(ctx *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	ctx.JSON(status, gin.H{
		"code":    status,
		"kind":    string(kind),
		"message": apperr.MessageOf(err),
	})
}
