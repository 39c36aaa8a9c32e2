package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"amzfin_v1_202608/internal/controller"
	"amzfin_v1_202608/internal/middleware"
)

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, financeCtl *controller.FinanceController) {
	// 健康检查
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API 路由组
	api := r.Group("/api")
	{
		finance := api.Group("/finance")
		{
			// POST /api/finance/sync
			// 缓存完整时不碰远端，重复请求零开销，不挂冷却
			finance.POST("/sync", financeCtl.Sync)

			// POST /api/finance/sync/trigger
			// 强制重拉会真实消耗远端配额，按区间冷却
			finance.POST("/sync/trigger",
				middleware.RefreshCooldown(5*time.Minute),
				financeCtl.ForceRefresh,
			)

			// GET /api/finance/summaries
			finance.GET("/summaries", financeCtl.ListSummaries)
		}
	}
}
