package task

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"amzfin_v1_202608/internal/service"
)

// FinanceSyncTask 后台保鲜任务
// 定时重拉最近 N 天的窗口，把迟到入账的事件补进缓存
type FinanceSyncTask struct {
	svc          service.FinanceSyncService
	cron         *cron.Cron
	trailingDays int
	spec         string

	// 上一轮还没跑完就跳过本轮
	running sync.Mutex
}

// NewFinanceSyncTask 创建保鲜任务
func NewFinanceSyncTask(svc service.FinanceSyncService, trailingDays int, spec string) *FinanceSyncTask {
	if trailingDays <= 0 {
		trailingDays = 30
	}
	if spec == "" {
		spec = "0 0 * * * *" // 每小时整点
	}
	return &FinanceSyncTask{
		svc:          svc,
		cron:         cron.New(cron.WithSeconds()), // 支持秒级控制
		trailingDays: trailingDays,
		spec:         spec,
	}
}

// Start 启动定时任务
func (t *FinanceSyncTask) Start() {
	// 首次执行
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		log.Println("[Task] 服务启动，正在执行首次保鲜刷新...")
		t.refreshJob(ctx)
	}()

	_, err := t.cron.AddFunc(t.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		t.refreshJob(ctx)
	})
	if err != nil {
		log.Fatalf("无法启动财务保鲜任务: %v", err)
	}

	t.cron.Start()
	log.Printf("财务保鲜任务已启动 (窗口 %d 天, 调度 %q)", t.trailingDays, t.spec)
}

// Stop 停止定时任务
func (t *FinanceSyncTask) Stop() {
	t.cron.Stop()
}

func (t *FinanceSyncTask) refreshJob(ctx context.Context) {
	if !t.running.TryLock() {
		log.Println("[Cron] 上一轮保鲜刷新尚未结束，跳过本轮")
		return
	}
	defer t.running.Unlock()

	// 区间按 UTC 日期对齐，和接口侧的汇总键保持一致
	today := time.Now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -t.trailingDays)

	resp, err := t.svc.ForceRefresh(ctx, start, today)
	if err != nil {
		log.Printf("[Cron] 保鲜刷新失败 (%s ~ %s): %v",
			start.Format("2006-01-02"), today.Format("2006-01-02"), err)
		return
	}
	log.Printf("[Cron] 保鲜刷新完成 (%s ~ %s)：事件组 %d，订单 %d",
		resp.StartDate, resp.EndDate, resp.Summary.EventGroups, resp.Summary.UniqueOrders)
}
