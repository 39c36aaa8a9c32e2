package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== 强刷冷却中间件 ====================
// 只挂在强制重拉接口上：普通同步接口命中缓存时零远端开销，不需要冷却。
// 按日期区间维度冷却，不同区间互不影响

// RefreshLimiter 强刷冷却器
type RefreshLimiter struct {
	locks sync.Map // key -> *lockEntry
}

type lockEntry struct {
	lastTime time.Time
	mu       sync.Mutex
}

var globalLimiter = &RefreshLimiter{}

// GetLimiter 获取全局冷却器
func GetLimiter() *RefreshLimiter {
	return globalLimiter
}

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Check 检查是否允许执行，允许时顺带更新最后执行时间
func (r *RefreshLimiter) Check(key string, interval time.Duration) CheckResult {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	entry := actual.(*lockEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(entry.lastTime)
	if elapsed < interval {
		return CheckResult{Allowed: false, RetryAfter: interval - elapsed}
	}

	entry.lastTime = now
	return CheckResult{Allowed: true}
}

// Reset 重置指定 key 的冷却
func (r *RefreshLimiter) Reset(key string) {
	r.locks.Delete(key)
}

// RangeKey 生成日期区间冷却 Key
func RangeKey(start, end string) string {
	return fmt.Sprintf("refresh:%s:%s", start, end)
}

// RefreshCooldown 强刷冷却中间件
// interval: 冷却间隔，0 取默认 5 分钟
func RefreshCooldown(interval time.Duration) gin.HandlerFunc {
	if interval == 0 {
		interval = 5 * time.Minute
	}

	return func(c *gin.Context) {
		key := RangeKey(c.Query("startDate"), c.Query("endDate"))

		result := GetLimiter().Check(key, interval)
		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    429,
				"message": formatRetryMessage(result.RetryAfter),
				"data": gin.H{
					"retry_after": int(result.RetryAfter.Seconds()),
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func formatRetryMessage(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("强制刷新冷却中，请 %d 秒后重试", seconds)
	}

	minutes := seconds / 60
	remaining := seconds % 60
	if remaining == 0 {
		return fmt.Sprintf("强制刷新冷却中，请 %d 分钟后重试", minutes)
	}
	return fmt.Sprintf("强制刷新冷却中，请 %d 分 %d 秒后重试", minutes, remaining)
}
