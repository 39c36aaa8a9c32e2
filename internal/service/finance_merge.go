package service

import (
	"encoding/json"
	"strconv"

	"gorm.io/datatypes"

	"amzfin_v1_202608/internal/model"
)

// ==================== 汇总字段合并 ====================
// 广告费/拒付/优惠券/调整额没有行项目表示，只能从已存汇总行取。
// 合并逻辑是纯函数：调用方负责先把本次新鲜汇总落库，再查重叠行

// SummaryFields 仅存在于汇总粒度的字段合集（金额以分为单位）
type SummaryFields struct {
	AdSpend          int64
	Chargeback       int64
	Coupon           int64
	AdjustmentCredit int64
	AdjustmentDebit  int64

	AdSpendBreakdown    map[string]int64
	ChargebackBreakdown map[string]int64
	CouponBreakdown     map[string]int64
	AdjustmentBreakdown map[string]int64
	FeeBreakdown        map[string]int64
}

// MergeSummaryFields 合并全部与请求区间重叠的已存汇总
// 每一行最多计一次；行自身的日期范围由仓库层的重叠查询保证
func MergeSummaryFields(summaries []model.RangeSummary) *SummaryFields {
	merged := &SummaryFields{
		AdSpendBreakdown:    make(map[string]int64),
		ChargebackBreakdown: make(map[string]int64),
		CouponBreakdown:     make(map[string]int64),
		AdjustmentBreakdown: make(map[string]int64),
		FeeBreakdown:        make(map[string]int64),
	}

	for _, s := range summaries {
		merged.AdSpend += s.AdSpendAmount
		merged.Chargeback += s.ChargebackAmount
		merged.Coupon += s.CouponAmount
		merged.AdjustmentCredit += s.AdjustmentCredit
		merged.AdjustmentDebit += s.AdjustmentDebit

		mergeCentsMap(merged.AdSpendBreakdown, s.AdSpendBreakdown)
		mergeCentsMap(merged.ChargebackBreakdown, s.ChargebackBreakdown)
		mergeCentsMap(merged.CouponBreakdown, s.CouponBreakdown)
		mergeCentsMap(merged.AdjustmentBreakdown, s.AdjustmentBreakdown)
		mergeCentsMap(merged.FeeBreakdown, s.FeeBreakdown)
	}

	return merged
}

func mergeCentsMap(dst map[string]int64, src datatypes.JSONMap) {
	for k, v := range src {
		dst[k] += jsonNumberCents(v)
	}
}

// jsonNumberCents JSONB 读出来的数值形态随驱动变化：
// JSONMap 的 Scan 用 UseNumber 解码，读库得到的是 json.Number，
// 内存中构造的则是 int64/float64，几种都要认
func jsonNumberCents(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return int64(f)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return int64(f)
	default:
		return 0
	}
}

// centsMapToJSON 写库方向：类型 → 分 转 JSONB
func centsMapToJSON(m map[string]int64) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
