package dto

// ==================== 请求 ====================

// SyncRequest 财务同步请求
type SyncRequest struct {
	StartDate           string `json:"startDate" binding:"required"` // 2006-01-02
	EndDate             string `json:"endDate" binding:"required"`   // 2006-01-02
	IncludeTransactions bool   `json:"includeTransactions"`
}

// ==================== 响应 ====================

// 数据来源标识
const (
	SourceRemote        = "remote"         // 本次发生了真实拉取
	SourceCache         = "cache"          // 命中完整缓存
	SourceCacheDegraded = "cache_degraded" // 超窗降级：仅行项目回算，无汇总级字段
)

// FinanceSummary 区间财务汇总（金额单位：元）
type FinanceSummary struct {
	EventGroups  int `json:"eventGroups"`
	UniqueOrders int `json:"uniqueOrders"`
	UniqueSKUs   int `json:"uniqueSKUs"`

	TotalRevenue      float64 `json:"totalRevenue"` // 不含税
	TotalTax          float64 `json:"totalTax"`
	TotalFees         float64 `json:"totalFees"`
	TotalRefunds      float64 `json:"totalRefunds"`
	TotalAdSpend      float64 `json:"totalAdSpend"`
	TotalChargebacks  float64 `json:"totalChargebacks"`
	TotalCoupons      float64 `json:"totalCoupons"`
	AdjustmentCredits float64 `json:"adjustmentCredits"`
	AdjustmentDebits  float64 `json:"adjustmentDebits"`

	NetRevenue    float64 `json:"netRevenue"`    // 收入 - 费用 - 退款
	TrueNetProfit float64 `json:"trueNetProfit"` // 净收入 - 广告 - 优惠券 - 拒付 + 调整净额

	ProfitMargin  float64 `json:"profitMargin"`  // %，收入为 0 时为 0
	TrueNetMargin float64 `json:"trueNetMargin"` // %
	FeePercentage float64 `json:"feePercentage"` // %
	MarketingROI  float64 `json:"marketingROI"`  // 收入/广告费，广告费为 0 时为 0
}

// BreakdownEntry 金额明细条目，费用/广告费/拒付/优惠券共用
type BreakdownEntry struct {
	Type       string  `json:"type"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"` // 占该类合计 %
}

// AdjustmentBreakdown 调整明细，按符号分两侧（金额均为正数）
type AdjustmentBreakdown struct {
	Credits []BreakdownEntry `json:"credits"`
	Debits  []BreakdownEntry `json:"debits"`
}

// SKUEntry 单 SKU 结果
type SKUEntry struct {
	SKU          string  `json:"sku"`
	InternalCode string  `json:"internalCode,omitempty"`
	Units        int     `json:"units"`
	Revenue      float64 `json:"revenue"`
	Fees         float64 `json:"fees"`
	RefundAmount float64 `json:"refundAmount"`
	RefundCount  int     `json:"refundCount"`
	Net          float64 `json:"net"` // 收入 - 费用 - 退款
}

// TransactionItem 订单内单品明细
type TransactionItem struct {
	SKU          string  `json:"sku"`
	InternalCode string  `json:"internalCode,omitempty"`
	Quantity     int     `json:"quantity"`
	Gross        float64 `json:"gross"`
	Tax          float64 `json:"tax"`
	Fee          float64 `json:"fee"`
	Net          float64 `json:"net"`
}

// TransactionOrder 按订单重组的交易明细
type TransactionOrder struct {
	OrderID    string            `json:"orderId"`
	PostedDate string            `json:"postedDate"`
	Kind       string            `json:"kind"` // sale | refund
	Items      []TransactionItem `json:"items"`
}

// SyncResponse 财务同步响应
type SyncResponse struct {
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	DataSource string `json:"dataSource"`

	Summary             FinanceSummary      `json:"summary"`
	FeeBreakdown        []BreakdownEntry    `json:"feeBreakdown"`
	AdSpendBreakdown    []BreakdownEntry    `json:"adSpendBreakdown"`
	ChargebackBreakdown []BreakdownEntry    `json:"chargebackBreakdown"`
	CouponBreakdown     []BreakdownEntry    `json:"couponBreakdown"`
	AdjustmentBreakdown AdjustmentBreakdown `json:"adjustmentBreakdown"`
	TopSKUs             []SKUEntry          `json:"topSkus"`
	AllSKUs             []SKUEntry          `json:"allSkus"`

	Transactions []TransactionOrder `json:"transactions,omitempty"`
}

// SummaryListItem 已存区间汇总列表项
type SummaryListItem struct {
	StartDate    string  `json:"startDate"`
	EndDate      string  `json:"endDate"`
	EventGroups  int     `json:"eventGroups"`
	UniqueOrders int     `json:"uniqueOrders"`
	TotalRevenue float64 `json:"totalRevenue"`
	TotalAdSpend float64 `json:"totalAdSpend"`
	UpdatedAt    string  `json:"updatedAt"`
}
