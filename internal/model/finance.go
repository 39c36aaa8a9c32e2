package model

import (
	"time"

	"gorm.io/datatypes"
)

// ==================== 交易类型常量 ====================

// LineItemKind 行项目交易类型
const (
	KindSale   = "sale"   // 销售
	KindRefund = "refund" // 退款
)

// ==================== LineItem 财务行项目 ====================

// LineItem 归一化后的交易行项目
// 唯一键 = (order_id, posted_date, sku, kind)，只增不改：
// 重复同步同一区间时，去重检查保证不会插入重复行
type LineItem struct {
	ID int64 `gorm:"primaryKey;autoIncrement"`

	OrderID    string    `gorm:"size:64;not null;uniqueIndex:uk_line_item,priority:1"`
	PostedDate time.Time `gorm:"not null;index;uniqueIndex:uk_line_item,priority:2"`
	SKU        string    `gorm:"size:100;not null;index;uniqueIndex:uk_line_item,priority:3"`
	Kind       string    `gorm:"size:16;not null;uniqueIndex:uk_line_item,priority:4"`

	// 内部货号（由商品映射表换算，可能为空）
	InternalCode string `gorm:"size:100;index"`

	Quantity int `gorm:"default:0"`

	// 金额（分为单位存储；退款行为负数，与源数据符号一致）
	PrincipalAmount int64
	ShippingAmount  int64
	PromotionAmount int64
	TaxAmount       int64
	FeeAmount       int64 // 各类费用绝对值合计

	// 计算字段：gross = principal + shipping - promotion（不含税）
	GrossAmount int64
	// net = gross - fee
	NetAmount int64

	Currency string `gorm:"size:10;default:USD"`

	CreatedAt time.Time
}

func (*LineItem) TableName() string {
	return "finance_line_items"
}

// GetGross 获取毛收入（元）
func (l *LineItem) GetGross() float64 {
	return float64(l.GrossAmount) / 100
}

// GetNet 获取净收入（元）
func (l *LineItem) GetNet() float64 {
	return float64(l.NetAmount) / 100
}

// GetTax 获取税额（元）
func (l *LineItem) GetTax() float64 {
	return float64(l.TaxAmount) / 100
}

// GetFee 获取费用（元）
func (l *LineItem) GetFee() float64 {
	return float64(l.FeeAmount) / 100
}

// IsRefund 是否退款行
func (l *LineItem) IsRefund() bool {
	return l.Kind == KindRefund
}

// ==================== RangeSummary 区间汇总 ====================

// RangeSummary 精确日期区间的聚合缓存
// 唯一键 = (start_date, end_date)，整行 Upsert，禁止跨区间部分更新。
// 广告费/拒付/优惠券/调整额没有行项目表示，只能从这里取
type RangeSummary struct {
	ID int64 `gorm:"primaryKey;autoIncrement"`

	StartDate time.Time `gorm:"not null;index;uniqueIndex:uk_range,priority:1"`
	EndDate   time.Time `gorm:"not null;index;uniqueIndex:uk_range,priority:2"`

	EventGroupCount  int
	UniqueOrderCount int

	// 金额（分为单位存储）
	RevenueAmount    int64 // 不含税
	TaxAmount        int64
	FeeAmount        int64
	RefundAmount     int64 // 绝对值
	AdSpendAmount    int64
	ChargebackAmount int64
	CouponAmount     int64
	AdjustmentCredit int64
	AdjustmentDebit  int64

	// 类型 → 金额（分）明细
	FeeBreakdown        datatypes.JSONMap `gorm:"type:jsonb"`
	AdSpendBreakdown    datatypes.JSONMap `gorm:"type:jsonb"`
	ChargebackBreakdown datatypes.JSONMap `gorm:"type:jsonb"`
	CouponBreakdown     datatypes.JSONMap `gorm:"type:jsonb"`
	AdjustmentBreakdown datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (*RangeSummary) TableName() string {
	return "finance_range_summaries"
}

// GetRevenue 获取收入（元）
func (s *RangeSummary) GetRevenue() float64 {
	return float64(s.RevenueAmount) / 100
}

// GetAdSpend 获取广告费（元）
func (s *RangeSummary) GetAdSpend() float64 {
	return float64(s.AdSpendAmount) / 100
}

// Overlaps 与 [start, end] 是否有交集
func (s *RangeSummary) Overlaps(start, end time.Time) bool {
	return !s.StartDate.After(end) && !s.EndDate.Before(start)
}

// ==================== ProductMapping 商品映射 ====================

// ProductMapping 外部 SKU → 内部货号，多对一
// 由商品目录模块维护，本引擎只读
type ProductMapping struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	ExternalSKU  string `gorm:"size:100;uniqueIndex;not null"`
	InternalCode string `gorm:"size:100;index;not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (*ProductMapping) TableName() string {
	return "product_mappings"
}
