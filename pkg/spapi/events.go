package spapi

// ==================== 财务事件数据结构 ====================
// 远端返回的事件信封，按事件种类拆成固定字段的显式结构，
// 不在业务层探测 map 形状

// Money 金额
type Money struct {
	CurrencyCode   string  `json:"CurrencyCode"`
	CurrencyAmount float64 `json:"CurrencyAmount"`
}

// ChargeComponent 收费明细
// ChargeType: Principal | ShippingCharge | Tax | ShippingTax | Promotion | GiftWrap ...
type ChargeComponent struct {
	ChargeType   string `json:"ChargeType"`
	ChargeAmount Money  `json:"ChargeAmount"`
}

// FeeComponent 费用明细
// FeeType: Commission | FBAPerUnitFulfillmentFee | VariableClosingFee ...
type FeeComponent struct {
	FeeType   string `json:"FeeType"`
	FeeAmount Money  `json:"FeeAmount"`
}

// ShipmentItem 发货/退款事件中的单品行
// 退款事件里金额已带负号
type ShipmentItem struct {
	SellerSKU       string            `json:"SellerSKU"`
	QuantityShipped int               `json:"QuantityShipped"`
	ItemChargeList  []ChargeComponent `json:"ItemChargeList,omitempty"`
	ItemFeeList     []FeeComponent    `json:"ItemFeeList,omitempty"`

	// 退款走调整列表
	ItemChargeAdjustmentList []ChargeComponent `json:"ItemChargeAdjustmentList,omitempty"`
	ItemFeeAdjustmentList    []FeeComponent    `json:"ItemFeeAdjustmentList,omitempty"`
}

// ShipmentEvent 销售/退款事件
type ShipmentEvent struct {
	AmazonOrderID   string `json:"AmazonOrderId"`
	SellerOrderID   string `json:"SellerOrderId,omitempty"`
	MarketplaceName string `json:"MarketplaceName,omitempty"`
	PostedDate      string `json:"PostedDate"` // RFC3339

	ShipmentItemList           []ShipmentItem `json:"ShipmentItemList,omitempty"`
	ShipmentItemAdjustmentList []ShipmentItem `json:"ShipmentItemAdjustmentList,omitempty"`
}

// ServiceFeeEvent 服务费事件（仓储费、移除费等，无行项目归属）
type ServiceFeeEvent struct {
	AmazonOrderID string         `json:"AmazonOrderId,omitempty"`
	FeeReason     string         `json:"FeeReason,omitempty"`
	FeeList       []FeeComponent `json:"FeeList"`
}

// ProductAdsPaymentEvent 广告扣款事件
// 只在汇总粒度出现，没有行项目表示
type ProductAdsPaymentEvent struct {
	PostedDate       string `json:"postedDate"`
	TransactionType  string `json:"transactionType"` // charge | refund
	InvoiceID        string `json:"invoiceId"`
	TransactionValue Money  `json:"transactionValue"`
}

// AdjustmentEvent 平台调整事件（赔偿、预留结算等）
type AdjustmentEvent struct {
	AdjustmentType   string `json:"AdjustmentType"`
	PostedDate       string `json:"PostedDate"`
	AdjustmentAmount Money  `json:"AdjustmentAmount"`
}

// ChargebackEvent 拒付事件
type ChargebackEvent struct {
	AmazonOrderID    string `json:"AmazonOrderId"`
	PostedDate       string `json:"PostedDate"`
	ReasonCode       string `json:"ReasonCode,omitempty"`
	ChargebackAmount Money  `json:"ChargebackAmount"`
}

// CouponPaymentEvent 优惠券扣款事件
type CouponPaymentEvent struct {
	PostedDate              string `json:"PostedDate"`
	CouponID                string `json:"CouponId"`
	SellerCouponDescription string `json:"SellerCouponDescription,omitempty"`
	TotalAmount             Money  `json:"TotalAmount"`
}

// ==================== 事件组 ====================

// FinancialEvents 一页财务事件（事件组）
// 各子列表均可为空，解析层必须容忍缺段
type FinancialEvents struct {
	ShipmentEventList          []ShipmentEvent          `json:"ShipmentEventList,omitempty"`
	RefundEventList            []ShipmentEvent          `json:"RefundEventList,omitempty"`
	ServiceFeeEventList        []ServiceFeeEvent        `json:"ServiceFeeEventList,omitempty"`
	AdjustmentEventList        []AdjustmentEvent        `json:"AdjustmentEventList,omitempty"`
	ProductAdsPaymentEventList []ProductAdsPaymentEvent `json:"ProductAdsPaymentEventList,omitempty"`
	ChargebackEventList        []ChargebackEvent        `json:"ChargebackEventList,omitempty"`
	CouponPaymentEventList     []CouponPaymentEvent     `json:"CouponPaymentEventList,omitempty"`
}

// IsEmpty 整组无任何事件
func (e *FinancialEvents) IsEmpty() bool {
	return len(e.ShipmentEventList) == 0 &&
		len(e.RefundEventList) == 0 &&
		len(e.ServiceFeeEventList) == 0 &&
		len(e.AdjustmentEventList) == 0 &&
		len(e.ProductAdsPaymentEventList) == 0 &&
		len(e.ChargebackEventList) == 0 &&
		len(e.CouponPaymentEventList) == 0
}

// eventsEnvelope 财务事件接口的响应信封
type eventsEnvelope struct {
	Payload struct {
		FinancialEvents FinancialEvents `json:"FinancialEvents"`
		NextToken       string          `json:"NextToken"`
	} `json:"payload"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}
