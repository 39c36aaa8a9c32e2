package service

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"amzfin_v1_202608/internal/model"
	"amzfin_v1_202608/pkg/spapi"
)

// ==================== 事件解析与聚合 ====================
// 本文件全部是纯函数：输入事件组/行项目，输出归一化结果，
// 不碰数据库、不发请求，方便单测

// SKUTotals 单 SKU 聚合
type SKUTotals struct {
	SKU          string
	InternalCode string
	Quantity     int
	Revenue      int64 // 分，不含税
	Fee          int64 // 分，绝对值
	Refund       int64 // 分，绝对值
	RefundCount  int
}

// GetNet 单 SKU 净收入（元）= 收入 - 费用 - 退款
func (s *SKUTotals) GetNet() float64 {
	return float64(s.Revenue-s.Fee-s.Refund) / 100
}

// EventTotals 一次解析的聚合结果（金额全部以分为单位）
type EventTotals struct {
	EventGroupCount  int
	UniqueOrderCount int

	Revenue          int64 // 不含税
	Tax              int64
	Fee              int64 // 绝对值合计
	Refund           int64 // 绝对值
	AdSpend          int64
	Chargeback       int64
	Coupon           int64
	AdjustmentCredit int64
	AdjustmentDebit  int64

	// 类型 → 金额（分）
	FeeBreakdown        map[string]int64
	AdSpendBreakdown    map[string]int64
	ChargebackBreakdown map[string]int64 // 键为拒付原因码
	CouponBreakdown     map[string]int64 // 键为优惠券 ID
	AdjustmentBreakdown map[string]int64

	// SKU → 聚合
	SKUMap map[string]*SKUTotals
}

func newEventTotals() *EventTotals {
	return &EventTotals{
		FeeBreakdown:        make(map[string]int64),
		AdSpendBreakdown:    make(map[string]int64),
		ChargebackBreakdown: make(map[string]int64),
		CouponBreakdown:     make(map[string]int64),
		AdjustmentBreakdown: make(map[string]int64),
		SKUMap:              make(map[string]*SKUTotals),
	}
}

// cents 元转分，四舍五入
func cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// ParseEventGroups 把远端事件组解析为行项目 + 聚合
// codeMap: 外部 SKU → 内部货号，查不到时货号留空
// 解析容错：单条事件缺字段或日期非法时跳过该条并记日志，不中断整体
func ParseEventGroups(groups []spapi.FinancialEvents, codeMap map[string]string) ([]model.LineItem, *EventTotals) {
	totals := newEventTotals()
	totals.EventGroupCount = len(groups)

	// 行项目按唯一键合并：同一订单同一 SKU 的多条同向明细合为一行
	itemIndex := make(map[string]*model.LineItem)
	orders := make(map[string]struct{})

	for _, group := range groups {
		// 1. 销售事件
		for _, ev := range group.ShipmentEventList {
			parseShipment(&ev, model.KindSale, ev.ShipmentItemList, codeMap, itemIndex, orders, totals)
		}

		// 2. 退款事件（明细走调整列表，金额自带负号）
		for _, ev := range group.RefundEventList {
			items := ev.ShipmentItemAdjustmentList
			if len(items) == 0 {
				items = ev.ShipmentItemList
			}
			parseShipment(&ev, model.KindRefund, items, codeMap, itemIndex, orders, totals)
		}

		// 3. 服务费事件（无行项目归属，只进汇总）
		for _, ev := range group.ServiceFeeEventList {
			for _, fee := range ev.FeeList {
				amount := abs(cents(fee.FeeAmount.CurrencyAmount))
				totals.Fee += amount
				totals.FeeBreakdown[feeKey(fee.FeeType, ev.FeeReason)] += amount
			}
		}

		// 4. 广告扣款
		for _, ev := range group.ProductAdsPaymentEventList {
			amount := abs(cents(ev.TransactionValue.CurrencyAmount))
			if ev.TransactionType == "refund" {
				totals.AdSpend -= amount
			} else {
				totals.AdSpend += amount
			}
			totals.AdSpendBreakdown[ev.TransactionType] += amount
		}

		// 5. 拒付，按原因码出明细
		for _, ev := range group.ChargebackEventList {
			amount := abs(cents(ev.ChargebackAmount.CurrencyAmount))
			totals.Chargeback += amount
			totals.ChargebackBreakdown[breakdownKey(ev.ReasonCode)] += amount
		}

		// 6. 优惠券，按券 ID 出明细
		for _, ev := range group.CouponPaymentEventList {
			amount := abs(cents(ev.TotalAmount.CurrencyAmount))
			totals.Coupon += amount
			totals.CouponBreakdown[breakdownKey(ev.CouponID)] += amount
		}

		// 7. 平台调整：正数计贷方，负数计借方（绝对值）
		for _, ev := range group.AdjustmentEventList {
			amount := cents(ev.AdjustmentAmount.CurrencyAmount)
			if amount >= 0 {
				totals.AdjustmentCredit += amount
			} else {
				totals.AdjustmentDebit += -amount
			}
			totals.AdjustmentBreakdown[ev.AdjustmentType] += amount
		}
	}

	totals.UniqueOrderCount = len(orders)

	// 稳定输出顺序，方便测试与批量入库
	items := make([]model.LineItem, 0, len(itemIndex))
	keys := make([]string, 0, len(itemIndex))
	for k := range itemIndex {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		items = append(items, *itemIndex[k])
	}

	return items, totals
}

// parseShipment 解析一条发货/退款事件的全部单品行
func parseShipment(ev *spapi.ShipmentEvent, kind string, items []spapi.ShipmentItem,
	codeMap map[string]string, itemIndex map[string]*model.LineItem,
	orders map[string]struct{}, totals *EventTotals) {

	if ev.AmazonOrderID == "" {
		log.Printf("[Calc] 跳过缺少订单号的 %s 事件", kind)
		return
	}
	posted, err := time.Parse(time.RFC3339, ev.PostedDate)
	if err != nil {
		log.Printf("[Calc] 跳过日期非法的事件 (order=%s): %v", ev.AmazonOrderID, err)
		return
	}
	orders[ev.AmazonOrderID] = struct{}{}

	for _, item := range items {
		if item.SellerSKU == "" {
			continue
		}

		// 1. 逐项累计收费（带符号）
		var principal, shipping, promoSigned, tax int64
		charges := item.ItemChargeList
		if kind == model.KindRefund && len(item.ItemChargeAdjustmentList) > 0 {
			charges = item.ItemChargeAdjustmentList
		}
		for _, c := range charges {
			amount := cents(c.ChargeAmount.CurrencyAmount)
			switch c.ChargeType {
			case "Principal", "GiftWrap":
				principal += amount
			case "ShippingCharge":
				shipping += amount
			case "Tax", "ShippingTax", "GiftWrapTax":
				tax += amount
			case "Promotion", "ShippingPromotion":
				promoSigned += amount // 促销在源数据里是负数
			}
		}

		// 2. 费用取绝对值
		var fee int64
		fees := item.ItemFeeList
		if kind == model.KindRefund && len(item.ItemFeeAdjustmentList) > 0 {
			fees = item.ItemFeeAdjustmentList
		}
		for _, f := range fees {
			amount := abs(cents(f.FeeAmount.CurrencyAmount))
			fee += amount
			totals.FeeBreakdown[f.FeeType] += amount
		}

		// 3. gross = principal + shipping - promotion（不含税）
		promotion := -promoSigned
		gross := principal + shipping - promotion
		net := gross - fee

		// 4. 合并进行项目索引
		key := fmt.Sprintf("%s|%d|%s|%s", ev.AmazonOrderID, posted.Unix(), item.SellerSKU, kind)
		line, ok := itemIndex[key]
		if !ok {
			line = &model.LineItem{
				OrderID:      ev.AmazonOrderID,
				PostedDate:   posted,
				SKU:          item.SellerSKU,
				Kind:         kind,
				InternalCode: codeMap[item.SellerSKU],
				Currency:     currencyOf(charges),
			}
			itemIndex[key] = line
		}
		line.Quantity += item.QuantityShipped
		line.PrincipalAmount += principal
		line.ShippingAmount += shipping
		line.PromotionAmount += promotion
		line.TaxAmount += tax
		line.FeeAmount += fee
		line.GrossAmount += gross
		line.NetAmount += net

		// 5. 进聚合
		totals.Tax += tax
		totals.Fee += fee

		sku := ensureSKU(totals, item.SellerSKU, codeMap)
		sku.Fee += fee
		if kind == model.KindRefund {
			totals.Refund += abs(gross)
			sku.Refund += abs(gross)
			sku.RefundCount++
		} else {
			totals.Revenue += gross
			sku.Revenue += gross
			sku.Quantity += item.QuantityShipped
		}
	}
}

func ensureSKU(totals *EventTotals, sku string, codeMap map[string]string) *SKUTotals {
	s, ok := totals.SKUMap[sku]
	if !ok {
		s = &SKUTotals{SKU: sku, InternalCode: codeMap[sku]}
		totals.SKUMap[sku] = s
	}
	return s
}

func feeKey(feeType, reason string) string {
	if feeType != "" {
		return feeType
	}
	if reason != "" {
		return reason
	}
	return "Other"
}

func breakdownKey(key string) string {
	if key == "" {
		return "Other"
	}
	return key
}

func currencyOf(charges []spapi.ChargeComponent) string {
	for _, c := range charges {
		if c.ChargeAmount.CurrencyCode != "" {
			return c.ChargeAmount.CurrencyCode
		}
	}
	return "USD"
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// ==================== 行项目回算 ====================

// LineItemTotals 从已入库行项目回算的聚合
// 收入/税/费用/退款永远以行项目为准回算，不信任缓存汇总里的同名字段
type LineItemTotals struct {
	UniqueOrderCount int
	Revenue          int64
	Tax              int64
	Fee              int64
	Refund           int64
	SKUMap           map[string]*SKUTotals
}

// ComputeLineItemTotals 回算区间内行项目的聚合
func ComputeLineItemTotals(items []model.LineItem) *LineItemTotals {
	totals := &LineItemTotals{SKUMap: make(map[string]*SKUTotals)}
	orders := make(map[string]struct{})

	for _, item := range items {
		orders[item.OrderID] = struct{}{}
		totals.Tax += item.TaxAmount
		totals.Fee += item.FeeAmount

		sku, ok := totals.SKUMap[item.SKU]
		if !ok {
			sku = &SKUTotals{SKU: item.SKU, InternalCode: item.InternalCode}
			totals.SKUMap[item.SKU] = sku
		}
		sku.Fee += item.FeeAmount

		if item.IsRefund() {
			totals.Refund += abs(item.GrossAmount)
			sku.Refund += abs(item.GrossAmount)
			sku.RefundCount++
		} else {
			totals.Revenue += item.GrossAmount
			sku.Revenue += item.GrossAmount
			sku.Quantity += item.Quantity
		}
	}

	totals.UniqueOrderCount = len(orders)
	return totals
}
