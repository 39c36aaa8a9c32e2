package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"amzfin_v1_202608/internal/api/dto"
	"amzfin_v1_202608/internal/apperr"
	"amzfin_v1_202608/internal/model"
	"amzfin_v1_202608/internal/repository"
	"amzfin_v1_202608/pkg/spapi"
)

// ==================== 财务同步服务 ====================

const topSKULimit = 10

// EventsFetcher 远端事件拉取接口（测试时替换为假实现）
type EventsFetcher interface {
	FetchEvents(ctx context.Context, start, end time.Time) ([]spapi.FinancialEvents, error)
}

// FinanceSyncService 财务同步服务接口
type FinanceSyncService interface {
	// Reconcile 对账：缓存完整则不碰远端，否则拉取补齐后统一回算
	Reconcile(ctx context.Context, start, end time.Time, includeTransactions bool) (*dto.SyncResponse, error)
	// ForceRefresh 无视缓存强制重拉（去重键保证幂等）
	ForceRefresh(ctx context.Context, start, end time.Time) (*dto.SyncResponse, error)
	ListSummaries(ctx context.Context, limit int) ([]dto.SummaryListItem, error)
}

type financeSyncService struct {
	fetcher     EventsFetcher
	lineRepo    repository.LineItemRepository
	summaryRepo repository.RangeSummaryRepository
	mappingRepo repository.ProductMappingRepository
	audit       AuditService
	batchSize   int
}

// NewFinanceSyncService 创建财务同步服务
func NewFinanceSyncService(
	fetcher EventsFetcher,
	lineRepo repository.LineItemRepository,
	summaryRepo repository.RangeSummaryRepository,
	mappingRepo repository.ProductMappingRepository,
	audit AuditService,
	batchSize int,
) FinanceSyncService {
	return &financeSyncService{
		fetcher:     fetcher,
		lineRepo:    lineRepo,
		summaryRepo: summaryRepo,
		mappingRepo: mappingRepo,
		audit:       audit,
		batchSize:   batchSize,
	}
}

func (s *financeSyncService) Reconcile(ctx context.Context, start, end time.Time, includeTransactions bool) (*dto.SyncResponse, error) {
	return s.reconcile(ctx, start, end, includeTransactions, false)
}

func (s *financeSyncService) ForceRefresh(ctx context.Context, start, end time.Time) (*dto.SyncResponse, error) {
	return s.reconcile(ctx, start, end, false, true)
}

// reconcile 对账主流程
func (s *financeSyncService) reconcile(ctx context.Context, start, end time.Time, includeTransactions, force bool) (*dto.SyncResponse, error) {
	// 1. 入参校验
	if end.Before(start) {
		return nil, apperr.New(apperr.KindValidation, "起始日期晚于结束日期")
	}
	// 查询用的区间终点取当日末，入库的汇总键保持日期零点
	rangeEnd := end.Add(24*time.Hour - time.Second)

	// 2. 缓存体检：行项目数量 + 精确区间汇总
	cachedCount, err := s.lineRepo.CountInRange(ctx, start, rangeEnd)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, err, "行项目统计失败")
	}
	exact, err := s.summaryRepo.GetExact(ctx, start, end)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Wrap(apperr.KindPersistence, err, "汇总查询失败")
	}
	hasComplete := cachedCount > 0 && exact != nil

	// 3. 决策：远端单次窗口有限，超窗区间只能走缓存。
	// 窗口按日期跨度算，恰好 180 天的区间仍可拉取
	withinWindow := end.Sub(start) <= spapi.MaxRangeDays*24*time.Hour
	shouldFetch := (force || !hasComplete) && withinWindow

	source := dto.SourceCache
	var freshTotals *EventTotals

	if shouldFetch {
		freshTotals, exact, err = s.fetchAndPersist(ctx, start, end, rangeEnd)
		if err != nil {
			// 拉取或整体入库失败即中止，绝不返回半套数据
			return nil, err
		}
		source = dto.SourceRemote
	} else if !hasComplete && !withinWindow {
		log.Printf("[FinanceSync] 区间 %s ~ %s 超过 %d 天窗口且缓存不完整，降级为仅缓存回算",
			start.Format("2006-01-02"), end.Format("2006-01-02"), spapi.MaxRangeDays)
		source = dto.SourceCacheDegraded
	}

	// 4. 回算：收入/税/费用/退款永远从行项目重算
	items, err := s.lineRepo.ListInRange(ctx, start, rangeEnd)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, err, "行项目查询失败")
	}
	lineTotals := ComputeLineItemTotals(items)

	// 5. 汇总级字段：广告费等只存在于汇总行，取全部重叠行合并
	overlapping, err := s.summaryRepo.ListOverlapping(ctx, start, end)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, err, "汇总查询失败")
	}
	merged := MergeSummaryFields(overlapping)

	// 6. 组装响应
	resp := s.buildResponse(start, end, source, lineTotals, merged, freshTotals, exact)
	if includeTransactions {
		resp.Transactions = buildTransactions(items)
	}
	return resp, nil
}

// fetchAndPersist 拉取远端事件并落库，返回本次解析聚合与新写入的精确汇总
func (s *financeSyncService) fetchAndPersist(ctx context.Context, start, end, rangeEnd time.Time) (*EventTotals, *model.RangeSummary, error) {
	groups, err := s.fetcher.FetchEvents(ctx, start, rangeEnd)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[FinanceSync] 拉取完成 %s ~ %s：%d 个事件组",
		start.Format("2006-01-02"), end.Format("2006-01-02"), len(groups))

	codeMap, err := s.mappingRepo.GetCodeMap(ctx)
	if err != nil {
		log.Printf("[FinanceSync] 商品映射读取失败，货号留空: %v", err)
		codeMap = map[string]string{}
	}

	lineItems, totals := ParseEventGroups(groups, codeMap)

	inserted, err := s.lineRepo.CreateBatch(ctx, lineItems, s.batchSize)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindPersistence, err, "行项目入库失败")
	}
	log.Printf("[FinanceSync] 行项目入库：解析 %d 行，新增 %d 行（其余命中去重键）", len(lineItems), inserted)

	// 汇总只在真实拉取后写，键严格等于请求区间
	summary := &model.RangeSummary{
		StartDate:           start,
		EndDate:             end,
		EventGroupCount:     totals.EventGroupCount,
		UniqueOrderCount:    totals.UniqueOrderCount,
		RevenueAmount:       totals.Revenue,
		TaxAmount:           totals.Tax,
		FeeAmount:           totals.Fee,
		RefundAmount:        totals.Refund,
		AdSpendAmount:       totals.AdSpend,
		ChargebackAmount:    totals.Chargeback,
		CouponAmount:        totals.Coupon,
		AdjustmentCredit:    totals.AdjustmentCredit,
		AdjustmentDebit:     totals.AdjustmentDebit,
		FeeBreakdown:        centsMapToJSON(totals.FeeBreakdown),
		AdSpendBreakdown:    centsMapToJSON(totals.AdSpendBreakdown),
		ChargebackBreakdown: centsMapToJSON(totals.ChargebackBreakdown),
		CouponBreakdown:     centsMapToJSON(totals.CouponBreakdown),
		AdjustmentBreakdown: centsMapToJSON(totals.AdjustmentBreakdown),
	}
	if err := s.summaryRepo.Upsert(ctx, summary); err != nil {
		return nil, nil, apperr.Wrap(apperr.KindPersistence, err, "区间汇总写入失败")
	}

	// 审计失败只记日志
	if s.audit != nil {
		s.audit.Record(ctx, start, end, groups, len(lineItems), int(inserted))
	}

	return totals, summary, nil
}

// buildResponse 组装同步响应
func (s *financeSyncService) buildResponse(start, end time.Time, source string,
	lineTotals *LineItemTotals, merged *SummaryFields,
	freshTotals *EventTotals, exact *model.RangeSummary) *dto.SyncResponse {

	revenue := dollars(lineTotals.Revenue)
	fees := dollars(lineTotals.Fee)
	refunds := dollars(lineTotals.Refund)
	adSpend := dollars(merged.AdSpend)
	coupons := dollars(merged.Coupon)
	chargebacks := dollars(merged.Chargeback)
	adjCredit := dollars(merged.AdjustmentCredit)
	adjDebit := dollars(merged.AdjustmentDebit)

	netRevenue := revenue - fees - refunds
	trueNet := netRevenue - adSpend - coupons - chargebacks + adjCredit - adjDebit

	eventGroups := 0
	switch {
	case freshTotals != nil:
		eventGroups = freshTotals.EventGroupCount
	case exact != nil:
		eventGroups = exact.EventGroupCount
	}

	summary := dto.FinanceSummary{
		EventGroups:       eventGroups,
		UniqueOrders:      lineTotals.UniqueOrderCount,
		UniqueSKUs:        len(lineTotals.SKUMap),
		TotalRevenue:      revenue,
		TotalTax:          dollars(lineTotals.Tax),
		TotalFees:         fees,
		TotalRefunds:      refunds,
		TotalAdSpend:      adSpend,
		TotalChargebacks:  chargebacks,
		TotalCoupons:      coupons,
		AdjustmentCredits: adjCredit,
		AdjustmentDebits:  adjDebit,
		NetRevenue:        netRevenue,
		TrueNetProfit:     trueNet,
	}
	// 比率统一做零分母保护
	if revenue > 0 {
		summary.ProfitMargin = round2(netRevenue / revenue * 100)
		summary.TrueNetMargin = round2(trueNet / revenue * 100)
		summary.FeePercentage = round2(fees / revenue * 100)
	}
	if adSpend > 0 {
		summary.MarketingROI = round2(revenue / adSpend)
	}

	// 费用明细优先级：本次解析 > 精确汇总 > 空
	feeBreakdown := map[string]int64{}
	switch {
	case freshTotals != nil:
		feeBreakdown = freshTotals.FeeBreakdown
	case exact != nil:
		feeBreakdown = MergeSummaryFields([]model.RangeSummary{*exact}).FeeBreakdown
	}

	skus := sortedSKUs(lineTotals.SKUMap)
	top := skus
	if len(top) > topSKULimit {
		top = top[:topSKULimit]
	}

	return &dto.SyncResponse{
		StartDate:           start.Format("2006-01-02"),
		EndDate:             end.Format("2006-01-02"),
		DataSource:          source,
		Summary:             summary,
		FeeBreakdown:        buildBreakdown(feeBreakdown),
		AdSpendBreakdown:    buildBreakdown(merged.AdSpendBreakdown),
		ChargebackBreakdown: buildBreakdown(merged.ChargebackBreakdown),
		CouponBreakdown:     buildBreakdown(merged.CouponBreakdown),
		AdjustmentBreakdown: splitAdjustments(merged.AdjustmentBreakdown),
		TopSKUs:             top,
		AllSKUs:             skus,
	}
}

func (s *financeSyncService) ListSummaries(ctx context.Context, limit int) ([]dto.SummaryListItem, error) {
	summaries, err := s.summaryRepo.List(ctx, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, err, "汇总列表查询失败")
	}

	items := make([]dto.SummaryListItem, 0, len(summaries))
	for _, sum := range summaries {
		items = append(items, dto.SummaryListItem{
			StartDate:    sum.StartDate.Format("2006-01-02"),
			EndDate:      sum.EndDate.Format("2006-01-02"),
			EventGroups:  sum.EventGroupCount,
			UniqueOrders: sum.UniqueOrderCount,
			TotalRevenue: sum.GetRevenue(),
			TotalAdSpend: sum.GetAdSpend(),
			UpdatedAt:    sum.UpdatedAt.Format(time.RFC3339),
		})
	}
	return items, nil
}

// ==================== 响应组装辅助 ====================

func dollars(v int64) float64 {
	return float64(v) / 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// buildBreakdown 类型 → 分 转为带占比的明细条目，金额降序
func buildBreakdown(breakdown map[string]int64) []dto.BreakdownEntry {
	var total int64
	for _, v := range breakdown {
		total += v
	}

	entries := make([]dto.BreakdownEntry, 0, len(breakdown))
	for feeType, amount := range breakdown {
		entry := dto.BreakdownEntry{Type: feeType, Amount: dollars(amount)}
		if total > 0 {
			entry.Percentage = round2(float64(amount) / float64(total) * 100)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Amount != entries[j].Amount {
			return entries[i].Amount > entries[j].Amount
		}
		return entries[i].Type < entries[j].Type
	})
	return entries
}

// splitAdjustments 调整明细按符号分侧，两侧都输出正数条目
func splitAdjustments(breakdown map[string]int64) dto.AdjustmentBreakdown {
	credits := make(map[string]int64)
	debits := make(map[string]int64)
	for adjType, amount := range breakdown {
		if amount >= 0 {
			credits[adjType] = amount
		} else {
			debits[adjType] = -amount
		}
	}
	return dto.AdjustmentBreakdown{
		Credits: buildBreakdown(credits),
		Debits:  buildBreakdown(debits),
	}
}

func sortedSKUs(skuMap map[string]*SKUTotals) []dto.SKUEntry {
	entries := make([]dto.SKUEntry, 0, len(skuMap))
	for _, s := range skuMap {
		entries = append(entries, dto.SKUEntry{
			SKU:          s.SKU,
			InternalCode: s.InternalCode,
			Units:        s.Quantity,
			Revenue:      dollars(s.Revenue),
			Fees:         dollars(s.Fee),
			RefundAmount: dollars(s.Refund),
			RefundCount:  s.RefundCount,
			Net:          s.GetNet(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Revenue != entries[j].Revenue {
			return entries[i].Revenue > entries[j].Revenue
		}
		return entries[i].SKU < entries[j].SKU
	})
	return entries
}

// buildTransactions 按订单重组行项目明细
func buildTransactions(items []model.LineItem) []dto.TransactionOrder {
	index := make(map[string]*dto.TransactionOrder)
	var order []string

	for _, item := range items {
		key := fmt.Sprintf("%s|%d|%s", item.OrderID, item.PostedDate.Unix(), item.Kind)
		tx, ok := index[key]
		if !ok {
			tx = &dto.TransactionOrder{
				OrderID:    item.OrderID,
				PostedDate: item.PostedDate.UTC().Format(time.RFC3339),
				Kind:       item.Kind,
			}
			index[key] = tx
			order = append(order, key)
		}
		tx.Items = append(tx.Items, dto.TransactionItem{
			SKU:          item.SKU,
			InternalCode: item.InternalCode,
			Quantity:     item.Quantity,
			Gross:        item.GetGross(),
			Tax:          item.GetTax(),
			Fee:          item.GetFee(),
			Net:          item.GetNet(),
		})
	}

	out := make([]dto.TransactionOrder, 0, len(order))
	for _, key := range order {
		out = append(out, *index[key])
	}
	return out
}
