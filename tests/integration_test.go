package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"amzfin_v1_202608/internal/controller"
	"amzfin_v1_202608/internal/model"
	"amzfin_v1_202608/internal/repository"
	"amzfin_v1_202608/internal/router"
	"amzfin_v1_202608/internal/service"
	netpkg "amzfin_v1_202608/pkg/net"
	"amzfin_v1_202608/pkg/spapi"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ==================== 假远端 ====================

// fakeMarketplace 同时扮演授权服务与财务事件接口
type fakeMarketplace struct {
	eventCalls int32
}

func (f *fakeMarketplace) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/o2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"Atza|integration","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/finances/v0/financialEvents", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.eventCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"payload": {
				"FinancialEvents": {
					"ShipmentEventList": [{
						"AmazonOrderId": "111-7788990",
						"PostedDate": "2025-01-15T10:00:00Z",
						"ShipmentItemList": [{
							"SellerSKU": "SKU-RED",
							"QuantityShipped": 3,
							"ItemChargeList": [
								{"ChargeType":"Principal","ChargeAmount":{"CurrencyCode":"USD","CurrencyAmount":60.0}},
								{"ChargeType":"Tax","ChargeAmount":{"CurrencyCode":"USD","CurrencyAmount":4.8}}
							],
							"ItemFeeList": [
								{"FeeType":"Commission","FeeAmount":{"CurrencyCode":"USD","CurrencyAmount":-9.0}}
							]
						}]
					}],
					"RefundEventList": [{
						"AmazonOrderId": "111-7788990",
						"PostedDate": "2025-01-20T10:00:00Z",
						"ShipmentItemAdjustmentList": [{
							"SellerSKU": "SKU-RED",
							"ItemChargeAdjustmentList": [
								{"ChargeType":"Principal","ChargeAmount":{"CurrencyCode":"USD","CurrencyAmount":-10.0}}
							]
						}]
					}],
					"ProductAdsPaymentEventList": [
						{"transactionType":"charge","transactionValue":{"CurrencyCode":"USD","CurrencyAmount":-12.0}}
					]
				},
				"NextToken": ""
			}
		}`)
	})
	return httptest.NewServer(mux)
}

// ==================== 环境搭建 ====================

func setupApp(t *testing.T) (*gin.Engine, *fakeMarketplace, func()) {
	t.Helper()

	remote := &fakeMarketplace{}
	srv := remote.server()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.LineItem{}, &model.RangeSummary{}, &model.ProductMapping{}); err != nil {
		t.Fatalf("建表失败: %v", err)
	}

	creds := &spapi.Credentials{
		ClientID: "client", ClientSecret: "secret", RefreshToken: "refresh",
		AccessKeyID: "AKIA-TEST", SecretKey: "secret-key",
		Region: "us-east-1", MarketplaceID: "ATVPDKIKX0DER",
	}
	dispatcher := netpkg.NewDispatcher(srv.Client(), netpkg.Options{
		MaxAttempts: 2,
		SleepFunc:   func(ctx context.Context, d time.Duration) error { return nil },
	})
	client := spapi.NewFinancesClient(srv.URL,
		spapi.NewSigner(creds),
		spapi.NewTokenManager(creds, srv.URL+"/auth/o2/token"),
		dispatcher,
	)

	syncSvc := service.NewFinanceSyncService(
		client,
		repository.NewLineItemRepository(db),
		repository.NewRangeSummaryRepository(db),
		repository.NewProductMappingRepository(db),
		nil,
		200,
	)

	r := gin.New()
	router.InitRoutes(r, controller.NewFinanceController(syncSvc))

	return r, remote, srv.Close
}

func postSync(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/finance/sync", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type syncEnvelope struct {
	Code int `json:"code"`
	Data struct {
		DataSource string `json:"dataSource"`
		Summary    struct {
			EventGroups   int     `json:"eventGroups"`
			UniqueOrders  int     `json:"uniqueOrders"`
			TotalRevenue  float64 `json:"totalRevenue"`
			TotalTax      float64 `json:"totalTax"`
			TotalFees     float64 `json:"totalFees"`
			TotalRefunds  float64 `json:"totalRefunds"`
			TotalAdSpend  float64 `json:"totalAdSpend"`
			NetRevenue    float64 `json:"netRevenue"`
			TrueNetProfit float64 `json:"trueNetProfit"`
			ProfitMargin  float64 `json:"profitMargin"`
		} `json:"summary"`
		AdSpendBreakdown []struct {
			Type       string  `json:"type"`
			Amount     float64 `json:"amount"`
			Percentage float64 `json:"percentage"`
		} `json:"adSpendBreakdown"`
		AllSKUs []struct {
			SKU          string  `json:"sku"`
			Units        int     `json:"units"`
			Revenue      float64 `json:"revenue"`
			RefundAmount float64 `json:"refundAmount"`
			Net          float64 `json:"net"`
		} `json:"allSkus"`
	} `json:"data"`
}

// ==================== 集成测试 ====================

func TestSyncEndpoint_EndToEnd(t *testing.T) {
	r, remote, cleanup := setupApp(t)
	defer cleanup()

	w := postSync(t, r, `{"startDate":"2025-01-01","endDate":"2025-01-31"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp syncEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}

	if resp.Data.DataSource != "remote" {
		t.Errorf("dataSource = %s, want remote", resp.Data.DataSource)
	}
	if remote.eventCalls != 1 {
		t.Errorf("远端调用 %d 次, want 1", remote.eventCalls)
	}

	s := resp.Data.Summary
	if s.TotalRevenue != 60 {
		t.Errorf("totalRevenue = %v, want 60 (税不计收入)", s.TotalRevenue)
	}
	if s.TotalTax != 4.8 {
		t.Errorf("totalTax = %v, want 4.8", s.TotalTax)
	}
	if s.TotalFees != 9 {
		t.Errorf("totalFees = %v, want 9 (绝对值)", s.TotalFees)
	}
	if s.TotalRefunds != 10 {
		t.Errorf("totalRefunds = %v, want 10 (绝对值)", s.TotalRefunds)
	}
	if s.TotalAdSpend != 12 {
		t.Errorf("totalAdSpend = %v, want 12", s.TotalAdSpend)
	}
	if s.NetRevenue != 41 {
		t.Errorf("netRevenue = %v, want 41", s.NetRevenue)
	}
	if s.TrueNetProfit != 29 {
		t.Errorf("trueNetProfit = %v, want 29", s.TrueNetProfit)
	}
	if s.ProfitMargin != 68.33 {
		t.Errorf("profitMargin = %v, want 68.33", s.ProfitMargin)
	}

	ads := resp.Data.AdSpendBreakdown
	if len(ads) != 1 || ads[0].Type != "charge" || ads[0].Amount != 12 || ads[0].Percentage != 100 {
		t.Errorf("adSpendBreakdown 不符: %+v", ads)
	}

	if len(resp.Data.AllSKUs) != 1 {
		t.Fatalf("allSkus 行数不符: %+v", resp.Data.AllSKUs)
	}
	sku := resp.Data.AllSKUs[0]
	if sku.SKU != "SKU-RED" || sku.Units != 3 || sku.Revenue != 60 || sku.RefundAmount != 10 || sku.Net != 41 {
		t.Errorf("allSkus 不符: %+v", sku)
	}
}

func TestSyncEndpoint_RepeatServedFromCache(t *testing.T) {
	r, remote, cleanup := setupApp(t)
	defer cleanup()

	first := postSync(t, r, `{"startDate":"2025-01-01","endDate":"2025-01-31"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("首次同步失败: %s", first.Body.String())
	}

	second := postSync(t, r, `{"startDate":"2025-01-01","endDate":"2025-01-31"}`)
	if second.Code != http.StatusOK {
		t.Fatalf("重复同步失败: %s", second.Body.String())
	}

	var resp1, resp2 syncEnvelope
	json.Unmarshal(first.Body.Bytes(), &resp1)
	json.Unmarshal(second.Body.Bytes(), &resp2)

	if remote.eventCalls != 1 {
		t.Errorf("重复请求触发了远端调用: %d 次", remote.eventCalls)
	}
	if resp2.Data.DataSource != "cache" {
		t.Errorf("dataSource = %s, want cache", resp2.Data.DataSource)
	}
	if resp1.Data.Summary != resp2.Data.Summary {
		t.Errorf("缓存返回与首次不一致:\n%+v\n%+v", resp1.Data.Summary, resp2.Data.Summary)
	}

	// 明细走读库路径，缓存命中时不能丢值
	ads := resp2.Data.AdSpendBreakdown
	if len(ads) != 1 || ads[0].Type != "charge" || ads[0].Amount != 12 {
		t.Errorf("缓存命中的 adSpendBreakdown 不符: %+v", ads)
	}
}

func TestSyncEndpoint_InvalidDates(t *testing.T) {
	r, _, cleanup := setupApp(t)
	defer cleanup()

	cases := []string{
		`{"startDate":"2025/01/01","endDate":"2025-01-31"}`,
		`{"startDate":"2025-01-31","endDate":"2025-01-01"}`,
		`{"endDate":"2025-01-31"}`,
	}
	for _, body := range cases {
		w := postSync(t, r, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("非法入参 %s 返回 %d, want 400", body, w.Code)
		}
	}
}

func TestTriggerEndpoint_Cooldown(t *testing.T) {
	r, remote, cleanup := setupApp(t)
	defer cleanup()

	url := "/api/finance/sync/trigger?startDate=2025-02-01&endDate=2025-02-28"

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, httptest.NewRequest(http.MethodPost, url, nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("首次强刷失败: %d %s", w1.Code, w1.Body.String())
	}
	if remote.eventCalls != 1 {
		t.Errorf("强刷应触发远端调用, calls = %d", remote.eventCalls)
	}

	// 冷却期内立刻再强刷同一区间 → 429
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodPost, url, nil))
	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("冷却期强刷返回 %d, want 429", w2.Code)
	}
	if remote.eventCalls != 1 {
		t.Errorf("冷却期不应触发远端调用, calls = %d", remote.eventCalls)
	}
}

func TestSummariesEndpoint(t *testing.T) {
	r, _, cleanup := setupApp(t)
	defer cleanup()

	postSync(t, r, `{"startDate":"2025-01-01","endDate":"2025-01-31"}`)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/finance/summaries", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("汇总列表失败: %d %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data []struct {
			StartDate    string  `json:"startDate"`
			TotalRevenue float64 `json:"totalRevenue"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].StartDate != "2025-01-01" || resp.Data[0].TotalRevenue != 60 {
		t.Errorf("汇总列表不符: %+v", resp.Data)
	}
}
