package spapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"amzfin_v1_202608/internal/apperr"
	netpkg "amzfin_v1_202608/pkg/net"
)

// ==================== 财务事件客户端 ====================

const (
	// MaxRangeDays 远端单次可查询的最大跨度
	MaxRangeDays = 180

	financialEventsPath = "/finances/v0/financialEvents"
	defaultPageSize     = 100

	// 分页保险丝，防止远端 NextToken 异常导致死循环
	maxPages = 200
)

// FinancesClient 财务事件客户端
// 负责：签名、分页、gzip 解包；限速与重试交给 dispatcher
type FinancesClient struct {
	endpoint   string // 如 https://sellingpartnerapi-na.amazon.com
	signer     *Signer
	tokens     *TokenManager
	dispatcher netpkg.Dispatcher
	pageSize   int

	now func() time.Time // 签名时间戳，可注入
}

// NewFinancesClient 创建客户端
func NewFinancesClient(endpoint string, signer *Signer, tokens *TokenManager, dispatcher netpkg.Dispatcher) *FinancesClient {
	return &FinancesClient{
		endpoint:   endpoint,
		signer:     signer,
		tokens:     tokens,
		dispatcher: dispatcher,
		pageSize:   defaultPageSize,
		now:        time.Now,
	}
}

// SetClock 注入时钟（测试用）
func (c *FinancesClient) SetClock(now func() time.Time) {
	c.now = now
}

// FetchEvents 拉取指定日期范围内的全部财务事件
// 前置条件：start <= end 且日期跨度不超过 180 天，超窗由调用方自行分片。
// 调用方查询到结束日当日末，所以窗口校验放宽不足一天的零头
// 返回顺序即远端返回顺序，不做跨事件种类的排序保证
func (c *FinancesClient) FetchEvents(ctx context.Context, start, end time.Time) ([]FinancialEvents, error) {
	// 1. 窗口校验
	if end.Before(start) {
		return nil, apperr.New(apperr.KindValidation, "起始日期晚于结束日期")
	}
	if end.Sub(start) >= (MaxRangeDays+1)*24*time.Hour {
		return nil, apperr.New(apperr.KindRangeTooLarge, "日期跨度超过远端 %d 天上限", MaxRangeDays)
	}

	// 2. 逐页拉取
	var groups []FinancialEvents
	nextToken := ""

	for page := 0; page < maxPages; page++ {
		envelope, err := c.fetchPage(ctx, start, end, nextToken)
		if err != nil {
			return nil, err
		}

		if !envelope.Payload.FinancialEvents.IsEmpty() {
			groups = append(groups, envelope.Payload.FinancialEvents)
		}

		nextToken = envelope.Payload.NextToken
		if nextToken == "" {
			return groups, nil
		}
	}

	return nil, apperr.New(apperr.KindInternal, "分页超过 %d 页仍未结束，疑似远端游标异常", maxPages)
}

// fetchPage 拉取单页
func (c *FinancesClient) fetchPage(ctx context.Context, start, end time.Time, nextToken string) (*eventsEnvelope, error) {
	// 1. 组装请求
	params := url.Values{}
	params.Set("PostedAfter", start.UTC().Format(time.RFC3339))
	params.Set("PostedBefore", end.UTC().Format(time.RFC3339))
	params.Set("MaxResultsPerPage", fmt.Sprintf("%d", c.pageSize))
	if nextToken != "" {
		params.Set("NextToken", nextToken)
	}

	apiURL := c.endpoint + financialEventsPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "构建请求失败")
	}
	req.Header.Set("Accept", "application/json")

	// 2. 令牌 + 签名
	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-amz-access-token", token)
	c.signer.Sign(req, nil, c.now())

	// 3. 托管发送（含限速与重试）
	resp, err := c.dispatcher.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 4. 状态定责
	if resp.StatusCode != http.StatusOK {
		body, _ := readBody(resp)
		switch resp.StatusCode {
		case http.StatusBadRequest:
			return nil, apperr.New(apperr.KindUpstreamBad, "远端拒绝请求 [400]: %s", truncate(string(body), 512))
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, apperr.New(apperr.KindAuth, "远端鉴权失败 [%d]", resp.StatusCode)
		default:
			return nil, apperr.New(apperr.KindInternal, "远端错误 [%d]: %s", resp.StatusCode, truncate(string(body), 512))
		}
	}

	// 5. 解包（透明处理 gzip 报文）
	body, err := readBody(resp)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "读取响应失败")
	}

	var envelope eventsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "解析响应失败")
	}
	return &envelope, nil
}

// ==================== 辅助函数 ====================

// readBody 读取响应体，gzip 报文透明解压
// 同时识别 Content-Encoding 头和 gzip 魔数（远端报表下载两种都可能出现）
func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	gzipped := resp.Header.Get("Content-Encoding") == "gzip" ||
		(len(raw) > 2 && raw[0] == 0x1f && raw[1] == 0x8b)
	if !gzipped {
		return raw, nil
	}

	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
