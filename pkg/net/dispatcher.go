package net

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"amzfin_v1_202608/internal/apperr"
)

// ==================== 请求状态机 ====================

// requestState 单个请求的生命周期状态
// PENDING → IN_FLIGHT → {SUCCESS, RETRYABLE_FAILURE, FATAL_FAILURE}
type requestState int

const (
	statePending requestState = iota
	stateInFlight
	stateSuccess
	stateRetryableFailure
	stateFatalFailure
)

// ==================== Dispatcher 接口 ====================

// Dispatcher 网络调度器 (通用组件)
type Dispatcher interface {
	// Send 发送 HTTP 请求
	// 所有请求经过同一个逻辑队列，保证并发调用方不超过远端的平稳速率
	Send(ctx context.Context, req *http.Request) (*http.Response, error)
}

// ==================== 配置 ====================

// Options 调度器参数
// BackoffFunc / JitterFunc / SleepFunc 可注入，测试时替换为确定性实现
type Options struct {
	MaxAttempts     int           // 最大尝试次数（含首次）
	BackoffBase     time.Duration // 退避基数
	BackoffCap      time.Duration // 退避上限
	MinSendInterval time.Duration // 两次请求的最小间隔（平稳速率）

	BackoffFunc func(attempt int) time.Duration                  // 默认 min(cap, base*2^attempt)
	JitterFunc  func() time.Duration                             // 默认 [0, base) 随机抖动
	SleepFunc   func(ctx context.Context, d time.Duration) error // 默认 time.After + ctx
}

func (o *Options) fill() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 30 * time.Second
	}
	if o.BackoffFunc == nil {
		base, ceiling := o.BackoffBase, o.BackoffCap
		o.BackoffFunc = func(attempt int) time.Duration {
			d := base << uint(attempt)
			if d > ceiling || d <= 0 {
				return ceiling
			}
			return d
		}
	}
	if o.JitterFunc == nil {
		base := o.BackoffBase
		o.JitterFunc = func() time.Duration {
			return time.Duration(rand.Int63n(int64(base)))
		}
	}
	if o.SleepFunc == nil {
		o.SleepFunc = func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		}
	}
}

// ==================== 实现 ====================

// httpDispatcher 是 Dispatcher 接口的具体实现
// 注意：它是私有的，外部只能通过 NewDispatcher 获取接口
type httpDispatcher struct {
	client *http.Client
	opts   Options

	// 单一逻辑队列：发送临界区 + 上次发送时间
	mu       sync.Mutex
	lastSend time.Time
}

var _ Dispatcher = (*httpDispatcher)(nil)

// NewDispatcher 创建调度器
// client 传 nil 时使用 30s 超时的默认客户端
func NewDispatcher(client *http.Client, opts Options) Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	opts.fill()
	return &httpDispatcher{client: client, opts: opts}
}

// Send 发送 HTTP 请求 (自动处理限速与重试)
func (d *httpDispatcher) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	state := statePending
	var lastErr error

	for attempt := 0; attempt < d.opts.MaxAttempts; attempt++ {
		// 1. 重试前等待退避 + 抖动
		if state == stateRetryableFailure {
			wait := d.opts.BackoffFunc(attempt-1) + d.opts.JitterFunc()
			if err := d.opts.SleepFunc(ctx, wait); err != nil {
				return nil, err
			}
			// 重放请求体
			if err := rewindBody(req); err != nil {
				return nil, apperr.Wrap(apperr.KindInternal, err, "请求体不可重放")
			}
		}

		// 2. 进入队列并发送
		state = stateInFlight
		resp, err := d.doQueued(ctx, req)

		// 3. 状态转移
		switch {
		case err != nil:
			// 网络层错误（含超时）→ 可重试
			state = stateRetryableFailure
			lastErr = err

		case isRetryableStatus(resp.StatusCode):
			state = stateRetryableFailure
			lastErr = nil
			drainAndClose(resp)

		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden:
			// 明确的业务拒绝，重试没有意义，由调用方读取响应体定责
			state = stateFatalFailure
			return resp, nil

		default:
			state = stateSuccess
			return resp, nil
		}
	}

	// 尝试次数耗尽
	if lastErr != nil {
		return nil, apperr.Wrap(apperr.KindRateLimit, lastErr, "重试 %d 次后仍然失败", d.opts.MaxAttempts)
	}
	return nil, apperr.New(apperr.KindRateLimit, "重试 %d 次后远端仍限流", d.opts.MaxAttempts)
}

// doQueued 串行化发送：持锁期间保证与上一次发送之间留够间隔
func (d *httpDispatcher) doQueued(ctx context.Context, req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	if d.opts.MinSendInterval > 0 {
		if wait := d.opts.MinSendInterval - time.Since(d.lastSend); wait > 0 {
			if err := d.opts.SleepFunc(ctx, wait); err != nil {
				d.mu.Unlock()
				return nil, err
			}
		}
	}
	d.lastSend = time.Now()
	d.mu.Unlock()

	return d.client.Do(req.WithContext(ctx))
}

// ==================== 辅助函数 ====================

// isRetryableStatus 429/500/502/503 视为瞬时故障
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// rewindBody 重试前重置请求体
func rewindBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body
	return nil
}

func drainAndClose(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
}
