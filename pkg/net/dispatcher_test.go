package net

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"amzfin_v1_202608/internal/apperr"
)

// testOptions 确定性参数：退避固定、无抖动、睡眠只记账不真等
func testOptions(maxAttempts int, slept *[]time.Duration) Options {
	return Options{
		MaxAttempts: maxAttempts,
		BackoffBase: 100 * time.Millisecond,
		BackoffCap:  1 * time.Second,
		BackoffFunc: func(attempt int) time.Duration {
			d := 100 * time.Millisecond << uint(attempt)
			if d > time.Second {
				return time.Second
			}
			return d
		},
		JitterFunc: func() time.Duration { return 0 },
		SleepFunc: func(ctx context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			return nil
		},
	}
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	var slept []time.Duration
	d := NewDispatcher(srv.Client(), testOptions(5, &slept))

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := d.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if calls != 3 {
		t.Errorf("远端调用 %d 次, want 3", calls)
	}
	// 两次重试各等一次退避：100ms, 200ms
	if len(slept) != 2 || slept[0] != 100*time.Millisecond || slept[1] != 200*time.Millisecond {
		t.Errorf("退避序列 = %v, want [100ms 200ms]", slept)
	}
}

func TestDispatcher_RetryableStatuses(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503} {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(code)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))

		var slept []time.Duration
		d := NewDispatcher(srv.Client(), testOptions(3, &slept))
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := d.Send(context.Background(), req)
		if err != nil {
			t.Errorf("状态 %d 重试后应成功: %v", code, err)
		} else {
			resp.Body.Close()
		}
		if calls != 2 {
			t.Errorf("状态 %d 应触发一次重试, calls = %d", code, calls)
		}
		srv.Close()
	}
}

func TestDispatcher_FatalStatusNoRetry(t *testing.T) {
	for _, code := range []int{400, 403} {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(code)
			io.WriteString(w, `{"errors":[{"code":"InvalidInput"}]}`)
		}))

		var slept []time.Duration
		d := NewDispatcher(srv.Client(), testOptions(5, &slept))
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := d.Send(context.Background(), req)
		if err != nil {
			t.Fatalf("致命状态应返回响应而非错误: %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != code {
			t.Errorf("status = %d, want %d", resp.StatusCode, code)
		}
		if calls != 1 {
			t.Errorf("状态 %d 不应重试, calls = %d", code, calls)
		}
		srv.Close()
	}
}

func TestDispatcher_ExhaustionReturnsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var slept []time.Duration
	d := NewDispatcher(srv.Client(), testOptions(3, &slept))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	_, err := d.Send(context.Background(), req)
	if err == nil {
		t.Fatal("次数耗尽应返回错误")
	}
	if !apperr.Is(err, apperr.KindRateLimit) {
		t.Errorf("错误类别 = %s, want %s", apperr.KindOf(err), apperr.KindRateLimit)
	}
}

func TestDispatcher_RewindsBodyOnRetry(t *testing.T) {
	var calls int32
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var slept []time.Duration
	d := NewDispatcher(srv.Client(), testOptions(3, &slept))

	payload := `{"k":"v"}`
	req, _ := http.NewRequest(http.MethodPost, srv.URL, bytes.NewReader([]byte(payload)))
	resp, err := d.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	resp.Body.Close()

	if len(bodies) != 2 {
		t.Fatalf("远端收到 %d 次请求, want 2", len(bodies))
	}
	for i, b := range bodies {
		if b != payload {
			t.Errorf("第 %d 次请求体 = %q, want %q", i+1, b, payload)
		}
	}
}

func TestDispatcher_MinSendInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var slept []time.Duration
	opts := testOptions(1, &slept)
	opts.MinSendInterval = 600 * time.Millisecond
	d := NewDispatcher(srv.Client(), opts)

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := d.Send(context.Background(), req)
		if err != nil {
			t.Fatalf("第 %d 次发送失败: %v", i+1, err)
		}
		resp.Body.Close()
	}

	// 第二次发送必须先等够剩余间隔
	if len(slept) != 1 {
		t.Fatalf("限速等待 %d 次, want 1", len(slept))
	}
	if slept[0] <= 0 || slept[0] > 600*time.Millisecond {
		t.Errorf("限速等待时长异常: %v", slept[0])
	}
}

func TestDispatcher_ContextCancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())

	var slept []time.Duration
	opts := testOptions(5, &slept)
	opts.SleepFunc = func(c context.Context, d time.Duration) error {
		cancel()
		return c.Err()
	}
	d := NewDispatcher(srv.Client(), opts)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := d.Send(ctx, req)
	if err == nil {
		t.Fatal("上下文取消应中止重试")
	}
}
