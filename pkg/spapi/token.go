package spapi

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"amzfin_v1_202608/internal/apperr"
)

// ==================== Token 管理 ====================

// tokenCache 进程内共享的 Token 缓存
// 不落库，进程重启即失效
type tokenCache struct {
	accessToken string
	expiresAt   time.Time
}

// TokenManager 短期访问令牌管理器
// 缓存读取与刷新在同一个临界区内完成，避免并发调用重复换 Token
type TokenManager struct {
	creds    *Credentials
	tokenURL string
	client   *resty.Client
	margin   time.Duration // 过期安全边际

	mu    sync.Mutex
	cache tokenCache

	now func() time.Time // 可注入时钟，测试用
}

// tokenResp 换 Token 响应
type tokenResp struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error,omitempty"`
	ErrorDesc   string `json:"error_description,omitempty"`
}

// NewTokenManager 创建 Token 管理器
func NewTokenManager(creds *Credentials, tokenURL string) *TokenManager {
	client := resty.New().
		SetTimeout(20 * time.Second).
		SetHeader("User-Agent", "AmzFin-Go-App/1.0")

	return &TokenManager{
		creds:    creds,
		tokenURL: tokenURL,
		client:   client,
		margin:   60 * time.Second,
		now:      time.Now,
	}
}

// SetClock 注入时钟（测试用）
func (m *TokenManager) SetClock(now func() time.Time) {
	m.now = now
}

// GetAccessToken 获取访问令牌
// 缓存未过期直接返回；否则用 refresh_token 换取新令牌并缓存
func (m *TokenManager) GetAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 1. 缓存命中（留出安全边际）
	if m.cache.accessToken != "" && m.now().Before(m.cache.expiresAt.Add(-m.margin)) {
		return m.cache.accessToken, nil
	}

	// 2. refresh_token 授权换取
	var result tokenResp
	resp, err := m.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": m.creds.RefreshToken,
			"client_id":     m.creds.ClientID,
			"client_secret": m.creds.ClientSecret,
		}).
		SetResult(&result).
		Post(m.tokenURL)

	// A. 网络层错误
	if err != nil {
		return "", apperr.Wrap(apperr.KindAuth, err, "换取 Token 网络错误")
	}

	// B. 业务层拒绝
	if resp.StatusCode() != 200 {
		return "", apperr.New(apperr.KindAuth, "换取 Token 被拒绝: status %d", resp.StatusCode())
	}
	if result.AccessToken == "" {
		return "", apperr.New(apperr.KindAuth, "换取 Token 响应缺少 access_token: %s", result.Error)
	}

	// 3. 写缓存
	m.cache = tokenCache{
		accessToken: result.AccessToken,
		expiresAt:   m.now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}

	return m.cache.accessToken, nil
}
