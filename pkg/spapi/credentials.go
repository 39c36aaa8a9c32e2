package spapi

import (
	"strings"

	"amzfin_v1_202608/internal/apperr"
)

// ==================== 凭证 ====================

// Credentials 市场 API 凭证
// 进程内只读，由配置层装配后注入，不落库
type Credentials struct {
	ClientID      string // LWA 应用 ID
	ClientSecret  string // LWA 应用密钥
	RefreshToken  string // 长期刷新令牌
	AccessKeyID   string // 签名用 Access Key
	SecretKey     string // 签名用 Secret Key
	Region        string // 如 us-east-1
	MarketplaceID string // 市场标识
}

// Validate 校验必填字段
// 返回的错误一次性列出所有缺失项，方便排查配置
func (c *Credentials) Validate() error {
	var missing []string

	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if c.RefreshToken == "" {
		missing = append(missing, "refresh_token")
	}
	if c.AccessKeyID == "" {
		missing = append(missing, "access_key_id")
	}
	if c.SecretKey == "" {
		missing = append(missing, "secret_key")
	}
	if c.Region == "" {
		missing = append(missing, "region")
	}
	if c.MarketplaceID == "" {
		missing = append(missing, "marketplace_id")
	}

	if len(missing) > 0 {
		return apperr.New(apperr.KindConfig, "凭证缺失字段: %s", strings.Join(missing, ", "))
	}
	return nil
}
