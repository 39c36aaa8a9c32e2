package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ==================== 配置结构 ====================

// Config 全局配置
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Marketplace MarketplaceConfig
	Storage     StorageConfig
	Sync        SyncConfig
}

// ServerConfig 服务配置
type ServerConfig struct {
	Port string
	Mode string // debug | release
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
}

// MarketplaceConfig 市场 API 凭证与接入点
// 凭证字段的完整性校验在 spapi.Credentials.Validate 中统一做
type MarketplaceConfig struct {
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	AccessKeyID   string
	SecretKey     string
	Region        string // 如 us-east-1
	MarketplaceID string
	Endpoint      string // 如 https://sellingpartnerapi-na.amazon.com
	TokenURL      string // OAuth 换 Token 接入点
}

// StorageConfig 审计导出存储配置（可选）
type StorageConfig struct {
	Enabled   bool
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	BasePath  string
}

// SyncConfig 同步引擎参数
type SyncConfig struct {
	BatchSize       int           // 行项目批量入库大小
	MaxAttempts     int           // 传输层最大尝试次数
	BackoffBase     time.Duration // 退避基数
	BackoffCap      time.Duration // 退避上限
	MinSendInterval time.Duration // 请求队列平稳速率
	TrailingDays    int           // 后台任务保鲜窗口
	CronSpec        string        // 后台任务调度表达式
}

// ==================== 加载 ====================

// Load 读取配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("AMZFIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// 配置文件可选，读不到就全走环境变量 + 默认值
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("server.port"),
			Mode: v.GetString("server.mode"),
		},
		Database: DatabaseConfig{
			DSN:          v.GetString("database.dsn"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
		},
		Marketplace: MarketplaceConfig{
			ClientID:      v.GetString("marketplace.client_id"),
			ClientSecret:  v.GetString("marketplace.client_secret"),
			RefreshToken:  v.GetString("marketplace.refresh_token"),
			AccessKeyID:   v.GetString("marketplace.access_key_id"),
			SecretKey:     v.GetString("marketplace.secret_key"),
			Region:        v.GetString("marketplace.region"),
			MarketplaceID: v.GetString("marketplace.marketplace_id"),
			Endpoint:      v.GetString("marketplace.endpoint"),
			TokenURL:      v.GetString("marketplace.token_url"),
		},
		Storage: StorageConfig{
			Enabled:   v.GetBool("storage.enabled"),
			Bucket:    v.GetString("storage.bucket"),
			Region:    v.GetString("storage.region"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
			BasePath:  v.GetString("storage.base_path"),
		},
		Sync: SyncConfig{
			BatchSize:       v.GetInt("sync.batch_size"),
			MaxAttempts:     v.GetInt("sync.max_attempts"),
			BackoffBase:     v.GetDuration("sync.backoff_base"),
			BackoffCap:      v.GetDuration("sync.backoff_cap"),
			MinSendInterval: v.GetDuration("sync.min_send_interval"),
			TrailingDays:    v.GetInt("sync.trailing_days"),
			CronSpec:        v.GetString("sync.cron_spec"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)

	v.SetDefault("marketplace.region", "us-east-1")
	v.SetDefault("marketplace.endpoint", "https://sellingpartnerapi-na.amazon.com")
	v.SetDefault("marketplace.token_url", "https://api.amazon.com/auth/o2/token")

	v.SetDefault("storage.base_path", "amzfin-audit")

	v.SetDefault("sync.batch_size", 200)
	v.SetDefault("sync.max_attempts", 5)
	v.SetDefault("sync.backoff_base", 500*time.Millisecond)
	v.SetDefault("sync.backoff_cap", 30*time.Second)
	v.SetDefault("sync.min_send_interval", 600*time.Millisecond)
	v.SetDefault("sync.trailing_days", 30)
	v.SetDefault("sync.cron_spec", "0 0 * * * *")
}
