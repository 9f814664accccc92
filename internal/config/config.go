package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 环境变量覆盖项。部署与测试环境通过它们改写下游服务地址。
const (
	EnvConfigPath      = "AGENTPAY_CONFIG"
	EnvMarketURL       = "MARKET_URL"
	EnvTokenServiceURL = "TOKEN_SERVICE_URL"
)

// Config 描述了 AgentPay 各服务在启动阶段需要加载的核心配置。
// 三个守护进程共用同一份文件，各自只读取与自己相关的段落。
type Config struct {
	Server      ServerConfig   `yaml:"server"`
	Market      MarketConfig   `yaml:"market"`
	TokenSvc    TokenConfig    `yaml:"token_service"`
	Clients     ClientsConfig  `yaml:"clients"`
	Storage     StorageConfig  `yaml:"storage"`
	TaskQueue   QueueConfig    `yaml:"task_queue"`
	Logging     LoggingConfig  `yaml:"logging"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	ServiceAuth SvcAuthConfig  `yaml:"service_auth"`
	Research    ResearchConfig `yaml:"research"`
}

// ServerConfig 控制编排服务 API 的监听地址等参数。
type ServerConfig struct {
	Address string `yaml:"address"`
}

// MarketConfig 控制资源服务的监听地址与目录后端。
type MarketConfig struct {
	Address string        `yaml:"address"`
	Catalog CatalogConfig `yaml:"catalog"`
}

// CatalogConfig 描述资源目录的存储后端。
type CatalogConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// TokenConfig 控制支付令牌服务的监听地址与台账后端。
type TokenConfig struct {
	Address         string       `yaml:"address"`
	ExpireInSeconds int64        `yaml:"expire_in_seconds"`
	Ledger          LedgerConfig `yaml:"ledger"`
}

// LedgerConfig 描述令牌台账的存储后端。
type LedgerConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ClientsConfig 描述编排服务访问下游服务所需的地址与超时策略。
type ClientsConfig struct {
	MarketURL       string `yaml:"market_url"`
	TokenServiceURL string `yaml:"token_service_url"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	RetryAttempts   int    `yaml:"retry_attempts"`
	RetryBackoffMS  int    `yaml:"retry_backoff_ms"`
}

// Timeout 返回单次网络调用的超时时间。
func (c ClientsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryBackoff 返回传输层重试的基础退避间隔。
func (c ClientsConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// StorageConfig 统一描述任务存储后端的连接信息。
type StorageConfig struct {
	TaskStore TaskStoreConfig `yaml:"task_store"`
}

// TaskStoreConfig 默认提供内存实现，生产环境可切换到 MySQL。
type TaskStoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// QueueConfig 描述任务队列驱动及其连接参数。
type QueueConfig struct {
	Driver   string         `yaml:"driver"`
	Worker   int            `yaml:"worker"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Queue     string `yaml:"queue"`
	BlockWait int    `yaml:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Queue      string `yaml:"queue"`
	Prefetch   int    `yaml:"prefetch"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// LoggingConfig 控制结构化日志与审计日志输出。
type LoggingConfig struct {
	Level       string      `yaml:"level"`
	Format      string      `yaml:"format"`
	OutputPaths []string    `yaml:"output_paths"`
	Audit       AuditConfig `yaml:"audit"`
}

// AuditConfig 控制审计日志文件及其轮转策略。
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig 控制指标端点的独立监听地址，为空则不启动。
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// SvcAuthConfig 控制服务间调用的身份凭证。密钥为空时整体关闭。
type SvcAuthConfig struct {
	Secret     string `yaml:"secret"`
	Issuer     string `yaml:"issuer"`
	TTLSeconds int64  `yaml:"ttl_seconds"`
}

// ResearchConfig 控制报告撰写协作方的选择。
type ResearchConfig struct {
	Composer string `yaml:"composer"`
}

// Load 负责解析指定路径的 YAML 配置文件并套用环境变量覆盖。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return &cfg, nil
}

// Default 返回一份纯默认值配置，主要供测试使用。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Market.Address == "" {
		c.Market.Address = ":8002"
	}
	if c.Market.Catalog.Driver == "" {
		c.Market.Catalog.Driver = "memory"
	}
	if c.TokenSvc.Address == "" {
		c.TokenSvc.Address = ":8001"
	}
	if c.TokenSvc.ExpireInSeconds <= 0 {
		c.TokenSvc.ExpireInSeconds = 3600
	}
	if c.TokenSvc.Ledger.Driver == "" {
		c.TokenSvc.Ledger.Driver = "memory"
	}
	if c.Clients.MarketURL == "" {
		c.Clients.MarketURL = "http://localhost:8002"
	}
	if c.Clients.TokenServiceURL == "" {
		c.Clients.TokenServiceURL = "http://localhost:8001"
	}
	if c.Clients.TimeoutSeconds <= 0 {
		c.Clients.TimeoutSeconds = 5
	}
	if c.Clients.RetryAttempts <= 0 {
		c.Clients.RetryAttempts = 2
	}
	if c.Clients.RetryBackoffMS <= 0 {
		c.Clients.RetryBackoffMS = 200
	}
	if c.Storage.TaskStore.Driver == "" {
		c.Storage.TaskStore.Driver = "memory"
	}
	if c.TaskQueue.Driver == "" {
		c.TaskQueue.Driver = "memory"
	}
	if c.TaskQueue.Worker <= 0 {
		c.TaskQueue.Worker = 4
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.ServiceAuth.Issuer == "" {
		c.ServiceAuth.Issuer = "agentpay"
	}
	if c.ServiceAuth.TTLSeconds <= 0 {
		c.ServiceAuth.TTLSeconds = 300
	}
	if c.Research.Composer == "" {
		c.Research.Composer = "markdown"
	}
}

// applyEnvOverrides 允许部署环境改写下游服务地址。
func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv(EnvMarketURL)); v != "" {
		c.Clients.MarketURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTokenServiceURL)); v != "" {
		c.Clients.TokenServiceURL = v
	}
}
