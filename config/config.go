package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	OSS          OSSConfig          `mapstructure:"oss"`
	OAuth        OAuthConfig        `mapstructure:"oauth"`
	Email        EmailConfig        `mapstructure:"email"`
	Queue        QueueConfig        `mapstructure:"queue"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Stripe       StripeConfig       `mapstructure:"stripe"`
	Evolution    EvolutionConfig    `mapstructure:"evolution"`
	Maintenance  MaintenanceConfig  `mapstructure:"maintenance"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Mode        string `mapstructure:"mode"`
	FrontendURL string `mapstructure:"frontend_url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

// Enabled 是否配置了对象存储
func (c OSSConfig) Enabled() bool {
	return c.Endpoint != "" && c.BucketName != ""
}

type OAuthConfig struct {
	Github GithubOAuthConfig `mapstructure:"github"`
}

type GithubOAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	Async    bool   `mapstructure:"async"` // 通过 Redis 队列交给 worker 发送
}

type QueueConfig struct {
	EmailQueue string `mapstructure:"email_queue"`
	MaxWorkers int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type SubscriptionConfig struct {
	Tiers map[string]TierConfig `mapstructure:"tiers"`
}

// TierConfig 套餐限制，-1 表示不限
type TierConfig struct {
	MonthlyReflections  int   `mapstructure:"monthly_reflections"`
	EvolutionThreshold  int   `mapstructure:"evolution_threshold"`
	EvolutionSampleSize int   `mapstructure:"evolution_sample_size"`
	MaxActiveDreams     int   `mapstructure:"max_active_dreams"`
	MonthlyPriceCents   int64 `mapstructure:"monthly_price_cents"`
	YearlyPriceCents    int64 `mapstructure:"yearly_price_cents"`
}

// DefaultTiers 未配置时使用的套餐表
var DefaultTiers = map[string]TierConfig{
	"free":      {MonthlyReflections: 1, EvolutionThreshold: 12, EvolutionSampleSize: 6, MaxActiveDreams: 2},
	"essential": {MonthlyReflections: 5, EvolutionThreshold: 4, EvolutionSampleSize: 12, MaxActiveDreams: 5, MonthlyPriceCents: 499, YearlyPriceCents: 4999},
	"premium":   {MonthlyReflections: 10, EvolutionThreshold: 6, EvolutionSampleSize: 24, MaxActiveDreams: -1, MonthlyPriceCents: 999, YearlyPriceCents: 9999},
}

// Tier 获取套餐配置，未知套餐按 free 处理
func (c *Config) Tier(name string) TierConfig {
	if tier, ok := c.Subscription.Tiers[name]; ok {
		return tier
	}
	if tier, ok := DefaultTiers[name]; ok {
		return tier
	}
	if tier, ok := c.Subscription.Tiers["free"]; ok {
		return tier
	}
	return DefaultTiers["free"]
}

type LLMConfig struct {
	APIKey           string  `mapstructure:"api_key"`
	BaseURL          string  `mapstructure:"base_url"`
	Model            string  `mapstructure:"model"`
	Timeout          int     `mapstructure:"timeout"` // 秒
	MaxTokens        int     `mapstructure:"max_tokens"`
	PremiumMaxTokens int     `mapstructure:"premium_max_tokens"`
	ThinkingBudget   int     `mapstructure:"thinking_budget"`
	RateLimit        float64 `mapstructure:"rate_limit"` // 每秒请求数
	Burst            int     `mapstructure:"burst"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	// Prices 价格 ID，key 形如 essential_monthly、premium_yearly、gift_essential
	Prices map[string]string `mapstructure:"prices"`
}

type EvolutionConfig struct {
	Strategy string `mapstructure:"strategy"` // buckets, stride
}

type MaintenanceConfig struct {
	Enabled              bool `mapstructure:"enabled"`
	IntervalMinutes      int  `mapstructure:"interval_minutes"`
	UsageRetentionMonths int  `mapstructure:"usage_retention_months"`
}

func Load(configPath string) (*Config, error) {
	// .env 只用于本地开发，不存在时忽略
	_ = godotenv.Load()

	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
