package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	App            AppConfig            `mapstructure:"app"`
	HTTP           HTTPConfig           `mapstructure:"http"`
	DB             DBConfig             `mapstructure:"db"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	JWT            JWTConfig            `mapstructure:"jwt"`
	Payment        PaymentConfig        `mapstructure:"payment"`
	Shop           ShopConfig           `mapstructure:"shop"`
	Search         SearchConfig         `mapstructure:"search"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Notifications  NotificationConfig   `mapstructure:"notifications"`
	GDPR           GDPRConfig           `mapstructure:"gdpr"`
	Worker         WorkerConfig         `mapstructure:"worker"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

type HTTPConfig struct {
	Addr      string  `mapstructure:"addr"`
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type DBConfig struct {
	DSN     string `mapstructure:"dsn"`
	Retries int    `mapstructure:"retries"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

type KafkaConfig struct {
	Brokers            string `mapstructure:"brokers"`
	OrderTopic         string `mapstructure:"order_topic"`
	JobsTopic          string `mapstructure:"jobs_topic"`
	NotificationsTopic string `mapstructure:"notifications_topic"`
	GroupID            string `mapstructure:"group_id"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type PaymentConfig struct {
	Currency string       `mapstructure:"currency"`
	Stripe   StripeConfig `mapstructure:"stripe"`
	PayPal   PayPalConfig `mapstructure:"paypal"`
	COD      CODConfig    `mapstructure:"cod"`
}

type StripeConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type PayPalConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	ClientID string `mapstructure:"client_id"`
	Secret   string `mapstructure:"secret"`
	Sandbox  bool   `mapstructure:"sandbox"`
}

type CODConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	MaxAmount string `mapstructure:"max_amount"`
}

type ShopConfig struct {
	TaxRate               string `mapstructure:"tax_rate"`
	ShippingRate          string `mapstructure:"shipping_rate"`
	FreeShippingThreshold string `mapstructure:"free_shipping_threshold"`
}

type SearchConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	APIKey  string `mapstructure:"api_key"`
	Index   string `mapstructure:"index"`
}

type RecommendationConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	AI       AIConfig      `mapstructure:"ai"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type NotificationConfig struct {
	Database bool `mapstructure:"database"`
	Broker   bool `mapstructure:"broker"`
}

type GDPRConfig struct {
	StorageDir   string        `mapstructure:"storage_dir"`
	ExportTTL    time.Duration `mapstructure:"export_ttl"`
	OverdueAfter time.Duration `mapstructure:"overdue_after"`
}

type WorkerConfig struct {
	Count int `mapstructure:"count"`
}

// Every key needs a default, otherwise AutomaticEnv never sees it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.rate_limit", 10)
	v.SetDefault("http.rate_burst", 30)

	v.SetDefault("db.dsn", "root:@tcp(127.0.0.1:3306)/smartmart?parseTime=true")
	v.SetDefault("db.retries", 10)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("kafka.brokers", "localhost:9092,localhost:9093,localhost:9094")
	v.SetDefault("kafka.order_topic", "order-topic")
	v.SetDefault("kafka.jobs_topic", "job-topic")
	v.SetDefault("kafka.notifications_topic", "notification-topic")
	v.SetDefault("kafka.group_id", "smartmart-worker")

	v.SetDefault("jwt.secret", "secret")
	v.SetDefault("jwt.ttl", 24*time.Hour)

	v.SetDefault("payment.currency", "usd")
	v.SetDefault("payment.stripe.enabled", false)
	v.SetDefault("payment.stripe.secret_key", "")
	v.SetDefault("payment.stripe.webhook_secret", "")
	v.SetDefault("payment.paypal.client_id", "")
	v.SetDefault("payment.paypal.secret", "")
	v.SetDefault("payment.paypal.enabled", false)
	v.SetDefault("payment.paypal.sandbox", true)
	v.SetDefault("payment.cod.enabled", true)
	v.SetDefault("payment.cod.max_amount", "500.00")

	v.SetDefault("shop.tax_rate", "0.10")
	v.SetDefault("shop.shipping_rate", "5.00")
	v.SetDefault("shop.free_shipping_threshold", "100.00")

	v.SetDefault("search.enabled", false)
	v.SetDefault("search.host", "http://localhost:7700")
	v.SetDefault("search.index", "products")
	v.SetDefault("search.api_key", "")

	v.SetDefault("recommendation.cache_ttl", time.Hour)
	v.SetDefault("recommendation.ai.enabled", false)
	v.SetDefault("recommendation.ai.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("recommendation.ai.model", "gpt-4o-mini")
	v.SetDefault("recommendation.ai.api_key", "")
	v.SetDefault("recommendation.ai.timeout", 5*time.Second)

	v.SetDefault("notifications.database", true)
	v.SetDefault("notifications.broker", false)

	v.SetDefault("gdpr.storage_dir", "storage/private")
	v.SetDefault("gdpr.export_ttl", 30*24*time.Hour)
	v.SetDefault("gdpr.overdue_after", 30*24*time.Hour)

	v.SetDefault("worker.count", 4)
}

// Load reads defaults, an optional YAML file and SMARTMART_* environment variables.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("smartmart")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c ShopConfig) Rates() (tax, shipping, freeThreshold decimal.Decimal, err error) {
	if tax, err = decimal.NewFromString(c.TaxRate); err != nil {
		return
	}
	if shipping, err = decimal.NewFromString(c.ShippingRate); err != nil {
		return
	}
	freeThreshold, err = decimal.NewFromString(c.FreeShippingThreshold)
	return
}

func (c CODConfig) Ceiling() (decimal.Decimal, error) {
	return decimal.NewFromString(c.MaxAmount)
}
