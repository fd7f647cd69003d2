package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	Orders       OrdersConfig
	Webhooks     WebhooksConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	if cfg.App.IsProd() && !strings.HasPrefix(cfg.Checkout.BaseURL(), "https://") {
		return nil, fmt.Errorf("%s must use https in production", EnvSiteBaseURL)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`

	// PublicBaseURL is the API origin used to build onboarding return links.
	PublicBaseURL  string   `envconfig:"STOREFRONT_PUBLIC_BASE_URL" default:"http://localhost:8080"`
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey             string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	Secret             string `envconfig:"STOREFRONT_STRIPE_SECRET"`
	Env                string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
	MaxConcurrentCalls int64  `envconfig:"STOREFRONT_STRIPE_MAX_CONCURRENT_CALLS" default:"8"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CheckoutConfig drives customer-facing checkout behavior and redirect construction.
type CheckoutConfig struct {
	SiteBaseURL              string        `envconfig:"STOREFRONT_SITE_BASE_URL" required:"true"`
	DashboardPath            string        `envconfig:"STOREFRONT_DASHBOARD_PATH" default:"/dashboard"`
	AllowedShippingCountries []string      `envconfig:"STOREFRONT_ALLOWED_SHIPPING_COUNTRIES" default:"HK,TW"`
	MaxLineQuantity          int           `envconfig:"STOREFRONT_CHECKOUT_MAX_LINE_QUANTITY" default:"99"`
	RateLimitWindow          time.Duration `envconfig:"STOREFRONT_CHECKOUT_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitIPLimit         int           `envconfig:"STOREFRONT_CHECKOUT_RATE_LIMIT_IP_LIMIT" default:"30"`
	RateLimitEmailLimit      int           `envconfig:"STOREFRONT_CHECKOUT_RATE_LIMIT_EMAIL_LIMIT" default:"10"`
}

// BaseURL returns the site base URL without a trailing slash.
func (c CheckoutConfig) BaseURL() string {
	return strings.TrimRight(strings.TrimSpace(c.SiteBaseURL), "/")
}

// DashboardURL returns the absolute merchant dashboard URL.
func (c CheckoutConfig) DashboardURL() string {
	path := strings.TrimSpace(c.DashboardPath)
	if path == "" {
		path = "/dashboard"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.BaseURL() + path
}

// ShippingCountries returns the upper-cased allow list.
func (c CheckoutConfig) ShippingCountries() []string {
	out := make([]string, 0, len(c.AllowedShippingCountries))
	for _, country := range c.AllowedShippingCountries {
		if trimmed := strings.ToUpper(strings.TrimSpace(country)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c CheckoutConfig) validate() error {
	parsed, err := url.Parse(c.BaseURL())
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvSiteBaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an absolute http(s) url", EnvSiteBaseURL)
	}
	if len(c.ShippingCountries()) == 0 {
		return fmt.Errorf("%s must list at least one country", EnvAllowedShippingCountries)
	}
	return nil
}

type OrdersConfig struct {
	PendingTTL time.Duration `envconfig:"STOREFRONT_ORDER_PENDING_TTL" default:"24h"`
}

type WebhooksConfig struct {
	EventTTL time.Duration `envconfig:"STOREFRONT_WEBHOOK_EVENT_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-order-events"`
}

// OutboxConfig tunes cmd/outbox-publisher and the retention job.
type OutboxConfig struct {
	BatchSize     int           `envconfig:"STOREFRONT_OUTBOX_BATCH_SIZE" default:"50"`
	PollInterval  time.Duration `envconfig:"STOREFRONT_OUTBOX_POLL_INTERVAL" default:"500ms"`
	MaxBackoff    time.Duration `envconfig:"STOREFRONT_OUTBOX_MAX_BACKOFF" default:"10s"`
	MaxAttempts   int           `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays int           `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"30"`
	MetricsAddr   string        `envconfig:"STOREFRONT_OUTBOX_METRICS_ADDR" default:":9103"`
}

// CronConfig sets how often each cmd/cron-worker job fires.
type CronConfig struct {
	PendingSweepEvery time.Duration `envconfig:"STOREFRONT_CRON_PENDING_SWEEP_EVERY" default:"15m"`
	PayoutRetryEvery  time.Duration `envconfig:"STOREFRONT_CRON_PAYOUT_RETRY_EVERY" default:"5m"`
	OutboxPruneEvery  time.Duration `envconfig:"STOREFRONT_CRON_OUTBOX_PRUNE_EVERY" default:"24h"`
	LockTTL           time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"10m"`
	MetricsAddr       string        `envconfig:"STOREFRONT_CRON_METRICS_ADDR" default:":9102"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
