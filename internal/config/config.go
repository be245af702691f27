package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port          string
	Environment   string
	PublicBaseURL string
	JWTSecret     string

	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string

	FreeShippingThreshold decimal.Decimal
	DefaultShippingCost   decimal.Decimal
	DeliveryEstimateDays  int

	OrderStore string // scylla | postgres | memory

	ScyllaHosts       []string
	ScyllaOrdersKS    string
	ScyllaOrdersRole  string
	ScyllaOrdersPass  string
	ScyllaUsersKS     string
	ScyllaUsersRole   string
	ScyllaUsersPass   string
	ScyllaSSLEnabled  bool
	ScyllaSSLCAPath   string
	PostgresDSN       string
	RedisAddr         string
	RedisPassword     string
	ElasticURL        string
	ElasticUser       string
	ElasticPassword   string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	MailFrom          string
	OTLPEndpoint      string
	TaskWorkers       int
	TaskQueueSize     int
	TaskTimeout       time.Duration
	CheckoutStateTTL  time.Duration
	TrackingCacheTTL  time.Duration
	TrackingRateLimit int
	CORSOrigins       []string
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		slog.Info("no .env file found, using process environment")
	} else {
		slog.Info(".env loaded")
	}

	cfg := &Config{
		Port:                env("PORT", "8080"),
		Environment:         env("APP_ENV", "development"),
		PublicBaseURL:       strings.TrimRight(env("PUBLIC_BASE_URL", "http://localhost:5173"), "/"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:            strings.ToLower(env("CURRENCY", "bdt")),
		OrderStore:          env("ORDER_STORE", "scylla"),
		ScyllaHosts:         splitList(os.Getenv("SCYLLA_HOSTS")),
		ScyllaOrdersKS:      os.Getenv("SCYLLA_KS_ORDERS_KEYSPACE"),
		ScyllaOrdersRole:    os.Getenv("SCYLLA_KS_ORDERS_ROLE"),
		ScyllaOrdersPass:    os.Getenv("SCYLLA_KS_ORDERS_PASSWORD"),
		ScyllaUsersKS:       os.Getenv("SCYLLA_KS_USERS_KEYSPACE"),
		ScyllaUsersRole:     os.Getenv("SCYLLA_KS_USERS_ROLE"),
		ScyllaUsersPass:     os.Getenv("SCYLLA_KS_USERS_PASSWORD"),
		ScyllaSSLEnabled:    strings.EqualFold(os.Getenv("SCYLLA_SSL_ENABLED"), "true"),
		ScyllaSSLCAPath:     os.Getenv("SCYLLA_SSL_CA_PATH"),
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		RedisAddr:           os.Getenv("REDIS_HOST"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		ElasticURL:          os.Getenv("ELASTIC_URL"),
		ElasticUser:         os.Getenv("ELASTIC_USER"),
		ElasticPassword:     os.Getenv("ELASTIC_PASSWORD"),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPUsername:        os.Getenv("SMTP_USERNAME"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		MailFrom:            env("MAIL_FROM", "noreply@bazar.com.bd"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CORSOrigins:         splitList(env("CORS_ORIGINS", "http://localhost:5173")),
	}

	var err error
	if cfg.FreeShippingThreshold, err = decimalEnv("FREE_SHIPPING_THRESHOLD", "1500"); err != nil {
		return nil, err
	}
	if cfg.DefaultShippingCost, err = decimalEnv("DEFAULT_SHIPPING_COST", "60"); err != nil {
		return nil, err
	}
	if cfg.DeliveryEstimateDays, err = intEnv("DELIVERY_ESTIMATE_DAYS", 4); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = intEnv("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.TaskWorkers, err = intEnv("TASK_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.TaskQueueSize, err = intEnv("TASK_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.TrackingRateLimit, err = intEnv("TRACKING_RATE_LIMIT", 30); err != nil {
		return nil, err
	}
	if cfg.TaskTimeout, err = durationEnv("TASK_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.CheckoutStateTTL, err = durationEnv("CHECKOUT_STATE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TrackingCacheTTL, err = durationEnv("TRACKING_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Production() && c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when APP_ENV=production")
	}
	if c.FreeShippingThreshold.IsNegative() || c.DefaultShippingCost.IsNegative() {
		return fmt.Errorf("shipping configuration must not be negative")
	}
	switch c.OrderStore {
	case "scylla", "postgres", "memory":
	default:
		return fmt.Errorf("ORDER_STORE %q is not one of scylla, postgres, memory", c.OrderStore)
	}
	if c.OrderStore == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required when ORDER_STORE=postgres")
	}
	return nil
}

func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func decimalEnv(key, fallback string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(env(key, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
