package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	Port string
	Env  string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string

	RedisURL string

	WebhookSecret    string
	WebhookTolerance time.Duration

	StripeSecretKey    string
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	GeneratorURL    string
	GeneratorAPIKey string
	RendererURL     string

	PlanBucket     string
	PlanKeyPrefix  string
	DownloadURLTTL time.Duration

	AlertTopicARN string

	KafkaBrokers string
	KafkaTopic   string

	AdminAPIKey string

	LockTTL       time.Duration // ceiling for one orchestration run
	StageTimeout  time.Duration // per-attempt timeout for external calls
	SLAWindow     time.Duration // manual-resolution deadline window
	SweepInterval time.Duration // SLA monitor period
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8091"),
		Env:                getEnv("APP_ENV", "development"),
		PostgresUser:       os.Getenv("POSTGRES_USER"),
		PostgresPassword:   os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:         os.Getenv("POSTGRES_DB"),
		PostgresHost:       getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:       getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:    getEnv("POSTGRES_SSLMODE", "disable"),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		WebhookSecret:      os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		WebhookTolerance:   getDurationEnv("WEBHOOK_TOLERANCE", 5*time.Minute),
		StripeSecretKey:    os.Getenv("STRIPE_API_KEY"),
		CheckoutSuccessURL: getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
		CheckoutCancelURL:  getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
		GeneratorURL:       os.Getenv("GENERATOR_URL"),
		GeneratorAPIKey:    os.Getenv("GENERATOR_API_KEY"),
		RendererURL:        os.Getenv("RENDERER_URL"),
		PlanBucket:         os.Getenv("PLAN_BUCKET"),
		PlanKeyPrefix:      getEnv("PLAN_KEY_PREFIX", "plans"),
		DownloadURLTTL:     getDurationEnv("DOWNLOAD_URL_TTL", 24*time.Hour),
		AlertTopicARN:      getEnv("SLA_ALERT_TOPIC_ARN", "arn:aws:sns:eu-west-2:000000000000:sla-alerts"),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:         getEnv("KAFKA_DELIVERY_TOPIC", "plan-delivery-events"),
		AdminAPIKey:        os.Getenv("ADMIN_API_KEY"),
		LockTTL:            getDurationEnv("LOCK_TTL", 10*time.Minute),
		StageTimeout:       getDurationEnv("STAGE_TIMEOUT", 60*time.Second),
		SLAWindow:          getDurationEnv("SLA_WINDOW", 4*time.Hour),
		SweepInterval:      getDurationEnv("SLA_SWEEP_INTERVAL", 15*time.Minute),
	}

	if cfg.PostgresUser == "" || cfg.PostgresPassword == "" || cfg.PostgresDB == "" {
		return nil, fmt.Errorf("missing required Postgres environment variables")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("PAYMENT_WEBHOOK_SECRET not set")
	}
	if cfg.GeneratorURL == "" || cfg.RendererURL == "" {
		return nil, fmt.Errorf("GENERATOR_URL and RENDERER_URL must be set")
	}
	if cfg.PlanBucket == "" {
		return nil, fmt.Errorf("PLAN_BUCKET not set")
	}
	if cfg.AdminAPIKey == "" {
		return nil, fmt.Errorf("ADMIN_API_KEY not set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
