package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port        string
	Environment string
	BaseURL     string

	// Database
	DatabaseURL string

	// Auth
	JWTSecret string

	// Pricing
	GSTRate           float64
	Currency          string
	QuoteNumberPrefix string

	// Payments
	StripeSecretKey string
	PaymentTimeout  time.Duration

	// Messaging
	MessagingAPIBaseURL string
	MessagingAPIKey     string
	NotificationTimeout time.Duration

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// AI pricing model
	AIPricingURL    string
	AIPricingAPIKey string

	// Redis
	RedisURL string

	// Rate limiting
	RateLimitRPS        int
	RateLimitBurst      int
	PaymentRateLimitRPS int

	// Marketplace
	ExpirySweepSchedule    string
	AllowWithdrawalRefunds bool
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		GSTRate:           getEnvFloat("GST_RATE", 0.10),
		Currency:          getEnv("CURRENCY", "aud"),
		QuoteNumberPrefix: getEnv("QUOTE_NUMBER_PREFIX", "QT"),

		StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		PaymentTimeout:  getEnvDuration("PAYMENT_TIMEOUT", 20*time.Second),

		MessagingAPIBaseURL: getEnv("MESSAGING_API_BASE_URL", ""),
		MessagingAPIKey:     getEnv("MESSAGING_API_KEY", ""),
		NotificationTimeout: getEnvDuration("NOTIFICATION_TIMEOUT", 10*time.Second),

		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "quote-documents"),

		AIPricingURL:    getEnv("AI_PRICING_URL", ""),
		AIPricingAPIKey: getEnv("AI_PRICING_API_KEY", ""),

		RedisURL: getEnv("REDIS_URL", ""),

		RateLimitRPS:        getEnvInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst:      getEnvInt("RATE_LIMIT_BURST", 40),
		PaymentRateLimitRPS: getEnvInt("PAYMENT_RATE_LIMIT_RPS", 2),

		ExpirySweepSchedule:    getEnv("EXPIRY_SWEEP_SCHEDULE", "@every 15m"),
		AllowWithdrawalRefunds: getEnvBool("ALLOW_WITHDRAWAL_REFUNDS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.GSTRate < 0 || c.GSTRate >= 1 {
		return fmt.Errorf("GST_RATE must be between 0 and 1")
	}
	if c.Currency == "" {
		return fmt.Errorf("CURRENCY is required")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
