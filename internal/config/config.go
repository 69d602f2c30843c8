package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

type Config struct {
	Port string

	// DatabaseURL takes precedence over the POSTGRES_* fields
	DatabaseURL      string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string
	DBMaxRetries     int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CartTTL       time.Duration

	JWTSecret string

	GoEnv string // dev/prod
	FEURL string

	StripeSecretKey   string
	StripeCurrency    string
	PaymentSuccessURL string
	PaymentCancelURL  string

	KafkaBrokers []string
	KafkaTopic   string

	ShippingCost decimal.Decimal
	TaxRate      decimal.Decimal
	DiscountMode model.DiscountMode

	CheckoutRateLimit float64 // requests per second per client
	CheckoutRateBurst int
}

func Load() (Config, error) {
	cfg := Config{
		Port: os.Getenv("PORT"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		GoEnv: os.Getenv("GO_ENV"),
		FEURL: strings.TrimRight(os.Getenv("FE_URL"), "/"),

		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		StripeCurrency:  strings.ToLower(getEnv("STRIPE_CURRENCY", "usd")),

		KafkaTopic:   getEnv("KAFKA_TOPIC", "order-events"),
		DiscountMode: model.DiscountMode(getEnv("DISCOUNT_MODE", string(model.DiscountModeFlat))),
	}

	var err error
	if cfg.PostgresPort, err = getEnvInt("POSTGRES_PORT", 5432); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxRetries, err = getEnvInt("DB_MAX_RETRIES", 3); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.CartTTL, err = getEnvDuration("CART_TTL", 14*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ShippingCost, err = getEnvDecimal("SHIPPING_COST", decimal.Zero); err != nil {
		return Config{}, err
	}
	if cfg.TaxRate, err = getEnvDecimal("TAX_RATE", decimal.Zero); err != nil {
		return Config{}, err
	}
	if cfg.CheckoutRateLimit, err = getEnvFloat("CHECKOUT_RATE_LIMIT", 1); err != nil {
		return Config{}, err
	}
	if cfg.CheckoutRateBurst, err = getEnvInt("CHECKOUT_RATE_BURST", 5); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	cfg.PaymentSuccessURL = getEnv("PAYMENT_SUCCESS_URL", cfg.FEURL+"/checkout/success")
	cfg.PaymentCancelURL = getEnv("PAYMENT_CANCEL_URL", cfg.FEURL+"/checkout/cancel")

	// required
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.DatabaseURL == "" {
		if cfg.PostgresUser == "" {
			return Config{}, fmt.Errorf("POSTGRES_USER is required")
		}
		if cfg.PostgresPassword == "" {
			return Config{}, fmt.Errorf("POSTGRES_PASSWORD is required")
		}
		if cfg.PostgresDB == "" {
			return Config{}, fmt.Errorf("POSTGRES_DB is required")
		}
		if cfg.PostgresHost == "" {
			return Config{}, fmt.Errorf("POSTGRES_HOST is required")
		}
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}
	if cfg.FEURL == "" {
		return Config{}, fmt.Errorf("FE_URL is required")
	}

	if !cfg.DiscountMode.Valid() {
		return Config{}, fmt.Errorf("DISCOUNT_MODE must be %q or %q", model.DiscountModeFlat, model.DiscountModePercent)
	}
	if cfg.ShippingCost.IsNegative() {
		return Config{}, fmt.Errorf("SHIPPING_COST must not be negative")
	}
	if cfg.TaxRate.IsNegative() || cfg.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("TAX_RATE must be between 0 and 1")
	}
	if cfg.CheckoutRateLimit <= 0 || cfg.CheckoutRateBurst <= 0 {
		return Config{}, fmt.Errorf("CHECKOUT_RATE_LIMIT and CHECKOUT_RATE_BURST must be positive")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func getEnvDecimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal: %w", key, err)
	}
	return d, nil
}
