package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	FrontendURL string
	PublicURL   string
	LogLevel    slog.Level

	MySQLDSN       string
	RedisAddr      string
	CatalogTTL     time.Duration
	RabbitMQURL    string
	RabbitExchange string

	JWTSecret string

	Pricing PricingConfig
	Card    CardConfig
	Wallet  WalletConfig

	DecrementStock bool
}

type PricingConfig struct {
	DeliveryFee decimal.Decimal
	VATRate     decimal.Decimal
	ChargeTax   bool
}

type CardConfig struct {
	BaseURL     string
	MerchantID  string
	APIPassword string
	Timeout     time.Duration
}

type WalletConfig struct {
	BaseURL          string
	MerchantID       string
	Secret           string
	Timeout          time.Duration
	LenientSignature bool
}

// Load reads the environment; unset variables fall back to local-development defaults.
func Load() (*Config, error) {
	deliveryFee, err := decimal.NewFromString(getEnvOrDefault("DELIVERY_FEE", "2.200"))
	if err != nil {
		return nil, fmt.Errorf("DELIVERY_FEE: %w", err)
	}
	vatRate, err := decimal.NewFromString(getEnvOrDefault("VAT_RATE", "0.10"))
	if err != nil {
		return nil, fmt.Errorf("VAT_RATE: %w", err)
	}
	gatewayTimeout, err := time.ParseDuration(getEnvOrDefault("GATEWAY_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("GATEWAY_TIMEOUT: %w", err)
	}
	catalogTTL, err := time.ParseDuration(getEnvOrDefault("CATALOG_CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("CATALOG_CACHE_TTL: %w", err)
	}

	cfg := &Config{
		HTTPAddr:       getEnvOrDefault("HTTP_ADDR", ":8080"),
		GRPCAddr:       getEnvOrDefault("GRPC_ADDR", ":50051"),
		FrontendURL:    strings.TrimRight(getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"), "/"),
		PublicURL:      strings.TrimRight(getEnvOrDefault("PUBLIC_URL", "http://localhost:8080"), "/"),
		LogLevel:       parseLevel(getEnvOrDefault("LOG_LEVEL", "info")),
		MySQLDSN:       getEnvOrDefault("MYSQL_DSN", "root:root@tcp(localhost:3306)/shaheen?parseTime=true"),
		RedisAddr:      getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		CatalogTTL:     catalogTTL,
		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		RabbitExchange: getEnvOrDefault("RABBITMQ_EXCHANGE", "shop.events"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		Pricing: PricingConfig{
			DeliveryFee: deliveryFee,
			VATRate:     vatRate,
			ChargeTax:   getBool("CHARGE_TAX", false),
		},
		Card: CardConfig{
			BaseURL:     strings.TrimRight(getEnvOrDefault("CARD_GATEWAY_URL", "https://ap-gateway.mastercard.com/api/rest/version/73"), "/"),
			MerchantID:  os.Getenv("CARD_MERCHANT_ID"),
			APIPassword: os.Getenv("CARD_API_PASSWORD"),
			Timeout:     gatewayTimeout,
		},
		Wallet: WalletConfig{
			BaseURL:          strings.TrimRight(getEnvOrDefault("WALLET_GATEWAY_URL", "https://www.benefit-gateway.bh/payment/API"), "/"),
			MerchantID:       os.Getenv("WALLET_MERCHANT_ID"),
			Secret:           os.Getenv("WALLET_SECRET"),
			Timeout:          gatewayTimeout,
			LenientSignature: getBool("WALLET_LENIENT_SIGNATURE", false),
		},
		DecrementStock: getBool("DECREMENT_STOCK", true),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}
