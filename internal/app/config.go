package app

import (
	"os"
	"strings"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr        string
	MetricsAddr     string
	PostgresDSN     string
	KafkaBrokers    string
	WebhookProvider string
	WebhookSecret   string
	SignatureHeader string
	SeedActors      string
}

// DefaultConfig возвращает базовые адреса для HTTP API и метрик.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		MetricsAddr:     ":9090",
		WebhookProvider: "generic-hmac",
		SignatureHeader: "X-Signature",
	}
}

// ConfigFromEnv читает настройки из окружения поверх значений по умолчанию.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("MARKET_HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("MARKET_METRICS_ADDR")); v != "" {
		cfg.MetricsAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("MARKET_POSTGRES_DSN")); v != "" {
		cfg.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("MARKET_KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = v
	}
	if v := strings.TrimSpace(os.Getenv("MARKET_WEBHOOK_PROVIDER")); v != "" {
		cfg.WebhookProvider = v
	}
	cfg.WebhookSecret = strings.TrimSpace(os.Getenv("MARKET_WEBHOOK_SECRET"))
	if v := strings.TrimSpace(os.Getenv("MARKET_SIGNATURE_HEADER")); v != "" {
		cfg.SignatureHeader = v
	}
	cfg.SeedActors = strings.TrimSpace(os.Getenv("MARKET_SEED_ACTORS"))

	return cfg
}
