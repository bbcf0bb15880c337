package config

import (
	"fmt"
	"time"

	"github.com/aquatrack-hygiene/service-booking/internal/payment"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/config"
)

// Store drivers selectable with BOOKING_STORE_DRIVER.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// ServiceConfig holds all configuration for the booking service.
type ServiceConfig struct {
	Port          string
	AppEnv        string
	StoreDriver   string
	MemorySeed    string
	DBConfig      config.DatabaseConfig
	MongoConfig   config.MongoConfig
	RedisConfig   config.RedisConfig
	JWTConfig     config.JWTConfig
	KafkaConfig   config.KafkaConfig
	PaymentConfig payment.Config
	PaymentLock   time.Duration
	RateLimit     RateLimitConfig
}

// Load reads configuration from environment variables.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("BOOKING")
	if err != nil {
		return nil, err
	}

	v.SetDefault("DB_NAME", "aquatrack_booking")
	v.SetDefault("STORE_DRIVER", StorePostgres)
	v.SetDefault("PAYMENT_PROVIDER", payment.ProviderMock)
	v.SetDefault("PAYMENT_TIMEOUT", "10s")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	cfg := &ServiceConfig{
		Port:        config.GetServicePort(v, "SERVICE_PORT"),
		AppEnv:      config.GetAppEnv(v),
		StoreDriver: v.GetString("STORE_DRIVER"),
		MemorySeed:  v.GetString("MEMORY_SEED"),
		DBConfig:    config.LoadDatabaseConfig(v, "DB_NAME"),
		MongoConfig: config.LoadMongoConfig(v),
		RedisConfig: config.LoadRedisConfig(v),
		JWTConfig:   config.LoadJWTConfig(v),
		KafkaConfig: config.LoadKafkaConfig(v),
		PaymentConfig: payment.Config{
			Provider:  v.GetString("PAYMENT_PROVIDER"),
			KeyID:     v.GetString("PAYMENT_KEY_ID"),
			KeySecret: v.GetString("PAYMENT_KEY_SECRET"),
			BaseURL:   v.GetString("PAYMENT_BASE_URL"),
			Timeout:   v.GetDuration("PAYMENT_TIMEOUT"),
		},
		PaymentLock: v.GetDuration("PAYMENT_LOCK_TTL"),
		RateLimit: RateLimitConfig{
			PerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
			Burst:     v.GetInt("RATE_LIMIT_BURST"),
		},
	}

	switch cfg.StoreDriver {
	case StorePostgres, StoreMongo, StoreMemory:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	// The memory directory starts empty; without a seed every token is an unknown account.
	if cfg.StoreDriver == StoreMemory && cfg.MemorySeed == "" {
		return nil, fmt.Errorf("BOOKING_MEMORY_SEED is required with the memory store driver")
	}
	if cfg.AppEnv == "production" && cfg.PaymentConfig.Provider == payment.ProviderMock {
		return nil, fmt.Errorf("BOOKING_PAYMENT_PROVIDER must name a real gateway in production")
	}

	return cfg, nil
}
