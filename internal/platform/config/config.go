package config

import (
	"os"
	"strconv"
	"time"

	"tokengate/pkg/domain"
)

// Server captures process-level configuration.
type Server struct {
	Addr            string
	PostgresURL     string
	Redis           RedisConfig
	AdminJWTKey     string
	RegistryName    string
	MinCreateFee    domain.FeeAmount
	MinJoinFee      domain.FeeAmount
	ShutdownTimeout time.Duration
}

// RedisConfig configures the oracle cache client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// OracleCacheTTL bounds how long oracle balance/ownership answers may be
// served from cache before re-querying the external ledger.
var OracleCacheTTL = 30 * time.Second

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("TOKENGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	adminKey := os.Getenv("TOKENGATE_ADMIN_JWT_KEY")
	if adminKey == "" {
		// Development default - must be overridden in production.
		adminKey = "dev-secret-key-change-in-production"
	}

	registryName := os.Getenv("TOKENGATE_REGISTRY_NAME")
	if registryName == "" {
		registryName = "tokengate"
	}

	return Server{
		Addr:            addr,
		PostgresURL:     os.Getenv("TOKENGATE_POSTGRES_URL"),
		Redis:           redisFromEnv(),
		AdminJWTKey:     adminKey,
		RegistryName:    registryName,
		MinCreateFee:    feeFromEnv("TOKENGATE_MIN_CREATE_FEE", 1000),
		MinJoinFee:      feeFromEnv("TOKENGATE_MIN_JOIN_FEE", 1000),
		ShutdownTimeout: 10 * time.Second,
	}
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("TOKENGATE_REDIS_URL"),
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func feeFromEnv(key string, fallback domain.FeeAmount) domain.FeeAmount {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return domain.FeeAmount(v)
}
