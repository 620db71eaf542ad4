// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds connection settings for MySQL and Redis plus server knobs.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	MySQLDSN             string
	MySQLMaxOpenConns    int
	MySQLMaxIdleConns    int
	MySQLConnMaxLifetime time.Duration

	RedisAddr     string
	RedisPoolSize int

	CartCacheTTL   time.Duration
	IdempotencyTTL time.Duration

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	LogLevel      string
	RunMigrations bool
	SeedCatalog   bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func boolenv(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durenvms(key string, defMs int) time.Duration {
	return time.Duration(atoienv(key, defMs)) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	return time.Duration(atoienv(key, defSec)) * time.Second
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),
		GRPCAddr: getenv("GRPC_ADDR", ":50051"),

		MySQLDSN:             getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/checkout?parseTime=true"),
		MySQLMaxOpenConns:    atoienv("MYSQL_MAX_OPEN_CONNS", 50),
		MySQLMaxIdleConns:    atoienv("MYSQL_MAX_IDLE_CONNS", 25),
		MySQLConnMaxLifetime: durenvs("MYSQL_CONN_MAX_LIFETIME_S", 300),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPoolSize: atoienv("REDIS_POOL_SIZE", 100),

		CartCacheTTL:   durenvs("CART_CACHE_TTL_S", 600),
		IdempotencyTTL: durenvs("IDEMPOTENCY_TTL_S", 86400),

		RequestTimeout:  durenvms("REQUEST_TIMEOUT_MS", 5000),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT_S", 15),

		LogLevel:      getenv("LOG_LEVEL", "info"),
		RunMigrations: boolenv("RUN_MIGRATIONS", true),
		SeedCatalog:   boolenv("SEED_CATALOG", false),
	}
}
