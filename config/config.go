package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	Database          DatabaseConfig
	Redis             RedisConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	AmazonPay         AmazonPayConfig
	IPN               IPNConfig
	Polling           PollingConfig
}

type AppConfig struct {
	ServiceName string
	GatewayID   string
}

type ServerConfig struct {
	Host string
	Port string
}

type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PollKey  string
}

type LogConfig struct {
	Level  string
	Format string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type AmazonPayConfig struct {
	Region            string
	Sandbox           bool
	PublicKeyID       string
	PrivateKeyPath    string
	PrivateKeyPEM     string
	MerchantStoreName string
	// PaymentCapture is one of "" (authorize with capture), "authorize" or "manual".
	PaymentCapture string
	// AuthorizationMode is "sync" or "async".
	AuthorizationMode string
	HTTPTimeout       time.Duration
}

type IPNConfig struct {
	CertFetchTimeout time.Duration
	CertCacheTTL     time.Duration
	MaxBodyBytes     string
}

type PollingConfig struct {
	Delay          time.Duration
	BatchSize      int
	WorkerInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		return nil, errors.New("DATABASE_DSN environment variable is required")
	}

	driver := strings.ToLower(getEnv("DATABASE_DRIVER", "mysql"))
	if driver != "mysql" && driver != "pgx" {
		return nil, errors.New("DATABASE_DRIVER must be mysql or pgx")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "amazonpay-service"),
			GatewayID:   getEnv("APP_GATEWAY_ID", "amazon_payments_advanced"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		Database: DatabaseConfig{
			Driver:          driver,
			DSN:             dsn,
			MaxOpenConns:    getIntEnv("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("DATABASE_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
			AutoMigrate:     getBoolEnv("DATABASE_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			PollKey:  getEnv("REDIS_POLL_KEY", "amazonpay:poll_jobs"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		AmazonPay: AmazonPayConfig{
			Region:            strings.ToLower(getEnv("AMAZON_PAY_REGION", "na")),
			Sandbox:           getBoolEnv("AMAZON_PAY_SANDBOX", true),
			PublicKeyID:       getEnv("AMAZON_PAY_PUBLIC_KEY_ID", ""),
			PrivateKeyPath:    getEnv("AMAZON_PAY_PRIVATE_KEY_PATH", ""),
			PrivateKeyPEM:     getEnv("AMAZON_PAY_PRIVATE_KEY", ""),
			MerchantStoreName: getEnv("AMAZON_PAY_MERCHANT_STORE_NAME", ""),
			PaymentCapture:    strings.ToLower(getEnv("AMAZON_PAY_PAYMENT_CAPTURE", "")),
			AuthorizationMode: strings.ToLower(getEnv("AMAZON_PAY_AUTHORIZATION_MODE", "sync")),
			HTTPTimeout:       getSecondsEnv("AMAZON_PAY_HTTP_TIMEOUT_SECONDS", 15*time.Second),
		},
		IPN: IPNConfig{
			CertFetchTimeout: getSecondsEnv("IPN_CERT_FETCH_TIMEOUT_SECONDS", 5*time.Second),
			CertCacheTTL:     getMinutesEnv("IPN_CERT_CACHE_TTL_MINUTES", 0),
			MaxBodyBytes:     getEnv("IPN_MAX_BODY", "256K"),
		},
		Polling: PollingConfig{
			Delay:          getSecondsEnv("POLL_DELAY_SECONDS", time.Minute),
			BatchSize:      getIntEnv("POLL_BATCH_SIZE", 100),
			WorkerInterval: getSecondsEnv("POLL_WORKER_INTERVAL_SECONDS", 15*time.Second),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
