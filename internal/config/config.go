package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	StoreProvider string
	BusProvider   string

	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost      string
	RedisPort      string
	RedisNamespace string

	NatsHost string
	NatsPort string

	ApiEnabled string
	ApiPort    string
	GRPCPort   string

	// TrustedProxies lists the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the socket address is always used.
	TrustedProxies []netip.Prefix

	StorageTimeout  time.Duration
	CommitRetries   int
	JWTSecret       string
	TokenTTL        time.Duration
	AdminUsername   string
	AdminPassword   string
	BcryptCost      int
	UsageRetention  time.Duration
	ReindexInterval time.Duration

	LogLevel  string
	LogFormat string
}

// New loads and validates configuration from environment variables.
// HTTP and gRPC servers are optional: ApiAddr and GRPCAddr return an error
// when they are not configured and the server is simply not started.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StoreProvider:   os.Getenv("KEYGATE_STORE_PROVIDER"),
		BusProvider:     getEnv("KEYGATE_BUS_PROVIDER", "none"),
		DBUser:          os.Getenv("KEYGATE_POSTGRES_USER"),
		DBPass:          os.Getenv("KEYGATE_POSTGRES_PASSWORD"),
		DBHost:          os.Getenv("KEYGATE_POSTGRES_HOST"),
		DBPort:          getEnv("KEYGATE_POSTGRES_PORT", "5432"),
		DBName:          os.Getenv("KEYGATE_POSTGRES_DB"),
		SSLMode:         getEnv("KEYGATE_POSTGRES_SSLMODE", "disable"),
		RedisHost:       os.Getenv("KEYGATE_REDIS_HOST"),
		RedisPort:       getEnv("KEYGATE_REDIS_PORT", "6379"),
		RedisNamespace:  getEnv("KEYGATE_REDIS_NAMESPACE", "keygate"),
		NatsHost:        os.Getenv("KEYGATE_NATS_HOST"),
		NatsPort:        getEnv("KEYGATE_NATS_PORT", "4222"),
		ApiEnabled:      os.Getenv("KEYGATE_API_ENABLED"),
		ApiPort:         os.Getenv("KEYGATE_API_PORT"),
		GRPCPort:        os.Getenv("KEYGATE_GRPC_PORT"),
		StorageTimeout:  getEnvDuration("KEYGATE_STORAGE_TIMEOUT", 3*time.Second),
		CommitRetries:   getEnvInt("KEYGATE_COMMIT_RETRIES", 8),
		JWTSecret:       os.Getenv("KEYGATE_JWT_SECRET"),
		TokenTTL:        getEnvDuration("KEYGATE_TOKEN_TTL", 12*time.Hour),
		AdminUsername:   getEnv("KEYGATE_ADMIN_USERNAME", "admin"),
		AdminPassword:   os.Getenv("KEYGATE_ADMIN_PASSWORD"),
		BcryptCost:      getEnvInt("KEYGATE_BCRYPT_COST", 10),
		UsageRetention:  getEnvDuration("KEYGATE_USAGE_RETENTION", 30*24*time.Hour),
		ReindexInterval: getEnvDuration("KEYGATE_REINDEX_INTERVAL", 10*time.Minute),
		LogLevel:        getEnv("KEYGATE_LOG_LEVEL", "info"),
		LogFormat:       getEnv("KEYGATE_LOG_FORMAT", "text"),
	}

	switch cfg.StoreProvider {
	case "":
		return nil, fmt.Errorf("missing required env: KEYGATE_STORE_PROVIDER (memory|redis|postgres)")
	case "memory":
	case "redis":
		if cfg.RedisHost == "" {
			return nil, fmt.Errorf("missing required env for redis store: KEYGATE_REDIS_HOST")
		}
	case "postgres":
		if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" {
			return nil, fmt.Errorf("missing required env for postgres store: KEYGATE_POSTGRES_USER/HOST/DB")
		}
	default:
		return nil, fmt.Errorf("invalid store provider %q, must be 'memory', 'redis' or 'postgres'", cfg.StoreProvider)
	}

	switch cfg.BusProvider {
	case "none":
	case "nats":
		if cfg.NatsHost == "" {
			return nil, fmt.Errorf("missing required env for nats bus: KEYGATE_NATS_HOST")
		}
	default:
		return nil, fmt.Errorf("invalid bus provider %q, must be 'none' or 'nats'", cfg.BusProvider)
	}

	proxies, err := parsePrefixes(os.Getenv("KEYGATE_TRUSTED_PROXIES"))
	if err != nil {
		return nil, fmt.Errorf("invalid KEYGATE_TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing required env: KEYGATE_JWT_SECRET")
	}
	if cfg.StorageTimeout <= 0 {
		return nil, fmt.Errorf("KEYGATE_STORAGE_TIMEOUT must be positive")
	}
	if cfg.CommitRetries < 1 {
		return nil, fmt.Errorf("KEYGATE_COMMIT_RETRIES must be at least 1")
	}

	return cfg, nil
}

// DSN returns the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// ApiAddr returns the HTTP listen address if the API is enabled.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("KEYGATE_API_PORT is required when KEYGATE_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (KEYGATE_API_ENABLED != true)")
}

// GRPCAddr returns the gRPC listen address if a port is configured.
func (c *Config) GRPCAddr() (string, error) {
	if c.GRPCPort == "" {
		return "", fmt.Errorf("gRPC server is disabled (KEYGATE_GRPC_PORT not set)")
	}
	return ":" + c.GRPCPort, nil
}

// parsePrefixes reads a comma separated list of CIDRs or bare addresses.
// A bare address is treated as a single-host prefix.
func parsePrefixes(val string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
