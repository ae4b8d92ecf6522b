package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	AdminToken  string

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Pricing   PricingConfig
	Ingest    IngestConfig
	Search    SearchConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Push      MetricsPushConfig

	SuppliersFile string
}

// TelemetryConfig covers logs, traces and OTel metrics.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
	SlowQuery     time.Duration
}

type PricingConfig struct {
	VATRate        float64
	DefaultMargin  float64
	CategoryMargin map[string]float64
}

type IngestConfig struct {
	DataDir        string
	BatchSize      int
	MaxConcurrency int
	LockTTL        time.Duration
	RunInterval    time.Duration
	CronEnabled    bool
}

type SearchConfig struct {
	DefaultLimit int
	MaxLimit     int
	CacheBackend string
	CacheSize    int
	CacheTTL     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled     bool
	SearchRate  float64
	SearchBurst int
}

// MetricsPushConfig targets short-lived processes that exit before a scrape.
type MetricsPushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "catalogsync"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		AdminToken:   strings.TrimSpace(getenv("ADMIN_TOKEN", "")),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "json")),
			OtelEnabled:   getenvBool("OTEL_ENABLED", strings.EqualFold(getenv("ENVIRONMENT", "development"), "production")),
			OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			OTLPProtocol:  strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			SlowQuery:     getenvDuration("DATABASE_SLOW_QUERY", time.Second),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "catalog"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "catalog.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Pricing: PricingConfig{
			VATRate:       getenvFloat("VAT_RATE", 0.255),
			DefaultMargin: getenvFloat("PRICING_DEFAULT_MARGIN", 1.25),
			CategoryMargin: map[string]float64{
				"cable": getenvFloat("PRICING_CABLE_MARGIN", 1.40),
			},
		},
		Ingest: IngestConfig{
			DataDir:        getenv("DATA_DIR", "data"),
			BatchSize:      getenvInt("INGEST_BATCH_SIZE", 5000),
			MaxConcurrency: getenvInt("INGEST_MAX_CONCURRENCY", 2),
			LockTTL:        getenvDuration("INGEST_LOCK_TTL", 2*time.Hour),
			RunInterval:    getenvDuration("SCHEDULER_RUN_INTERVAL", 24*time.Hour),
			CronEnabled:    getenvBool("SCHEDULER_CRON_ENABLED", true),
		},
		Search: SearchConfig{
			DefaultLimit: getenvInt("SEARCH_DEFAULT_LIMIT", 50),
			MaxLimit:     getenvInt("SEARCH_MAX_LIMIT", 200),
			CacheBackend: strings.ToLower(getenv("CACHE_BACKEND", "memory")),
			CacheSize:    getenvInt("CACHE_SIZE", 1000),
			CacheTTL:     getenvDuration("CACHE_TTL", 60*time.Second),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getenvBool("RATE_LIMIT_ENABLED", true),
			SearchRate:  getenvFloat("RATE_LIMIT_SEARCH_RATE", 20),
			SearchBurst: getenvInt("RATE_LIMIT_SEARCH_BURST", 40),
		},
		Push: MetricsPushConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
		},
		SuppliersFile: getenv("SUPPLIERS_FILE", ""),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
