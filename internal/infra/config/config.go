package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"
	StorageSQL    = "sql"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string
	GRPCAddr string

	StorageDriver   string
	MongoURI        string
	MongoDB         string
	SQLDriver       string
	SQLDSN          string
	SQLMaxOpenConns int
	AutoMigrate     bool
	FixturesPath    string

	KafkaBrokers       []string
	KafkaTopicPrefix   string
	KafkaGroupID       string
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration

	AMQPURL           string
	NotificationQueue string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	IdempotencyTTL  time.Duration
	WebhookRate     int
	WebhookRefill   int
	WebhookInterval time.Duration

	JWTSecret    string
	JWTIssuer    string
	AdminKeyHash string
	AdminID      string

	GatewaySnapURL   string
	GatewayAPIURL    string
	GatewayServerKey string
	GatewayTimeout   time.Duration

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	CORSOrigins []string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:               getEnv("APP_ENV", "dev"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:          getEnv("GRPC_ADDR", ""),
		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", StorageMemory)),
		MongoURI:          os.Getenv("MONGO_URI"),
		MongoDB:           getEnv("MONGO_DB", "roomstay"),
		SQLDriver:         strings.ToLower(getEnv("SQL_DRIVER", "postgres")),
		SQLDSN:            os.Getenv("SQL_DSN"),
		FixturesPath:      os.Getenv("LISTING_FIXTURES"),
		KafkaTopicPrefix:  getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "roomstay-notifications"),
		AMQPURL:           os.Getenv("AMQP_URL"),
		NotificationQueue: getEnv("NOTIFICATION_QUEUE", "notifications"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTIssuer:         getEnv("JWT_ISSUER", ""),
		AdminKeyHash:      os.Getenv("ADMIN_KEY_HASH"),
		AdminID:           getEnv("ADMIN_ID", "operator"),
		GatewaySnapURL:    getEnv("GATEWAY_SNAP_URL", "https://app.sandbox.midtrans.com"),
		GatewayAPIURL:     getEnv("GATEWAY_API_URL", "https://api.sandbox.midtrans.com"),
		GatewayServerKey:  os.Getenv("GATEWAY_SERVER_KEY"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKey:       getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:       getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:          getEnv("S3_BUCKET", "roomstay-gateway"),
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = splitList(brokers)
	}
	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	var err error
	if cfg.SQLMaxOpenConns, err = parseIntEnv("SQL_MAX_OPEN_CONNS", 20); err != nil {
		return Config{}, err
	}
	if cfg.AutoMigrate, err = parseBoolEnv("SQL_AUTO_MIGRATE", true); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = parseDurationEnv("IDEMP_TTL", 168*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.WebhookRate, err = parseIntEnv("WEBHOOK_RATE_CAPACITY", 30); err != nil {
		return Config{}, err
	}
	if cfg.WebhookRefill, err = parseIntEnv("WEBHOOK_RATE_REFILL", 10); err != nil {
		return Config{}, err
	}
	if cfg.WebhookInterval, err = parseDurationEnv("WEBHOOK_RATE_INTERVAL", time.Second); err != nil {
		return Config{}, err
	}
	if cfg.GatewayTimeout, err = parseDurationEnv("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StorageDriver {
	case StorageMemory:
	case StorageMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORAGE_DRIVER=mongo")
		}
	case StorageSQL:
		if c.SQLDSN == "" {
			return fmt.Errorf("SQL_DSN is required when STORAGE_DRIVER=sql")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.JWTSecret == "" && !c.Development() {
		return fmt.Errorf("JWT_SECRET is required outside dev")
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	return nil
}

func (c Config) Development() bool {
	return c.Env == "dev" || c.Env == "local"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return n, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
