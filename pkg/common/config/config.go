package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"

	CacheRedis  = "redis"
	CacheMemory = "memory"
	CacheNone   = "none"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Record store
	StoreDriver  string
	StoreTimeout time.Duration

	// MongoDB
	MongoURI            string
	MongoDatabase       string
	MongoConnectTimeout time.Duration

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	SnapshotsEnabled bool

	// Redis
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	ReportCache    string
	ReportCacheTTL time.Duration

	// Kafka
	KafkaBrokers       []string
	KafkaGroupID       string
	KafkaEventsTopic   string
	KafkaFeedbackTopic string
	PseudonymSalt      string

	// OIDC
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCUserInfoURL  string

	// Analytics
	BucketSchemeFile     string
	DefaultReferenceDate string
	SnapshotWorkers      int

	// Gateway specific
	GatewayRequestTimeout time.Duration
	GatewayRateLimitRPS   int
	GatewayRateLimitBurst int
	CORSAllowedOrigins    []string
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", StoreMongo)),
		StoreTimeout: getDuration("STORE_TIMEOUT", 10*time.Second),

		MongoURI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:       getEnv("MONGO_DB", "hospital"),
		MongoConnectTimeout: getDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "analytics"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "analytics123"),
		PostgresDB:       getEnv("POSTGRES_DB", "hospital_analytics"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		SnapshotsEnabled: getBoolEnv("SNAPSHOTS_ENABLED", false),

		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getIntEnv("REDIS_DB", 0),
		ReportCache:    strings.ToLower(getEnv("REPORT_CACHE", CacheRedis)),
		ReportCacheTTL: getDuration("REPORT_CACHE_TTL", 5*time.Minute),

		KafkaBrokers:       getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "hospital-analytics"),
		KafkaEventsTopic:   getEnv("KAFKA_EVENTS_TOPIC", "clinical.events"),
		KafkaFeedbackTopic: getEnv("KAFKA_FEEDBACK_TOPIC", "feedback.submitted"),
		PseudonymSalt:      getEnv("PSEUDONYM_SALT", ""),

		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCUserInfoURL:  getEnv("OIDC_USERINFO_URL", ""),

		BucketSchemeFile:     getEnv("BUCKET_SCHEME_FILE", ""),
		DefaultReferenceDate: getEnv("DEFAULT_REFERENCE_DATE", "2024-01-01"),
		SnapshotWorkers:      getIntEnv("SNAPSHOT_WORKERS", 2),

		GatewayRequestTimeout: getDuration("GATEWAY_REQUEST_TIMEOUT", 15*time.Second),
		GatewayRateLimitRPS:   getIntEnv("GATEWAY_RATE_LIMIT_RPS", 50),
		GatewayRateLimitBurst: getIntEnv("GATEWAY_RATE_LIMIT_BURST", 100),
		CORSAllowedOrigins:    getStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
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

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
