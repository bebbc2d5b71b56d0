package config // package config loads application configuration from environment variables

import (
	"log" // log is used to report configuration errors and halt execution
	"os"  // os provides access to environment variables
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; domain options follow the names spec.md §6
// assigns them (auction.*, bid.*, finalization.*, hot.*, cold.*), ambient
// connection settings follow the teacher's original names.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool // hot.tls

	RabbitMQURL string

	JWTSecret string

	BidRateLimitPerSec      int           // bid.rateLimitPerSec
	ExtensionThreshold      time.Duration // auction.extensionThresholdSec
	ExtensionDuration       time.Duration // auction.extensionDurationSec
	Retention               time.Duration // auction.retentionSec
	FinalizationMaxAttempts int           // finalization.maxAttempts
	ColdConnectionString    string        // cold.connectionString, informational override of DB_*
}

// Load reads configuration values from environment variables and returns a
// Config. Required ambient connection variables are enforced by must();
// domain tunables fall back to spec.md's defaults when unset.
func Load() Config {
	return Config{
		Env:  must("APP_ENV"),
		Port: must("APP_PORT"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		RedisAddr:     envStr("REDIS_ADDR", redisAddrFromParts()),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
		RedisTLS:      envBool("REDIS_TLS", false),

		RabbitMQURL: must("RABBITMQ_URL"),

		JWTSecret: must("JWT_SECRET"),

		BidRateLimitPerSec:      envInt("BID_RATE_LIMIT_PER_SEC", 1),
		ExtensionThreshold:      envDur("AUCTION_EXTENSION_THRESHOLD_SEC", 30*time.Second),
		ExtensionDuration:       envDur("AUCTION_EXTENSION_DURATION_SEC", 30*time.Second),
		Retention:               envDur("AUCTION_RETENTION_SEC", 5*time.Minute),
		FinalizationMaxAttempts: envInt("FINALIZATION_MAX_ATTEMPTS", 5),
		ColdConnectionString:    os.Getenv("COLD_CONNECTION_STRING"),
	}
}

func redisAddrFromParts() string {
	host := os.Getenv("REDIS_HOST")
	port := os.Getenv("REDIS_PORT")
	if host != "" && port != "" {
		return host + ":" + port
	}
	return "localhost:6379"
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

