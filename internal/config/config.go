package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is resolved once at startup from the environment. A local .env file
// is loaded first when present; real environment variables win over it.
type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string

	// PostgresDSN selects the durable store. Empty means in-memory
	// repositories with a seeded demo catalog.
	PostgresDSN string
	// RedisAddr enables the attempt-token fast path when set.
	RedisAddr string
	// KafkaBrokers enables the order event forwarder when set.
	KafkaBrokers []string
	KafkaTopic   string

	LockWait        time.Duration
	AttemptStale    time.Duration
	RecoverInterval time.Duration
	SeedCatalog     bool
}

func Load() Config {
	_ = godotenv.Load()

	return Config{
		ServiceName:     getenv("SERVICE_NAME", "shippingkart"),
		Env:             getenv("ENV", "dev"),
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		KafkaBrokers:    splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      getenv("KAFKA_TOPIC", "shippingkart.order.created"),
		LockWait:        getduration("LOCK_WAIT", 2*time.Second),
		AttemptStale:    getduration("ATTEMPT_STALE_AFTER", 30*time.Second),
		RecoverInterval: getduration("RECOVER_INTERVAL", 15*time.Second),
		SeedCatalog:     getbool("SEED_CATALOG", true),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getbool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
