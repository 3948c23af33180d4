package config

import (
	"os"
	"strings"
	"time"

	platformstrings "acclaim/pkg/platform/strings"
)

// Server captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean.
type Server struct {
	Addr            string
	PostgresURL     string
	Redis           RedisConfig
	Kafka           KafkaConfig
	ActorHeader     string
	JWTSigningKey   string
	ShutdownTimeout time.Duration
	AttributionTTL  time.Duration
	CatalogTTL      time.Duration

	// Catalog seeds the competency directory: competency id to domain
	// classification. Format: "uuid=CLASSIFICATION,uuid=CLASSIFICATION".
	Catalog map[string]string
}

// RedisConfig configures the optional Redis connection used for distributed
// attribution locks. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the outbound process-engine bridge. Empty brokers
// disable the bridge (a no-op bridge is wired instead).
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("ACCLAIM_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	actorHeader := os.Getenv("ACCLAIM_ACTOR_HEADER")
	if actorHeader == "" {
		actorHeader = "X-Actor-ID"
	}

	topic := os.Getenv("ACCLAIM_KAFKA_TOPIC")
	if topic == "" {
		topic = "recognition.process-events"
	}

	var brokers []string
	if raw := os.Getenv("ACCLAIM_KAFKA_BROKERS"); raw != "" {
		brokers = platformstrings.DedupeAndTrim(strings.Split(raw, ","))
	}

	catalog := make(map[string]string)
	if raw := os.Getenv("ACCLAIM_COMPETENCY_CATALOG"); raw != "" {
		for _, entry := range strings.Split(raw, ",") {
			key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
			if ok && key != "" {
				catalog[key] = value
			}
		}
	}

	return Server{
		Addr:        addr,
		PostgresURL: os.Getenv("ACCLAIM_POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("ACCLAIM_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: brokers,
			Topic:   topic,
		},
		ActorHeader:     actorHeader,
		JWTSigningKey:   os.Getenv("ACCLAIM_JWT_SIGNING_KEY"),
		ShutdownTimeout: 10 * time.Second,
		AttributionTTL:  10 * time.Second,
		CatalogTTL:      5 * time.Minute,
		Catalog:         catalog,
	}
}
