package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Broker transports accepted by PLANETS_BROKER.
const (
	BrokerKafka = "kafka"
	BrokerNATS  = "nats"
	BrokerNone  = "none"
)

// Consumer failure policies accepted by PLANETS_CONSUMER_FAILURE_POLICY.
const (
	PolicyDrop       = "drop"
	PolicyRetry      = "retry"
	PolicyDeadLetter = "dead-letter"
)

// MemoryCache is the REDIS_URL value that selects the in-process cache.
const MemoryCache = "memory"

type Config struct {
	// Broker
	Broker           string        // PLANETS_BROKER (default "kafka")
	KafkaBrokers     []string      // KAFKA_BOOTSTRAP_SERVERS (default "kafka:9092")
	NATSURL          string        // NATS_URL (required when PLANETS_BROKER=nats)
	Topic            string        // PLANETS_TOPIC (default "planet_events")
	GroupID          string        // PLANETS_GROUP_ID (default "analytics-consumer")
	BootstrapRetries int           // PLANETS_BOOTSTRAP_RETRIES (default 3)
	BootstrapDelay   time.Duration // PLANETS_BOOTSTRAP_DELAY (default 2s)

	// Storage
	RedisURL    string        // REDIS_URL (default "redis://redis:6379/0"; "memory" = in-process)
	DatabaseURL string        // PLANETS_DATABASE_URL, else built from POSTGRES_*
	StatsTTL    time.Duration // PLANETS_STATS_TTL (default 5m)

	// Consumer
	FailurePolicy string        // PLANETS_CONSUMER_FAILURE_POLICY (default "drop")
	MaxAttempts   int           // PLANETS_CONSUMER_MAX_ATTEMPTS (default 3)
	RetryBackoff  time.Duration // PLANETS_CONSUMER_RETRY_BACKOFF (default 1s)
	DLQTopic      string        // PLANETS_DLQ_TOPIC (default "<topic>.dlq")

	// Planet fetch task
	FetchURL         string        // PLANETS_FETCH_URL
	FetchTimeout     time.Duration // PLANETS_FETCH_TIMEOUT (default 10s)
	FetchInterval    time.Duration // PLANETS_FETCH_INTERVAL (default 1h; 0 = disabled)
	FetchMaxRetries  int           // PLANETS_FETCH_MAX_RETRIES (default 2)
	FetchRetryDelay  time.Duration // PLANETS_FETCH_RETRY_DELAY (default 30s)
	BreakerThreshold int           // PLANETS_BREAKER_THRESHOLD (default 3)
	BreakerReset     time.Duration // PLANETS_BREAKER_RESET (default 60s)

	// HTTP
	HTTPAddr  string // PLANETS_HTTP_ADDR (default ":8080")
	AuthToken string // PLANETS_AUTH_TOKEN (optional, empty = auth disabled)

	// Audit archive
	ArchiveInterval   time.Duration // PLANETS_ARCHIVE_INTERVAL (default 0 = disabled)
	ArchiveS3Bucket   string        // PLANETS_ARCHIVE_S3_BUCKET (enables the archive when set)
	ArchiveS3Prefix   string        // PLANETS_ARCHIVE_S3_PREFIX (default "audit/")
	ArchiveS3Region   string        // PLANETS_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Endpoint string        // PLANETS_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveDir        string        // PLANETS_ARCHIVE_DIR (local directory destination)

	// Logging
	LogLevel  string // PLANETS_LOG_LEVEL (default "info")
	LogFormat string // PLANETS_LOG_FORMAT (default "json")
}

// DefaultFetchURL is the public Star Wars GraphQL endpoint.
const DefaultFetchURL = "https://swapi-graphql.netlify.app/graphql"

// Load reads configuration from the environment. When PLANETS_CONFIG_FILE
// names a TOML file, its keys (the same variable names) supply defaults that
// the environment overrides.
func Load() (*Config, error) {
	src := source{}
	if path := os.Getenv("PLANETS_CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}
	return load(src)
}

func load(src source) (*Config, error) {
	p := parser{src: src}

	topic := src.get("PLANETS_TOPIC", "planet_events")
	c := &Config{
		Broker:           strings.ToLower(src.get("PLANETS_BROKER", BrokerKafka)),
		KafkaBrokers:     splitList(src.get("KAFKA_BOOTSTRAP_SERVERS", "kafka:9092")),
		NATSURL:          src.get("NATS_URL", ""),
		Topic:            topic,
		GroupID:          src.get("PLANETS_GROUP_ID", "analytics-consumer"),
		BootstrapRetries: p.int("PLANETS_BOOTSTRAP_RETRIES", 3),
		BootstrapDelay:   p.duration("PLANETS_BOOTSTRAP_DELAY", "2s"),

		RedisURL:    src.get("REDIS_URL", "redis://redis:6379/0"),
		DatabaseURL: src.get("PLANETS_DATABASE_URL", ""),
		StatsTTL:    p.duration("PLANETS_STATS_TTL", "5m"),

		FailurePolicy: strings.ToLower(src.get("PLANETS_CONSUMER_FAILURE_POLICY", PolicyDrop)),
		MaxAttempts:   p.int("PLANETS_CONSUMER_MAX_ATTEMPTS", 3),
		RetryBackoff:  p.duration("PLANETS_CONSUMER_RETRY_BACKOFF", "1s"),
		DLQTopic:      src.get("PLANETS_DLQ_TOPIC", topic+".dlq"),

		FetchURL:         src.get("PLANETS_FETCH_URL", DefaultFetchURL),
		FetchTimeout:     p.duration("PLANETS_FETCH_TIMEOUT", "10s"),
		FetchInterval:    p.duration("PLANETS_FETCH_INTERVAL", "1h"),
		FetchMaxRetries:  p.int("PLANETS_FETCH_MAX_RETRIES", 2),
		FetchRetryDelay:  p.duration("PLANETS_FETCH_RETRY_DELAY", "30s"),
		BreakerThreshold: p.int("PLANETS_BREAKER_THRESHOLD", 3),
		BreakerReset:     p.duration("PLANETS_BREAKER_RESET", "60s"),

		HTTPAddr:  src.get("PLANETS_HTTP_ADDR", ":8080"),
		AuthToken: src.get("PLANETS_AUTH_TOKEN", ""),

		ArchiveInterval:   p.duration("PLANETS_ARCHIVE_INTERVAL", "0"),
		ArchiveS3Bucket:   src.get("PLANETS_ARCHIVE_S3_BUCKET", ""),
		ArchiveS3Prefix:   src.get("PLANETS_ARCHIVE_S3_PREFIX", "audit/"),
		ArchiveS3Region:   src.get("PLANETS_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Endpoint: src.get("PLANETS_ARCHIVE_S3_ENDPOINT", ""),
		ArchiveDir:        src.get("PLANETS_ARCHIVE_DIR", ""),

		LogLevel:  strings.ToLower(src.get("PLANETS_LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(src.get("PLANETS_LOG_FORMAT", "json")),
	}
	if p.err != nil {
		return nil, p.err
	}

	if c.DatabaseURL == "" {
		c.DatabaseURL = postgresURL(src)
	}

	switch c.Broker {
	case BrokerKafka:
		if len(c.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("KAFKA_BOOTSTRAP_SERVERS must not be empty")
		}
	case BrokerNATS:
		if c.NATSURL == "" {
			return nil, fmt.Errorf("NATS_URL is required when PLANETS_BROKER=nats")
		}
	case BrokerNone:
	default:
		return nil, fmt.Errorf("PLANETS_BROKER: unknown broker %q (must be kafka, nats or none)", c.Broker)
	}

	switch c.FailurePolicy {
	case PolicyDrop, PolicyRetry, PolicyDeadLetter:
	default:
		return nil, fmt.Errorf("PLANETS_CONSUMER_FAILURE_POLICY: unknown policy %q", c.FailurePolicy)
	}
	if c.MaxAttempts < 1 {
		return nil, fmt.Errorf("PLANETS_CONSUMER_MAX_ATTEMPTS must be >= 1")
	}
	if c.BootstrapRetries < 1 {
		return nil, fmt.Errorf("PLANETS_BOOTSTRAP_RETRIES must be >= 1")
	}
	if c.BreakerThreshold < 1 {
		return nil, fmt.Errorf("PLANETS_BREAKER_THRESHOLD must be >= 1")
	}
	if c.FetchMaxRetries < 0 {
		return nil, fmt.Errorf("PLANETS_FETCH_MAX_RETRIES must be >= 0")
	}

	return c, nil
}

// postgresURL builds a connection URL from the POSTGRES_* variables.
func postgresURL(src source) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(src.get("POSTGRES_USER", "postgres"), src.get("POSTGRES_PASSWORD", "postgres")),
		Host:     src.get("POSTGRES_HOST", "postgres") + ":" + src.get("POSTGRES_PORT", "5432"),
		Path:     "/" + src.get("POSTGRES_DB", "demo"),
		RawQuery: "sslmode=" + src.get("POSTGRES_SSLMODE", "disable"),
	}
	return u.String()
}

// source resolves a key from the environment first, then the config file.
type source struct {
	file map[string]string
}

func (s source) get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v, ok := s.file[key]; ok && v != "" {
		return v
	}
	return fallback
}

func readFile(path string) (map[string]string, error) {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("PLANETS_CONFIG_FILE %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		case []any:
			parts := make([]string, 0, len(tv))
			for _, item := range tv {
				parts = append(parts, fmt.Sprint(item))
			}
			out[k] = strings.Join(parts, ",")
		default:
			out[k] = fmt.Sprint(tv)
		}
	}
	return out, nil
}

// parser converts values and keeps the first error.
type parser struct {
	src source
	err error
}

func (p *parser) int(key string, fallback int) int {
	v := p.src.get(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return n
}

func (p *parser) duration(key, fallback string) time.Duration {
	v := p.src.get(key, fallback)
	d, err := time.ParseDuration(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
