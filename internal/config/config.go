package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `toml:"database_url"` // NOTIFY_DATABASE_URL (required; "memory://" = in-process store)
	HTTPAddr    string `toml:"http_addr"`    // NOTIFY_HTTP_ADDR (default ":8080")
	GRPCAddr    string `toml:"grpc_addr"`    // NOTIFY_GRPC_ADDR (default ":9090")

	// Auth
	JWTSecret      string   `toml:"jwt_secret"`      // NOTIFY_JWT_SECRET (required)
	ServiceToken   string   `toml:"service_token"`   // NOTIFY_SERVICE_TOKEN (empty = internal ingress disabled)
	AllowedOrigins []string `toml:"allowed_origins"` // NOTIFY_ALLOWED_ORIGINS (comma list; empty = same origin, "*" = any)

	// Dispatch
	DispatchWorkers int `toml:"dispatch_workers"` // NOTIFY_DISPATCH_WORKERS (default 8)
	DispatchQueue   int `toml:"dispatch_queue"`   // NOTIFY_DISPATCH_QUEUE (default 256, per worker)

	// Bus
	NATSURL      string   `toml:"nats_url"`       // NOTIFY_NATS_URL (optional, empty = no bus)
	KafkaBrokers []string `toml:"kafka_brokers"`  // NOTIFY_KAFKA_BROKERS (comma list; empty = no Kafka ingress)
	KafkaTopic   string   `toml:"kafka_topic"`    // NOTIFY_KAFKA_TOPIC (default "notify-events")
	KafkaGroupID string   `toml:"kafka_group_id"` // NOTIFY_KAFKA_GROUP_ID (default "notifyd")

	// Unread cache
	RedisAddr     string        `toml:"redis_addr"`     // NOTIFY_REDIS_ADDR (optional, empty = no cache)
	RedisPassword string        `toml:"redis_password"` // NOTIFY_REDIS_PASSWORD
	RedisDB       int           `toml:"redis_db"`       // NOTIFY_REDIS_DB (default 0)
	CacheTTL      time.Duration `toml:"cache_ttl"`      // NOTIFY_CACHE_TTL (default 5m)

	// Archive settings
	ArchiveInterval   time.Duration `toml:"archive_interval"`    // NOTIFY_ARCHIVE_INTERVAL (default 10m; 0 = disabled)
	ArchiveS3Bucket   string        `toml:"archive_s3_bucket"`   // NOTIFY_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string        `toml:"archive_s3_endpoint"` // NOTIFY_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        `toml:"archive_s3_region"`   // NOTIFY_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Prefix   string        `toml:"archive_s3_prefix"`   // NOTIFY_ARCHIVE_S3_PREFIX (default "notify/messages/")

	// Logging
	LogFormat string `toml:"log_format"` // NOTIFY_LOG_FORMAT ("text" or "json", default "text")
	LogLevel  string `toml:"log_level"`  // NOTIFY_LOG_LEVEL (default "info")
}

// Defaults returns a Config with every optional setting at its default.
func Defaults() *Config {
	return &Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":9090",
		DispatchWorkers: 8,
		DispatchQueue:   256,
		KafkaTopic:      "notify-events",
		KafkaGroupID:    "notifyd",
		CacheTTL:        5 * time.Minute,
		ArchiveInterval: 10 * time.Minute,
		ArchiveS3Region: "us-east-1",
		ArchiveS3Prefix: "notify/messages/",
		LogFormat:       "text",
		LogLevel:        "info",
	}
}

// Load builds the configuration. Sources, later ones winning: defaults,
// the TOML file named by NOTIFY_CONFIG, then the environment. A .env file
// in the working directory is loaded into the environment first without
// overriding variables that are already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c := Defaults()
	if path := os.Getenv("NOTIFY_CONFIG"); path != "" {
		if err := c.decodeFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// decodeFile overlays the TOML file at path onto c. Durations are written
// as strings ("5m").
func (c *Config) decodeFile(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.DatabaseURL, "NOTIFY_DATABASE_URL")
	setString(&c.HTTPAddr, "NOTIFY_HTTP_ADDR")
	setString(&c.GRPCAddr, "NOTIFY_GRPC_ADDR")
	setString(&c.JWTSecret, "NOTIFY_JWT_SECRET")
	setString(&c.ServiceToken, "NOTIFY_SERVICE_TOKEN")
	setList(&c.AllowedOrigins, "NOTIFY_ALLOWED_ORIGINS")
	setString(&c.NATSURL, "NOTIFY_NATS_URL")
	setList(&c.KafkaBrokers, "NOTIFY_KAFKA_BROKERS")
	setString(&c.KafkaTopic, "NOTIFY_KAFKA_TOPIC")
	setString(&c.KafkaGroupID, "NOTIFY_KAFKA_GROUP_ID")
	setString(&c.RedisAddr, "NOTIFY_REDIS_ADDR")
	setString(&c.RedisPassword, "NOTIFY_REDIS_PASSWORD")
	setString(&c.ArchiveS3Bucket, "NOTIFY_ARCHIVE_S3_BUCKET")
	setString(&c.ArchiveS3Endpoint, "NOTIFY_ARCHIVE_S3_ENDPOINT")
	setString(&c.ArchiveS3Region, "NOTIFY_ARCHIVE_S3_REGION")
	setString(&c.ArchiveS3Prefix, "NOTIFY_ARCHIVE_S3_PREFIX")
	setString(&c.LogFormat, "NOTIFY_LOG_FORMAT")
	setString(&c.LogLevel, "NOTIFY_LOG_LEVEL")

	for _, f := range []struct {
		key string
		dst *int
	}{
		{"NOTIFY_DISPATCH_WORKERS", &c.DispatchWorkers},
		{"NOTIFY_DISPATCH_QUEUE", &c.DispatchQueue},
		{"NOTIFY_REDIS_DB", &c.RedisDB},
	} {
		if err := setInt(f.dst, f.key); err != nil {
			return err
		}
	}

	for _, f := range []struct {
		key string
		dst *time.Duration
	}{
		{"NOTIFY_CACHE_TTL", &c.CacheTTL},
		{"NOTIFY_ARCHIVE_INTERVAL", &c.ArchiveInterval},
	} {
		if err := setDuration(f.dst, f.key); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("NOTIFY_DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("NOTIFY_JWT_SECRET is required")
	}
	if c.DispatchWorkers < 1 {
		return fmt.Errorf("NOTIFY_DISPATCH_WORKERS must be at least 1, got %d", c.DispatchWorkers)
	}
	if c.DispatchQueue < 1 {
		return fmt.Errorf("NOTIFY_DISPATCH_QUEUE must be at least 1, got %d", c.DispatchQueue)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("NOTIFY_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// UsesMemoryStore reports whether DatabaseURL selects the in-process store.
func (c *Config) UsesMemoryStore() bool {
	return strings.HasPrefix(c.DatabaseURL, "memory:")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
