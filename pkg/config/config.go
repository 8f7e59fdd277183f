// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Matcher, Export, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Matcher  MatcherConfig  `yaml:"matcher"`
	Export   ExportConfig   `yaml:"export"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBatchQueries int           `yaml:"maxBatchQueries"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	MatchResults string `yaml:"matchResults"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// MatcherConfig controls the similarity index and the batch scheduler.
type MatcherConfig struct {
	TopN         int    `yaml:"topN"`
	MaxVocabSize int    `yaml:"maxVocabSize"`
	ChunkSize    int    `yaml:"chunkSize"`
	MaxWorkers   int    `yaml:"maxWorkers"`
	StopWords    string `yaml:"stopWords"`
}

// ExportConfig controls how result rows are split into pages for output.
type ExportConfig struct {
	PageSize int `yaml:"pageSize"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with the matcher's stock settings: five matches
// per request, a 50 000-term vocabulary, chunks of 100 requests over four
// workers and export pages of 10 000 rows.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBatchQueries: 100000,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "catalogmatch",
			User:            "catalogmatch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				MatchResults: "match-results",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Matcher: MatcherConfig{
			TopN:         5,
			MaxVocabSize: 50000,
			ChunkSize:    100,
			MaxWorkers:   4,
			StopWords:    "russian",
		},
		Export: ExportConfig{
			PageSize: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate reports the first setting that the matcher cannot run with.
func (c *Config) Validate() error {
	m := c.Matcher
	switch {
	case m.TopN <= 0:
		return fmt.Errorf("matcher.topN must be positive, got %d", m.TopN)
	case m.MaxVocabSize <= 0:
		return fmt.Errorf("matcher.maxVocabSize must be positive, got %d", m.MaxVocabSize)
	case m.ChunkSize <= 0:
		return fmt.Errorf("matcher.chunkSize must be positive, got %d", m.ChunkSize)
	case m.MaxWorkers <= 0:
		return fmt.Errorf("matcher.maxWorkers must be positive, got %d", m.MaxWorkers)
	case c.Export.PageSize <= 0:
		return fmt.Errorf("export.pageSize must be positive, got %d", c.Export.PageSize)
	}
	switch m.StopWords {
	case "russian", "english", "all", "none":
	default:
		return fmt.Errorf("matcher.stopWords must be one of russian, english, all, none; got %q", m.StopWords)
	}
	return nil
}

// applyEnvOverrides reads CM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setInt("CM_SERVER_PORT", &cfg.Server.Port)
	setString("CM_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("CM_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("CM_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("CM_POSTGRES_USER", &cfg.Postgres.User)
	setString("CM_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("CM_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	if v := os.Getenv("CM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString("CM_KAFKA_TOPIC_MATCH_RESULTS", &cfg.Kafka.Topics.MatchResults)
	if v := os.Getenv("CM_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	setString("CM_REDIS_ADDR", &cfg.Redis.Addr)
	setString("CM_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("CM_MATCHER_TOP_N", &cfg.Matcher.TopN)
	setInt("CM_MATCHER_MAX_VOCAB_SIZE", &cfg.Matcher.MaxVocabSize)
	setInt("CM_MATCHER_CHUNK_SIZE", &cfg.Matcher.ChunkSize)
	setInt("CM_MATCHER_MAX_WORKERS", &cfg.Matcher.MaxWorkers)
	setString("CM_MATCHER_STOP_WORDS", &cfg.Matcher.StopWords)
	setInt("CM_EXPORT_PAGE_SIZE", &cfg.Export.PageSize)
	setString("CM_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("CM_LOGGING_FORMAT", &cfg.Logging.Format)
	setInt("CM_METRICS_PORT", &cfg.Metrics.Port)
}
