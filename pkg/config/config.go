// Package config loads schema-mapper configuration from YAML files with
// environment-variable overrides. It provides typed structs for the service,
// the import pipeline, the resource readers and every backing client.
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
	Import   ImportConfig   `yaml:"import"`
	Sources  SourcesConfig  `yaml:"sources"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// WriteRateLimit is the number of imports and evictions a client may
	// send per minute; 0 disables limiting.
	WriteRateLimit int      `yaml:"writeRateLimit"`
	CORSOrigins    []string `yaml:"corsOrigins"`
}

// PostgresConfig holds connection parameters for the schema registry.
// An empty Host disables the Postgres reader.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	Table           string        `yaml:"table"`
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

// KafkaConfig holds broker and topic settings. No brokers disables Kafka.
type KafkaConfig struct {
	Brokers       []string     `yaml:"brokers"`
	ConsumerGroup string       `yaml:"consumerGroup"`
	Topics        KafkaTopics  `yaml:"topics"`
	Events        EventsConfig `yaml:"events"`
}

// EventsConfig controls batching of import completion events.
type EventsConfig struct {
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
	IncludeModel  bool          `yaml:"includeModel"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ImportRequests  string `yaml:"importRequests"`
	ImportCompleted string `yaml:"importCompleted"`
}

// RedisConfig holds the read-through document cache parameters.
// An empty Addr disables the cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// ImportConfig controls the import pipeline.
type ImportConfig struct {
	// Strict runs the draft-04 meta-schema preflight before indexing.
	Strict bool `yaml:"strict"`
	// CacheTTL expires completed imports from the in-memory cache.
	// Zero keeps them for the lifetime of the process.
	CacheTTL       time.Duration `yaml:"cacheTTL"`
	ResolveTimeout time.Duration `yaml:"resolveTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
}

// SourcesConfig configures the resource readers used to fetch documents.
type SourcesConfig struct {
	BaseDir      string        `yaml:"baseDir"`
	HTTPTimeout  time.Duration `yaml:"httpTimeout"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes"`
	// HTTPRetries is the number of attempts per HTTP fetch; 1 disables
	// retrying.
	HTTPRetries int           `yaml:"httpRetries"`
	Breaker     BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
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
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
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
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "schemas",
			User:            "schemamapper",
			SSLMode:         "disable",
			Table:           "schema_documents",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "schemamapper-group",
			Topics: KafkaTopics{
				ImportRequests:  "schema.import.requests",
				ImportCompleted: "schema.import.completed",
			},
			Events: EventsConfig{
				BatchSize:     100,
				FlushInterval: 5 * time.Second,
			},
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Import: ImportConfig{
			ResolveTimeout: 30 * time.Second,
			ReadTimeout:    15 * time.Second,
		},
		Sources: SourcesConfig{
			BaseDir:      ".",
			HTTPTimeout:  10 * time.Second,
			MaxBodyBytes: 8 << 20,
			HTTPRetries:  1,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9091,
		},
	}
}

// applyEnvOverrides reads SM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SM_SERVER_WRITE_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.WriteRateLimit = n
		}
	}
	if v := os.Getenv("SM_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SM_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SM_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SM_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SM_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SM_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SM_IMPORT_STRICT"); v != "" {
		if strict, err := strconv.ParseBool(v); err == nil {
			cfg.Import.Strict = strict
		}
	}
	if v := os.Getenv("SM_IMPORT_CACHE_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.Import.CacheTTL = ttl
		}
	}
	if v := os.Getenv("SM_SOURCES_BASE_DIR"); v != "" {
		cfg.Sources.BaseDir = v
	}
	if v := os.Getenv("SM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SM_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
