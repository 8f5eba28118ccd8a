// Package config loads and validates application configuration from YAML or
// TOML files with environment-variable overrides. It provides typed structs
// for every subsystem (Indexer, Search, PageCache, Memory, Catalog, etc.).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Indexer   IndexerConfig   `yaml:"indexer" toml:"indexer"`
	Search    SearchConfig    `yaml:"search" toml:"search"`
	PageCache PageCacheConfig `yaml:"pageCache" toml:"pageCache"`
	Memory    MemoryConfig    `yaml:"memory" toml:"memory"`
	Catalog   CatalogConfig   `yaml:"catalog" toml:"catalog"`
	Redis     RedisConfig     `yaml:"redis" toml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka" toml:"kafka"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Watch     WatchConfig     `yaml:"watch" toml:"watch"`
}

// ServerConfig holds HTTP server settings for serve mode.
type ServerConfig struct {
	Port            int           `yaml:"port" toml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout" toml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" toml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" toml:"shutdownTimeout"`
}

// LoggingConfig controls structured logging level, output format and the
// optional rotating log file.
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB" toml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups" toml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"maxAgeDays"`
}

// IndexerConfig controls where index files live and whether they are
// persisted at all.
type IndexerConfig struct {
	DataDir string `yaml:"dataDir" toml:"dataDir"`
	Persist bool   `yaml:"persist" toml:"persist"`
}

// SearchConfig controls query result limits and snippet size.
type SearchConfig struct {
	MaxResults    int `yaml:"maxResults" toml:"maxResults"`
	ContextRadius int `yaml:"contextRadius" toml:"contextRadius"`
}

// PageCacheConfig controls how many pages are kept around the visible range.
type PageCacheConfig struct {
	Buffer int `yaml:"buffer" toml:"buffer"`
}

// MemoryConfig controls the memory pressure sampler and its thresholds.
type MemoryConfig struct {
	SampleInterval  time.Duration `yaml:"sampleInterval" toml:"sampleInterval"`
	WarningMB       uint64        `yaml:"warningMB" toml:"warningMB"`
	CriticalMB      uint64        `yaml:"criticalMB" toml:"criticalMB"`
	HysteresisMB    uint64        `yaml:"hysteresisMB" toml:"hysteresisMB"`
	ReclaimInterval time.Duration `yaml:"reclaimInterval" toml:"reclaimInterval"`
}

// WarningBytes returns the warning threshold in bytes.
func (m MemoryConfig) WarningBytes() uint64 { return m.WarningMB << 20 }

// CriticalBytes returns the critical threshold in bytes.
func (m MemoryConfig) CriticalBytes() uint64 { return m.CriticalMB << 20 }

// HysteresisBytes returns the hysteresis band in bytes.
func (m MemoryConfig) HysteresisBytes() uint64 { return m.HysteresisMB << 20 }

// CatalogConfig selects the SQL backend that records persisted indices.
type CatalogConfig struct {
	Enabled         bool          `yaml:"enabled" toml:"enabled"`
	Driver          string        `yaml:"driver" toml:"driver"`
	DSN             string        `yaml:"dsn" toml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns" toml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns" toml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" toml:"connMaxLifetime"`
}

// RedisConfig holds Redis connection and result caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" toml:"enabled"`
	Addr     string        `yaml:"addr" toml:"addr"`
	Password string        `yaml:"password" toml:"password"`
	DB       int           `yaml:"db" toml:"db"`
	PoolSize int           `yaml:"poolSize" toml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL" toml:"cacheTTL"`
}

// KafkaConfig holds broker and topic settings for lifecycle events. Group
// is the consumer group used by `docreader events`; empty reads without
// committing offsets.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" toml:"enabled"`
	Brokers []string `yaml:"brokers" toml:"brokers"`
	Topic   string   `yaml:"topic" toml:"topic"`
	Group   string   `yaml:"group" toml:"group"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	Port    int  `yaml:"port" toml:"port"`
}

// WatchConfig controls source-file change detection.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled" toml:"enabled"`
	Debounce time.Duration `yaml:"debounce" toml:"debounce"`
}

// Load reads a YAML or TOML config file (if provided) and applies
// environment-variable overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the components cannot run with.
func (c *Config) Validate() error {
	if c.Memory.WarningMB == 0 || c.Memory.CriticalMB == 0 {
		return fmt.Errorf("memory.warningMB and memory.criticalMB must be > 0, got %d and %d",
			c.Memory.WarningMB, c.Memory.CriticalMB)
	}
	if c.Memory.CriticalMB < c.Memory.WarningMB {
		return fmt.Errorf("memory.criticalMB (%d) must not be below memory.warningMB (%d)",
			c.Memory.CriticalMB, c.Memory.WarningMB)
	}
	if c.PageCache.Buffer < 0 {
		return fmt.Errorf("pageCache.buffer must be >= 0, got %d", c.PageCache.Buffer)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.maxResults must be >= 0, got %d", c.Search.MaxResults)
	}
	switch c.Catalog.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("catalog.driver must be sqlite or postgres, got %q", c.Catalog.Driver)
	}
	return nil
}

// Default returns a Config with defaults suited to a single desktop user.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 10,
		},
		Indexer: IndexerConfig{
			DataDir: filepath.Join(dataDir, "indexes"),
			Persist: true,
		},
		Search: SearchConfig{
			MaxResults:    1000,
			ContextRadius: 40,
		},
		PageCache: PageCacheConfig{
			Buffer: 2,
		},
		Memory: MemoryConfig{
			SampleInterval:  2 * time.Second,
			WarningMB:       500,
			CriticalMB:      800,
			ReclaimInterval: 10 * time.Second,
		},
		Catalog: CatalogConfig{
			Enabled:         true,
			Driver:          "sqlite",
			DSN:             filepath.Join(dataDir, "catalog.db"),
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 4,
			CacheTTL: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "docreader-events",
		},
		Metrics: MetricsConfig{
			Port: 9095,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 250 * time.Millisecond,
		},
	}
}

// defaultDataDir resolves the application's private data directory.
func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "docreader")
	}
	return filepath.Join(os.TempDir(), "docreader")
}

// applyEnvOverrides reads DR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DR_LOGGING_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("DR_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("DR_INDEXER_PERSIST"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Indexer.Persist = b
		}
	}
	if v := os.Getenv("DR_SEARCH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxResults = n
		}
	}
	if v := os.Getenv("DR_PAGE_CACHE_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PageCache.Buffer = n
		}
	}
	if v := os.Getenv("DR_MEMORY_WARNING_MB"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Memory.WarningMB = n
		}
	}
	if v := os.Getenv("DR_MEMORY_CRITICAL_MB"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Memory.CriticalMB = n
		}
	}
	if v := os.Getenv("DR_CATALOG_DRIVER"); v != "" {
		cfg.Catalog.Driver = v
	}
	if v := os.Getenv("DR_CATALOG_DSN"); v != "" {
		cfg.Catalog.DSN = v
	}
	if v := os.Getenv("DR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("DR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("DR_KAFKA_GROUP"); v != "" {
		cfg.Kafka.Group = v
	}
	if v := os.Getenv("DR_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
			cfg.Metrics.Enabled = true
		}
	}
}
