package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		CORS            bool          `yaml:"cors"`
	} `yaml:"server"`
	Log struct {
		Level     string `yaml:"level" default:"info"`
		Format    string `yaml:"format" default:"json"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled        bool          `yaml:"enabled"`
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name" default:"signalhook"`
		SampleRatio float64 `yaml:"sample_ratio" default:"1"`
	} `yaml:"tracing"`
	Storage struct {
		Driver       string        `yaml:"driver" default:"sqlite"`
		DSN          string        `yaml:"dsn" default:"file:signalhook.db"`
		MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLife  time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	} `yaml:"storage"`
	Cache struct {
		Backend string        `yaml:"backend" default:"memory"`
		BotTTL  time.Duration `yaml:"bot_ttl" default:"30s"`
		// MemorySize bounds the in-process tier of the memory and layered backends.
		MemorySize      int           `yaml:"memory_size" default:"10000"`
		CleanupInterval time.Duration `yaml:"cleanup_interval" default:"5m"`
		Redis           struct {
			Addr         string        `yaml:"addr" default:"localhost:6379"`
			Password     string        `yaml:"password"`
			DB           int           `yaml:"db"`
			PoolSize     int           `yaml:"pool_size" default:"10"`
			MinIdleConns int           `yaml:"min_idle_conns" default:"5"`
			PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Topics       struct {
			Dispatch string `yaml:"dispatch" default:"signalhook.dispatch"`
			Intents  string `yaml:"intents" default:"signalhook.trade-intents"`
			Logs     string `yaml:"logs" default:"signalhook.logs"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"5ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID string `yaml:"group_id" default:"signalhook-processor"`
			// StartOffset applies to a group with no committed offset: earliest or latest.
			StartOffset string        `yaml:"start_offset" default:"earliest"`
			Workers     int           `yaml:"workers" default:"4"`
			BufferSize  int           `yaml:"buffer_size" default:"256"`
			RetryMax    int           `yaml:"retry_max" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic    string        `yaml:"dlq_topic" default:"signalhook.dispatch.dlq"`
			MinBytes    int           `yaml:"min_bytes" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"market"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		Table            string        `yaml:"table" default:"candles"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Dispatch struct {
		Backend     string        `yaml:"backend" default:"memory"`
		QueueSize   int           `yaml:"queue_size" default:"64"`
		DropPolicy  string        `yaml:"drop_policy" default:"drop_newest"`
		IdleTimeout time.Duration `yaml:"idle_timeout" default:"2m"`
	} `yaml:"dispatch"`
	Processing struct {
		RetryMax          int           `yaml:"retry_max" default:"3"`
		BackoffMin        time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax        time.Duration `yaml:"backoff_max" default:"5s"`
		LookupTimeout     time.Duration `yaml:"lookup_timeout" default:"2s"`
		MarketDataTimeout time.Duration `yaml:"market_data_timeout" default:"5s"`
		ExecutionTimeout  time.Duration `yaml:"execution_timeout" default:"10s"`
		SnapshotBars      int           `yaml:"snapshot_bars" default:"200"`
		ClaimTTL          time.Duration `yaml:"claim_ttl" default:"2m"`
		RecoveryBatch     int           `yaml:"recovery_batch" default:"500"`
	} `yaml:"processing"`
	Execution struct {
		Backend    string        `yaml:"backend" default:"log"`
		URL        string        `yaml:"url"`
		APIKey     string        `yaml:"api_key"`
		Timeout    time.Duration `yaml:"timeout" default:"10s"`
		TestOrders bool          `yaml:"test_orders"`
	} `yaml:"execution"`
	Webhook struct {
		MaxBodyBytes int64 `yaml:"max_body_bytes" default:"65536"`
		RateLimit    struct {
			Enabled  bool          `yaml:"enabled" default:"true"`
			Capacity int           `yaml:"capacity" default:"20"`
			Refill   time.Duration `yaml:"refill" default:"1s"`
		} `yaml:"rate_limit"`
	} `yaml:"webhook"`
	Auth struct {
		OwnerHeader string `yaml:"owner_header" default:"X-User-ID"`
	} `yaml:"auth"`
	Consensus struct {
		PolicyTimeout  time.Duration     `yaml:"policy_timeout" default:"3s"`
		PolicyAttempts int               `yaml:"policy_attempts" default:"2"`
		CustomPolicies map[string]string `yaml:"custom_policies"`
	} `yaml:"consensus"`
	Seed struct {
		BotsFile string `yaml:"bots_file"`
	} `yaml:"seed"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults, decodes YAML over them and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("EXECUTION_API_KEY"); v != "" {
		c.Execution.APIKey = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	switch c.Storage.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be 'mysql' or 'sqlite', got '%s'", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}
	switch c.Cache.Backend {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("cache.backend must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Backend)
	}
	switch c.Dispatch.Backend {
	case "memory":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when dispatch.backend is 'kafka'")
		}
	default:
		return fmt.Errorf("dispatch.backend must be 'memory' or 'kafka', got '%s'", c.Dispatch.Backend)
	}
	if c.Dispatch.QueueSize <= 0 {
		return fmt.Errorf("dispatch.queue_size must be positive")
	}
	if c.Dispatch.DropPolicy != "drop_newest" && c.Dispatch.DropPolicy != "drop_oldest" {
		return fmt.Errorf("dispatch.drop_policy must be 'drop_newest' or 'drop_oldest', got '%s'", c.Dispatch.DropPolicy)
	}
	switch c.Execution.Backend {
	case "log":
	case "http":
		if c.Execution.URL == "" {
			return fmt.Errorf("execution.url is required when execution.backend is 'http'")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when execution.backend is 'kafka'")
		}
	default:
		return fmt.Errorf("execution.backend must be 'log', 'http' or 'kafka', got '%s'", c.Execution.Backend)
	}
	if c.Processing.RetryMax < 0 {
		return fmt.Errorf("processing.retry_max cannot be negative")
	}
	if c.Processing.SnapshotBars <= 0 {
		return fmt.Errorf("processing.snapshot_bars must be positive")
	}
	if c.Log.Collector.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when log.collector is enabled")
	}
	if c.Auth.OwnerHeader == "" {
		return fmt.Errorf("auth.owner_header is required")
	}
	return nil
}

// KafkaEnabled reports whether any component needs the shared producer.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0 &&
		(c.Dispatch.Backend == "kafka" || c.Execution.Backend == "kafka" || c.Log.Collector.Enabled)
}
