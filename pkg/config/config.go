package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		Output     string `yaml:"output"`
		TimeFormat string `yaml:"time_format"`
		Collector  struct {
			Enabled        bool          `yaml:"enabled"`
			Topic          string        `yaml:"topic"`
			Interval       time.Duration `yaml:"interval"`
			CountThreshold int           `yaml:"count_threshold"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		TickerMaxRPS    int           `yaml:"ticker_max_rps"`
		RateLimit       struct {
			Capacity     int     `yaml:"capacity"`
			RefillPerSec float64 `yaml:"refill_per_sec"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Binance struct {
		BaseURL        string        `yaml:"base_url"`
		StreamURL      string        `yaml:"stream_url"`
		Timeout        time.Duration `yaml:"timeout"`
		PageLimit      int           `yaml:"page_limit"`
		RequestsPerSec float64       `yaml:"requests_per_sec"`
		Retries        uint64        `yaml:"retries"`
		RetryDelay     time.Duration `yaml:"retry_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"binance"`
	Dataset struct {
		Dir string `yaml:"dir"`
	} `yaml:"dataset"`
	Models struct {
		Dir         string        `yaml:"dir"`
		MaxAge      time.Duration `yaml:"max_age"`
		MaxDrift    float64       `yaml:"max_drift"`
		NoiseSeed   int64         `yaml:"noise_seed"`
		LockTimeout time.Duration `yaml:"lock_timeout"`
		CacheTTL    time.Duration `yaml:"cache_ttl"`
	} `yaml:"models"`
	Forecast struct {
		PublishTopic string `yaml:"publish_topic"`
		HistoryTopic string `yaml:"history_topic"`
	} `yaml:"forecast"`
	Redis struct {
		Enabled   bool          `yaml:"enabled"`
		Addr      string        `yaml:"addr"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		Prefix    string        `yaml:"prefix"`
		CandleTTL time.Duration `yaml:"candle_ttl"`
		Pool      struct {
			Size         int           `yaml:"size"`
			MinIdleConns int           `yaml:"min_idle_conns"`
			Timeout      time.Duration `yaml:"timeout"`
		} `yaml:"pool"`
	} `yaml:"redis"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	TrainingQueue struct {
		Enabled    bool          `yaml:"enabled"`
		Name       string        `yaml:"name"`
		Workers    int           `yaml:"workers"`
		MaxRetries int           `yaml:"max_retries"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"training_queue"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads a .env file when present, then the YAML config, then
// applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		c.Binance.BaseURL = v
	}
	if v := os.Getenv("DATASET_DIR"); v != "" {
		c.Dataset.Dir = v
	}
	if v := os.Getenv("MODEL_DIR"); v != "" {
		c.Models.Dir = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Binance.BaseURL == "" {
		c.Binance.BaseURL = "https://api.binance.com"
	}
	if c.Binance.StreamURL == "" {
		c.Binance.StreamURL = "wss://stream.binance.com:9443/ws"
	}
	if c.Binance.Timeout == 0 {
		c.Binance.Timeout = 10 * time.Second
	}
	if c.Binance.PageLimit == 0 {
		c.Binance.PageLimit = 1000
	}
	if c.Models.MaxAge == 0 {
		c.Models.MaxAge = 7 * 24 * time.Hour
	}
	if c.Models.MaxDrift == 0 {
		c.Models.MaxDrift = 0.1
	}
	if c.Models.LockTimeout == 0 {
		c.Models.LockTimeout = 10 * time.Minute
	}
	if c.Redis.CandleTTL == 0 {
		c.Redis.CandleTTL = time.Minute
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "cryptopulse"
	}
	if c.Redis.Pool.Size == 0 {
		c.Redis.Pool.Size = 10
	}
	if c.Redis.Pool.MinIdleConns == 0 {
		c.Redis.Pool.MinIdleConns = 5
	}
	if c.Redis.Pool.Timeout == 0 {
		c.Redis.Pool.Timeout = 30 * time.Second
	}
	if c.TrainingQueue.Name == "" {
		c.TrainingQueue.Name = "training"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Models.Dir == "" {
		return fmt.Errorf("models.dir is required")
	}
	if c.Binance.PageLimit < 1 || c.Binance.PageLimit > 1000 {
		return fmt.Errorf("binance.page_limit must be in [1, 1000], got %d", c.Binance.PageLimit)
	}
	if c.Models.MaxDrift <= 0 || c.Models.MaxDrift >= 1 {
		return fmt.Errorf("models.max_drift must be in (0, 1), got %v", c.Models.MaxDrift)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.TrainingQueue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("training_queue requires redis")
	}
	return nil
}
