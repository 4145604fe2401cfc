package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Deriv struct {
		Endpoint             string        `yaml:"endpoint"`
		AppIDs               []int         `yaml:"app_ids"`
		APIToken             string        `yaml:"api_token"`
		ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
		MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
		PingInterval         time.Duration `yaml:"ping_interval"`
		RequestTimeout       time.Duration `yaml:"request_timeout"`
	} `yaml:"deriv"`
	Analyzers struct {
		NeuralSeed int64 `yaml:"neural_seed"`
	} `yaml:"analyzers"`
	Stake struct {
		BaseStake            float64 `yaml:"base_stake"`
		MartingaleMultiplier float64 `yaml:"martingale_multiplier"`
		MaxMartingaleSteps   int     `yaml:"max_martingale_steps"`
		TakeProfitLimit      float64 `yaml:"take_profit_limit"`
		StopLossLimit        float64 `yaml:"stop_loss_limit"`
		AutoStakeAdjustment  bool    `yaml:"auto_stake_adjustment"`
	} `yaml:"stake"`
	AutoTrader struct {
		Enabled             bool          `yaml:"enabled"`
		MaxConcurrentTrades int           `yaml:"max_concurrent_trades"`
		RiskMode            string        `yaml:"risk_mode"`
		DelayBetweenTrades  time.Duration `yaml:"delay_between_trades"`
	} `yaml:"auto_trader"`
	Store struct {
		Type  string `yaml:"type"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"store"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		SignalTopic  string   `yaml:"signal_topic"`
		ResultTopic  string   `yaml:"result_topic"`
		LogTopic     string   `yaml:"log_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Async        bool     `yaml:"async"`
		Consumer     struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		SignalTable      string        `yaml:"signal_table"`
		TradeTable       string        `yaml:"trade_table"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
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

	if v := os.Getenv("DERIV_API_TOKEN"); v != "" {
		c.Deriv.APIToken = v
	}
	if v := os.Getenv("DERIV_APP_IDS"); v != "" {
		ids, err := parseAppIDs(v)
		if err != nil {
			return nil, err
		}
		c.Deriv.AppIDs = ids
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}

	return c, nil
}

func parseAppIDs(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parse DERIV_APP_IDS: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Deriv.Endpoint == "" {
		return fmt.Errorf("deriv.endpoint is required")
	}
	if len(c.Deriv.AppIDs) == 0 {
		return fmt.Errorf("deriv.app_ids cannot be empty")
	}
	if c.Stake.BaseStake <= 0 {
		return fmt.Errorf("stake.base_stake must be positive")
	}
	if c.Stake.MartingaleMultiplier < 1 {
		return fmt.Errorf("stake.martingale_multiplier must be >= 1")
	}
	switch c.AutoTrader.RiskMode {
	case "", "NORMAL", "LESS_RISKY", "OVER3_UNDER6":
	default:
		return fmt.Errorf("auto_trader.risk_mode must be NORMAL, LESS_RISKY or OVER3_UNDER6, got '%s'", c.AutoTrader.RiskMode)
	}
	switch c.Store.Type {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("store.type must be 'memory' or 'redis', got '%s'", c.Store.Type)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	return nil
}
