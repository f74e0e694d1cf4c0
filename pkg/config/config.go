package config

import (
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"FinTrade/internal/domain/errs"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"dev" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Trading    Trading    `yaml:"trading"`
	Policy     Policy     `yaml:"policy"`
	Risk       Risk       `yaml:"risk"`
	Model      Model      `yaml:"model"`
	Retraining Retraining `yaml:"retraining"`
	Signals    struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		File    string `yaml:"file" default:"ai_signals.json"`
		Watch   bool   `yaml:"watch" default:"true"`
	} `yaml:"signals"`
	History struct {
		Backend string `yaml:"backend" default:"file" validate:"oneof=file clickhouse"`
		File    string `yaml:"file" default:"logs/trade_history.jsonl"`
		Table   string `yaml:"table" default:"trade_history"`
	} `yaml:"history"`
	Bridge     Bridge     `yaml:"bridge"`
	Sources    Sources    `yaml:"sources"`
	Quotes     Quotes     `yaml:"quotes"`
	Kafka      Kafka      `yaml:"kafka"`
	ClickHouse ClickHouse `yaml:"clickhouse"`
	Redis      Redis      `yaml:"redis"`
	Queue      struct {
		Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
		RetryLimit int           `yaml:"retry_limit" default:"2" validate:"gte=0"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		Prefix     string        `yaml:"prefix" default:"fintrade:queue"`
	} `yaml:"queue"`
}

// Trading holds the recognised account and sizing keys.
type Trading struct {
	TradingPairs     []string      `yaml:"trading_pairs" validate:"min=1,dive,required"`
	AccountBalance   float64       `yaml:"account_balance" default:"10000" validate:"gt=0"`
	RiskPercentage   float64       `yaml:"risk_percentage" validate:"gte=0,lte=100"`
	MaxRiskPerTrade  float64       `yaml:"max_risk_per_trade" default:"2" validate:"gt=0,lte=100"`
	MinLotSize       float64       `yaml:"min_lot_size" default:"0.01" validate:"gt=0"`
	MaxLotSize       float64       `yaml:"max_lot_size" default:"5" validate:"gt=0"`
	MinMarginLevel   float64       `yaml:"min_margin_level" default:"100" validate:"gte=0"`
	BaseLotSize      float64       `yaml:"base_lot_size" default:"0.1" validate:"gt=0"`
	UseBaseLot       bool          `yaml:"use_base_lot"`
	TradingInterval  int           `yaml:"trading_interval" default:"300" validate:"gt=0"`
	CallTimeout      time.Duration `yaml:"call_timeout" default:"5s"`
	CycleTimeout     time.Duration `yaml:"cycle_timeout" default:"60s"`
	MaxConcurrency   int           `yaml:"max_concurrency" default:"4" validate:"gte=1"`
	SkipFlatSignals  bool          `yaml:"skip_flat_signals" default:"true"`
	DistributedLocks bool          `yaml:"distributed_locks"`
	LockTTL          time.Duration `yaml:"lock_ttl" default:"30s"`
}

// Interval returns the decision cycle period.
func (t Trading) Interval() time.Duration {
	return time.Duration(t.TradingInterval) * time.Second
}

type Policy struct {
	BuyThreshold  float64 `yaml:"buy_threshold" default:"0.6" validate:"gte=0,lte=1"`
	SellThreshold float64 `yaml:"sell_threshold" default:"0.4" validate:"gte=0,lte=1"`
	Smoothing     struct {
		Enabled bool    `yaml:"enabled"`
		Alpha   float64 `yaml:"alpha" default:"0.3" validate:"gt=0,lte=1"`
	} `yaml:"smoothing"`
}

type Risk struct {
	BaseFraction float64 `yaml:"base_fraction" default:"0.001" validate:"gt=0"`
	RewardRatio  float64 `yaml:"reward_ratio" default:"2" validate:"gt=0"`
	MarginPerLot float64 `yaml:"margin_per_lot" default:"1000" validate:"gt=0"`
}

type Model struct {
	Dir           string  `yaml:"dir" default:"ai_models"`
	PredictorFile string  `yaml:"predictor_file" default:"predictor.json"`
	ScalerFile    string  `yaml:"scaler_file" default:"scaler.json"`
	KeepVersions  int     `yaml:"keep_versions" default:"3" validate:"gte=1"`
	MinSamples    int     `yaml:"min_samples" default:"50" validate:"gte=1"`
	Epochs        int     `yaml:"epochs" default:"200" validate:"gte=1"`
	BatchSize     int     `yaml:"batch_size" default:"32" validate:"gte=1"`
	LearningRate  float64 `yaml:"learning_rate" default:"0.1" validate:"gt=0"`
	L2            float64 `yaml:"l2" default:"0.0001" validate:"gte=0"`
	Seed          int64   `yaml:"seed" default:"42"`
	ForestTrees   int     `yaml:"forest_trees" default:"50" validate:"gte=0"`
}

type Retraining struct {
	Enabled      bool          `yaml:"enabled" default:"true"`
	Interval     time.Duration `yaml:"interval" default:"5m"`
	Timeout      time.Duration `yaml:"timeout" default:"2m"`
	ReportWindow int           `yaml:"report_window" default:"20" validate:"gte=1"`
	Discount     float64       `yaml:"discount" default:"0.9" validate:"gt=0,lte=1"`
}

type Bridge struct {
	Type      string        `yaml:"type" default:"sim" validate:"oneof=sim http"`
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout" default:"5s"`
	RateLimit float64       `yaml:"rate_limit" default:"5" validate:"gt=0"`
	Burst     int           `yaml:"burst" default:"1" validate:"gte=1"`
	Sim       struct {
		Balance      float64            `yaml:"balance" default:"10000"`
		ContractSize float64            `yaml:"contract_size" default:"100000"`
		Prices       map[string]float64 `yaml:"prices"`
	} `yaml:"sim"`
}

type Sources struct {
	OrderFlow struct {
		URL        string            `yaml:"url" default:"https://api.binance.com/api/v3/depth"`
		DepthLimit int               `yaml:"depth_limit" default:"10" validate:"gte=1"`
		SymbolMap  map[string]string `yaml:"symbol_map"`
	} `yaml:"order_flow"`
	Analytics struct {
		URL      string        `yaml:"url"`
		Timeout  time.Duration `yaml:"timeout" default:"3s"`
		Attempts int           `yaml:"attempts" default:"2" validate:"gte=1"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"5m"`
		Horizon  string        `yaml:"horizon" default:"15m"`
	} `yaml:"analytics"`
	Candles struct {
		Store     string `yaml:"store" default:"memory" validate:"oneof=memory clickhouse"`
		Timeframe string `yaml:"timeframe" default:"1m" validate:"oneof=1s 1m 5m"`
		Lookback  int    `yaml:"lookback" default:"120" validate:"gte=15"`
		ATRPeriod int    `yaml:"atr_period" default:"14" validate:"gte=2"`
	} `yaml:"candles"`
}

type Quotes struct {
	Enabled        bool          `yaml:"enabled"`
	APIKey         string        `yaml:"api_key"`
	WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
	Symbols        []string      `yaml:"symbols"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	MaxCandles     int           `yaml:"max_candles" default:"500" validate:"gte=1"`
	MaxTickRate    int           `yaml:"max_tick_rate" default:"20" validate:"gte=0"`
}

type Kafka struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	EventsTopic   string   `yaml:"events_topic" default:"fintrade.trade-events"`
	OutcomesTopic string   `yaml:"outcomes_topic" default:"fintrade.trade-outcomes"`
	RequiredAcks  int      `yaml:"required_acks" default:"-1"`
	Compression   string   `yaml:"compression" default:"gzip"`
	Producer      struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"100ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"fintrade-engine"`
		Workers    int           `yaml:"workers" default:"1"`
		BufferSize int           `yaml:"buffer_size" default:"64"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
	} `yaml:"consumer"`
}

type ClickHouse struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"fintrade"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	CandlesTable     string        `yaml:"candles_table" default:"candles_1m"`
}

type Redis struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"fintrade"`
}

var validate = validator.New()

// Load reads, defaults and validates a YAML configuration file.
// Every failure is a config error and must stop the process.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "config.load", fmt.Errorf("read config: %w", err))
	}
	return Parse(b)
}

// Parse decodes raw YAML on top of the documented defaults.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "config.defaults", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "config.parse", fmt.Errorf("parse config: %w", err))
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "config.validate", fmt.Errorf("validate config: %w", err))
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("TRADING_PAIRS"); v != "" {
		if slices.Equal(c.Quotes.Symbols, c.Trading.TradingPairs) {
			c.Quotes.Symbols = nil
		}
		c.Trading.TradingPairs = splitList(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			host, port = v, ""
		}
		c.Redis.Host = host
		if port != "" {
			p, err := strconv.Atoi(port)
			if err != nil {
				return nil, errs.Wrap(errs.KindConfig, "config.env", fmt.Errorf("REDIS_ADDR port %q: %w", port, err))
			}
			c.Redis.Port = p
		}
	}
	if v := os.Getenv("BRIDGE_URL"); v != "" {
		c.Bridge.URL = v
	}
	if v := os.Getenv("MODEL_DIR"); v != "" {
		c.Model.Dir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Quotes.APIKey = v
	}

	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "config.validate", fmt.Errorf("validate config: %w", err))
	}
	return c, nil
}

func (c *Config) normalize() {
	if c.Trading.RiskPercentage <= 0 {
		c.Trading.RiskPercentage = c.Trading.MaxRiskPerTrade
	}
	if len(c.Quotes.Symbols) == 0 {
		c.Quotes.Symbols = c.Trading.TradingPairs
	}
}

// Validate checks struct tags and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Trading.MinLotSize > c.Trading.MaxLotSize {
		return fmt.Errorf("trading.min_lot_size (%v) exceeds trading.max_lot_size (%v)", c.Trading.MinLotSize, c.Trading.MaxLotSize)
	}
	if c.Policy.SellThreshold > c.Policy.BuyThreshold {
		return fmt.Errorf("policy.sell_threshold (%v) exceeds policy.buy_threshold (%v)", c.Policy.SellThreshold, c.Policy.BuyThreshold)
	}
	if c.Bridge.Type == "http" && c.Bridge.URL == "" {
		return fmt.Errorf("bridge.url is required for bridge.type 'http'")
	}
	if c.History.Backend == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("history.backend 'clickhouse' requires clickhouse.enabled")
	}
	if c.Sources.Candles.Store == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("sources.candles.store 'clickhouse' requires clickhouse.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Quotes.Enabled && c.Quotes.APIKey == "" {
		return fmt.Errorf("quotes.api_key is required when quotes are enabled")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
