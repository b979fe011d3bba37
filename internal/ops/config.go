package ops

import (
	"strings"
	"time"

	"execgw/internal/chaos"
	"execgw/internal/risk"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/yanun0323/errors"
	"go.uber.org/multierr"
)

const EnvPrefix = "EXECGW"

// Config is the full process configuration.
type Config struct {
	Venue     VenueConfig     `mapstructure:"venue"`
	Duplex    DuplexConfig    `mapstructure:"duplex"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Risk      risk.Config     `mapstructure:"risk"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Confirm   ConfirmConfig   `mapstructure:"confirm"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Order     OrderConfig     `mapstructure:"order"`
	Chaos     chaos.Config    `mapstructure:"chaos"`
}

type VenueConfig struct {
	WSURL      string `mapstructure:"ws_url"`
	RESTURL    string `mapstructure:"rest_url"`
	Mainnet    bool   `mapstructure:"mainnet"`
	Account    string `mapstructure:"account"`
	PrivateKey string `mapstructure:"private_key"`
	Vault      string `mapstructure:"vault"`
}

type DuplexConfig struct {
	WriteQueue   int           `mapstructure:"write_queue"`
	PushQueue    int           `mapstructure:"push_queue"`
	ReadBuffer   int           `mapstructure:"read_buffer"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	PostTimeout  time.Duration `mapstructure:"post_timeout"`
}

type ReconnectConfig struct {
	Min    time.Duration `mapstructure:"min"`
	Max    time.Duration `mapstructure:"max"`
	Factor float64       `mapstructure:"factor"`
	Jitter float64       `mapstructure:"jitter"`
}

type BatchConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff"`
	QueueSize        int           `mapstructure:"queue_size"`
	PoolSize         int           `mapstructure:"pool_size"`
	MaxBatch         int           `mapstructure:"max_batch"`
	SignTimeout      time.Duration `mapstructure:"sign_timeout"`
}

type TrackerConfig struct {
	AutoCleanup   bool          `mapstructure:"auto_cleanup"`
	NotFoundLimit int           `mapstructure:"not_found_limit"`
	ExpireAfter   time.Duration `mapstructure:"expire_after"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type ConfirmConfig struct {
	Workers  int           `mapstructure:"workers"`
	Attempts int           `mapstructure:"attempts"`
	Interval time.Duration `mapstructure:"interval"`
}

type ResolverConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type JournalConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	QueueSize    int    `mapstructure:"queue_size"`
}

type KafkaConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Brokers   []string `mapstructure:"brokers"`
	Topic     string   `mapstructure:"topic"`
	QueueSize int      `mapstructure:"queue_size"`
}

type ProfilingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Server  string `mapstructure:"server"`
	AppName string `mapstructure:"app_name"`
}

type MetricsConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// OrderConfig describes optional orders submitted at startup to check the
// path end to end. Count zero disables it.
type OrderConfig struct {
	Count       int           `mapstructure:"count"`
	Interval    time.Duration `mapstructure:"interval"`
	Symbol      string        `mapstructure:"symbol"`
	Side        string        `mapstructure:"side"`
	TimeInForce string        `mapstructure:"time_in_force"`
	Price       float64       `mapstructure:"price"`
	Quantity    float64       `mapstructure:"quantity"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CancelAfter time.Duration `mapstructure:"cancel_after"`
}

var defaults = map[string]any{
	"venue.ws_url":   "wss://api.hyperliquid.xyz/ws",
	"venue.rest_url": "https://api.hyperliquid.xyz",
	"venue.mainnet":  true,
	"venue.account":  "",
	// private_key has no default and must come from the file or environment
	"venue.private_key": "",
	"venue.vault":       "",

	"duplex.write_queue":   1024,
	"duplex.push_queue":    4096,
	"duplex.read_buffer":   1 << 20,
	"duplex.ping_interval": 30 * time.Second,
	"duplex.stale_after":   90 * time.Second,
	"duplex.post_timeout":  5 * time.Second,

	"reconnect.min":    500 * time.Millisecond,
	"reconnect.max":    30 * time.Second,
	"reconnect.factor": 2.0,
	"reconnect.jitter": 0.2,

	"batch.interval":           100 * time.Millisecond,
	"batch.rate_limit_backoff": 2 * time.Second,
	"batch.queue_size":         1024,
	"batch.pool_size":          4096,
	"batch.max_batch":          0,
	"batch.sign_timeout":       2 * time.Second,

	"risk.kill_switch":        false,
	"risk.max_order_qty":      0.0,
	"risk.max_order_notional": 0.0,
	"risk.max_open_orders":    0,
	"risk.order_rate_limit":   0,
	"risk.order_rate_window":  time.Second,

	"tracker.auto_cleanup":    false,
	"tracker.not_found_limit": 3,
	"tracker.expire_after":    2 * time.Minute,
	"tracker.sweep_interval":  5 * time.Second,

	"confirm.workers":  4,
	"confirm.attempts": 5,
	"confirm.interval": time.Second,

	"resolver.ttl": 300 * time.Second,

	"journal.enabled":        false,
	"journal.host":           "localhost",
	"journal.port":           5432,
	"journal.user":           "",
	"journal.password":       "",
	"journal.database":       "execgw",
	"journal.sslmode":        "disable",
	"journal.max_open_conns": 8,
	"journal.queue_size":     4096,

	"kafka.enabled":    false,
	"kafka.brokers":    []string{},
	"kafka.topic":      "execgw.orders",
	"kafka.queue_size": 4096,

	"profiling.enabled":  false,
	"profiling.server":   "http://localhost:4040",
	"profiling.app_name": "execgw",

	"chaos.enabled":        false,
	"chaos.reorder_window": 1,

	"metrics.addr":      ":9090",
	"metrics.namespace": "execgw",

	"order.count":         0,
	"order.interval":      time.Second,
	"order.symbol":        "",
	"order.side":          "buy",
	"order.time_in_force": "gtc",
	"order.price":         0.0,
	"order.quantity":      0.0,
	"order.timeout":       5 * time.Second,
	"order.cancel_after":  time.Duration(0),
}

// Load reads path (YAML, JSON or TOML by extension) over the defaults and
// applies EXECGW_* environment overrides. An empty path uses defaults and
// environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "read config").With("path", path)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, errors.Errorf(format, args...))
		}
	}

	check(c.Venue.WSURL != "", "venue.ws_url is empty")
	check(c.Venue.RESTURL != "", "venue.rest_url is empty")
	check(c.Venue.PrivateKey != "", "venue.private_key is empty")

	check(c.Duplex.WriteQueue > 0, "duplex.write_queue must be > 0")
	check(c.Duplex.PushQueue > 0, "duplex.push_queue must be > 0")
	check(c.Duplex.ReadBuffer > 0, "duplex.read_buffer must be > 0")
	check(c.Duplex.PostTimeout > 0, "duplex.post_timeout must be > 0")
	check(c.Duplex.StaleAfter == 0 || c.Duplex.StaleAfter > c.Duplex.PingInterval,
		"duplex.stale_after (%s) must exceed duplex.ping_interval (%s)", c.Duplex.StaleAfter, c.Duplex.PingInterval)

	check(c.Reconnect.Min > 0 && c.Reconnect.Max >= c.Reconnect.Min, "reconnect.min must be > 0 and <= reconnect.max")
	check(c.Reconnect.Factor >= 1, "reconnect.factor must be >= 1")
	check(c.Reconnect.Jitter >= 0 && c.Reconnect.Jitter < 1, "reconnect.jitter must be in [0, 1)")

	check(c.Batch.Interval > 0, "batch.interval must be > 0")
	check(c.Batch.QueueSize > 0, "batch.queue_size must be > 0")
	check(c.Batch.PoolSize > 0, "batch.pool_size must be > 0")
	check(c.Batch.MaxBatch >= 0, "batch.max_batch must be >= 0")

	check(c.Risk.MaxOrderQty >= 0 && c.Risk.MaxOrderNotional >= 0 && c.Risk.MaxOpenOrders >= 0, "risk limits must be >= 0")
	check(c.Risk.OrderRateLimit == 0 || c.Risk.OrderRateWindow > 0, "risk.order_rate_window must be > 0 when order_rate_limit is set")

	check(c.Tracker.NotFoundLimit > 0, "tracker.not_found_limit must be > 0")
	check(c.Confirm.Attempts > 0, "confirm.attempts must be > 0")

	if c.Journal.Enabled {
		check(c.Journal.Database != "", "journal.database is empty")
	}
	if c.Kafka.Enabled {
		check(len(c.Kafka.Brokers) > 0, "kafka.brokers is empty")
		check(c.Kafka.Topic != "", "kafka.topic is empty")
	}
	if c.Chaos.Enabled {
		if cerr := c.Chaos.Validate(); cerr != nil {
			err = multierr.Append(err, cerr)
		}
		check(!c.Venue.Mainnet, "chaos must not be enabled on mainnet")
	}
	if c.Order.Count > 0 {
		check(c.Order.Symbol != "", "order.symbol is empty")
		check(c.Order.Quantity > 0, "order.quantity must be > 0")
		check(c.Order.Price > 0, "order.price must be > 0")
	}
	return err
}
