package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config holds every runtime setting. Values come from the environment
// (optionally seeded from a .env file) and may be overridden by flags.
type Config struct {
	RPCURL string `env:"RPC_URL" envDefault:"wss://base-rpc.publicnode.com"`

	MaxTransactions int `env:"MAX_TRANSACTIONS" envDefault:"1000"`

	ReconnectAttempts   int    `env:"RECONNECT_ATTEMPTS" envDefault:"10"`
	ReconnectDelayMS    int    `env:"RECONNECT_DELAY_MS" envDefault:"5000"`
	ReconnectMaxDelayMS int    `env:"RECONNECT_MAX_DELAY_MS"`
	ReconnectStrategy   string `env:"RECONNECT_STRATEGY" envDefault:"exponential"`

	Subscription        string `env:"SUBSCRIPTION" envDefault:"newPendingTransactions"`
	FullTxNotifications bool   `env:"FULL_TX_NOTIFICATIONS" envDefault:"false"`
	FetchRateLimit      int    `env:"FETCH_RATE_LIMIT" envDefault:"50"`
	RequestTimeoutMS    int    `env:"REQUEST_TIMEOUT_MS" envDefault:"10000"`

	ValuePrecision int    `env:"VALUE_PRECISION" envDefault:"6"`
	NewestFirst    bool   `env:"NEWEST_FIRST" envDefault:"false"`
	SignaturesFile string `env:"SIGNATURES_FILE"`

	ArchiveDSN  string `env:"ARCHIVE_DSN"`
	MetricsAddr string `env:"METRICS_ADDR"`

	LogFile  string `env:"LOG_FILE" envDefault:"evm-tx-monitor.log"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Simulate replaces the network with a synthetic stream. Flag only.
	Simulate bool
}

// Load reads files into the process environment (default ".env") and parses it.
// A missing default .env is not an error; an explicitly named file must exist.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, &ConfigError{Field: "env file", Reason: err.Error()}
		}
	}
	return Parse()
}

// Parse builds a Config from the current environment without validating it.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, &ConfigError{Field: "environment", Reason: err.Error()}
	}
	return cfg, nil
}

// BindFlags registers a flag per setting. Current values act as defaults,
// so flags only override what the user passes explicitly.
func (c *Config) BindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.RPCURL, "rpc-url", c.RPCURL, "WebSocket JSON-RPC endpoint (ws:// or wss://)")
	flags.IntVar(&c.MaxTransactions, "max-transactions", c.MaxTransactions, "transactions kept in memory")
	flags.IntVar(&c.ReconnectAttempts, "reconnect-attempts", c.ReconnectAttempts, "consecutive failures before giving up (0 = unlimited)")
	flags.IntVar(&c.ReconnectDelayMS, "reconnect-delay-ms", c.ReconnectDelayMS, "base reconnect delay in milliseconds")
	flags.IntVar(&c.ReconnectMaxDelayMS, "reconnect-max-delay-ms", c.ReconnectMaxDelayMS, "reconnect delay cap in milliseconds (0 = max(60000, delay))")
	flags.StringVar(&c.ReconnectStrategy, "reconnect-strategy", c.ReconnectStrategy, "exponential or fixed")
	flags.StringVar(&c.Subscription, "subscription", c.Subscription, "newPendingTransactions or newHeads")
	flags.BoolVar(&c.FullTxNotifications, "full-tx", c.FullTxNotifications, "ask the node for full transaction objects")
	flags.IntVar(&c.FetchRateLimit, "fetch-rate", c.FetchRateLimit, "transaction lookups per second (0 = unlimited)")
	flags.IntVar(&c.RequestTimeoutMS, "request-timeout-ms", c.RequestTimeoutMS, "JSON-RPC request timeout in milliseconds")
	flags.IntVar(&c.ValuePrecision, "value-precision", c.ValuePrecision, "decimal places shown for ether values (0-18)")
	flags.BoolVar(&c.NewestFirst, "newest-first", c.NewestFirst, "start with the newest transaction on top")
	flags.StringVar(&c.SignaturesFile, "signatures", c.SignaturesFile, "YAML file with extra function signatures")
	flags.StringVar(&c.ArchiveDSN, "archive-dsn", c.ArchiveDSN, "postgres:// or clickhouse:// DSN to archive decoded transactions")
	flags.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Prometheus metrics listen address (empty to disable)")
	flags.StringVar(&c.LogFile, "log-file", c.LogFile, "log file path (empty to disable logging)")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	flags.BoolVar(&c.Simulate, "simulate", c.Simulate, "use a synthetic transaction stream instead of the network")
}

// ReconnectDelay returns the base reconnect delay.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

// DefaultReconnectMaxDelay caps the reconnect delay when RECONNECT_MAX_DELAY_MS is unset.
const DefaultReconnectMaxDelay = time.Minute

// ReconnectMaxDelay returns the reconnect delay cap. Unset (0), it is
// DefaultReconnectMaxDelay or the base delay, whichever is larger.
func (c *Config) ReconnectMaxDelay() time.Duration {
	if c.ReconnectMaxDelayMS > 0 {
		return time.Duration(c.ReconnectMaxDelayMS) * time.Millisecond
	}
	return max(DefaultReconnectMaxDelay, c.ReconnectDelay())
}

// RequestTimeout returns the JSON-RPC request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// ConfigError reports an invalid setting. It is fatal at startup.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("config: %s=%q: %s", e.Field, e.Value, e.Reason)
}
