package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
)

// MaxValuePrecision is the number of decimals of one ether.
const MaxValuePrecision = 18

// Validate checks every setting and returns the first problem as a *ConfigError.
// Values are never coerced.
func (c *Config) Validate() error {
	if err := validateRPCURL(c.RPCURL); err != nil {
		return err
	}

	if c.MaxTransactions < 1 {
		return intError("MAX_TRANSACTIONS", c.MaxTransactions, "must be >= 1")
	}
	if c.ReconnectAttempts < 0 {
		return intError("RECONNECT_ATTEMPTS", c.ReconnectAttempts, "must be >= 0")
	}
	if c.ReconnectDelayMS < 1 {
		return intError("RECONNECT_DELAY_MS", c.ReconnectDelayMS, "must be >= 1")
	}
	if c.ReconnectMaxDelayMS < 0 {
		return intError("RECONNECT_MAX_DELAY_MS", c.ReconnectMaxDelayMS, "must be >= 0")
	}
	if c.ReconnectMaxDelayMS > 0 && c.ReconnectMaxDelayMS < c.ReconnectDelayMS {
		return intError("RECONNECT_MAX_DELAY_MS", c.ReconnectMaxDelayMS, "must be >= RECONNECT_DELAY_MS")
	}
	switch c.ReconnectStrategy {
	case "exponential", "fixed":
	default:
		return &ConfigError{Field: "RECONNECT_STRATEGY", Value: c.ReconnectStrategy, Reason: "must be exponential or fixed"}
	}

	switch c.Subscription {
	case "newPendingTransactions", "newHeads":
	default:
		return &ConfigError{Field: "SUBSCRIPTION", Value: c.Subscription, Reason: "must be newPendingTransactions or newHeads"}
	}
	if c.FetchRateLimit < 0 {
		return intError("FETCH_RATE_LIMIT", c.FetchRateLimit, "must be >= 0")
	}
	if c.RequestTimeoutMS < 1 {
		return intError("REQUEST_TIMEOUT_MS", c.RequestTimeoutMS, "must be >= 1")
	}

	if c.ValuePrecision < 0 || c.ValuePrecision > MaxValuePrecision {
		return intError("VALUE_PRECISION", c.ValuePrecision, "must be between 0 and 18")
	}
	if c.SignaturesFile != "" {
		if _, err := os.Stat(c.SignaturesFile); err != nil {
			return &ConfigError{Field: "SIGNATURES_FILE", Value: c.SignaturesFile, Reason: err.Error()}
		}
	}

	if c.ArchiveDSN != "" {
		if err := validateDSN(c.ArchiveDSN); err != nil {
			return err
		}
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return &ConfigError{Field: "LOG_LEVEL", Value: c.LogLevel, Reason: "unknown level"}
	}

	return nil
}

func validateRPCURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &ConfigError{Field: "RPC_URL", Value: raw, Reason: err.Error()}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return &ConfigError{Field: "RPC_URL", Value: raw, Reason: "scheme must be ws or wss"}
	}
	if u.Host == "" {
		return &ConfigError{Field: "RPC_URL", Value: raw, Reason: "missing host"}
	}
	return nil
}

func validateDSN(raw string) error {
	scheme, _, ok := strings.Cut(raw, "://")
	if !ok {
		return &ConfigError{Field: "ARCHIVE_DSN", Reason: "missing scheme"}
	}
	switch scheme {
	case "postgres", "postgresql", "clickhouse", "memory":
		return nil
	default:
		// The DSN may hold credentials, so only the scheme is reported.
		return &ConfigError{Field: "ARCHIVE_DSN", Value: scheme, Reason: "unsupported scheme"}
	}
}

func intError(field string, v int, reason string) *ConfigError {
	return &ConfigError{Field: field, Value: strconv.Itoa(v), Reason: reason}
}
