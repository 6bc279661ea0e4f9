package ingestion

import (
	"fmt"
	"time"
)

// Strategy selects how the retry delay grows.
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyFixed       Strategy = "fixed"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyExponential, StrategyFixed:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown reconnect strategy %q", s)
	}
}

// Backoff computes retry delays and enforces the attempt budget.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int // 0 or negative means unlimited
	Strategy    Strategy
}

// Delay returns the wait before retrying after the n-th consecutive failure
// (n >= 1): Base * 2^(n-1) capped at Max for exponential, Base for fixed.
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if b.Strategy == StrategyFixed {
		return b.capped(b.Base)
	}

	d := b.Base
	for i := 1; i < n; i++ {
		if b.Max > 0 && d >= b.Max {
			break
		}
		if d > time.Duration(1<<62) {
			break
		}
		d *= 2
	}
	return b.capped(d)
}

// Exhausted reports whether n consecutive failures use up the budget.
func (b Backoff) Exhausted(n int) bool {
	return b.MaxAttempts > 0 && n >= b.MaxAttempts
}

func (b Backoff) capped(d time.Duration) time.Duration {
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
