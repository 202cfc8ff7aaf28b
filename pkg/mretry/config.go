// Package mretry holds backoff configuration. The SQL transaction runner uses
// MaxBackoff to cap its old-timestamp retry delay; the sender carries a
// Config in its RetryBackoff field but applies no delay between publish
// attempts.
package mretry

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxRetries bounds how many times a failed publish is retried
	// before an entry is routed to the dead-letter tier.
	DefaultMaxRetries = 10
	// DefaultInitialBackoff is the delay before the first retry.
	DefaultInitialBackoff = 1 * time.Second
	// DefaultMaxBackoff caps exponential growth so a stuck dependency
	// doesn't push retries out to absurd intervals.
	DefaultMaxBackoff = 30 * time.Minute
	// DefaultJitterFactor randomizes each delay by up to this fraction
	// to avoid synchronized retry storms across senders.
	DefaultJitterFactor = 0.25
	// DLQInitialBackoff is used by DefaultDLQConfig, which reconciles entries
	// that have already been routed to the dead-letter tier at a slower cadence.
	DLQInitialBackoff = 1 * time.Minute
)

// Config parameterizes exponential backoff with jitter.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFactor   float64
}

// DefaultMetadataOutboxConfig is the default sender.Config.RetryBackoff value.
func DefaultMetadataOutboxConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

// DefaultDLQConfig is the (slower) configuration used when reconciling entries
// that have already landed in the dead-letter tier.
func DefaultDLQConfig() Config {
	cfg := DefaultMetadataOutboxConfig()
	cfg.InitialBackoff = DLQInitialBackoff

	return cfg
}

// WithMaxRetries returns a copy of c with a different retry ceiling.
func (c Config) WithMaxRetries(n int) Config {
	c.MaxRetries = n
	return c
}

// WithInitialBackoff returns a copy of c with a different initial backoff.
func (c Config) WithInitialBackoff(d time.Duration) Config {
	c.InitialBackoff = d
	return c
}

// WithMaxBackoff returns a copy of c with a different cap.
func (c Config) WithMaxBackoff(d time.Duration) Config {
	c.MaxBackoff = d
	return c
}

// WithJitterFactor returns a copy of c with a different jitter fraction.
func (c Config) WithJitterFactor(f float64) Config {
	c.JitterFactor = f
	return c
}

// ConfigValidationError reports a single invalid field on Config.
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("mretry: invalid %s: %s", e.Field, e.Message)
}

// Validate rejects configurations that would misbehave: non-positive retry
// counts or backoffs, a cap below the floor, or an out-of-range jitter.
func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return ConfigValidationError{Field: "MaxRetries", Message: "must be >= 1"}
	}

	if c.InitialBackoff <= 0 {
		return ConfigValidationError{Field: "InitialBackoff", Message: "must be > 0"}
	}

	if c.MaxBackoff <= 0 {
		return ConfigValidationError{Field: "MaxBackoff", Message: "must be > 0"}
	}

	if c.MaxBackoff < c.InitialBackoff {
		return ConfigValidationError{Field: "MaxBackoff", Message: "must be >= InitialBackoff"}
	}

	if c.JitterFactor < 0.0 || c.JitterFactor > 1.0 {
		return ConfigValidationError{Field: "JitterFactor", Message: "must be in range [0.0, 1.0]"}
	}

	return nil
}

// Backoff computes the delay before the given attempt (0-indexed), including jitter.
// Attempt 0 returns InitialBackoff (with jitter); each subsequent attempt doubles,
// capped at MaxBackoff.
func (c Config) Backoff(attempt int) time.Duration {
	base := float64(c.InitialBackoff)
	for i := 0; i < attempt; i++ {
		base *= 2
		if base > float64(c.MaxBackoff) {
			base = float64(c.MaxBackoff)
			break
		}
	}

	jitter := base * c.JitterFactor * rand.Float64()

	d := time.Duration(base + jitter)
	if d > c.MaxBackoff {
		d = c.MaxBackoff
	}

	return d
}

// NewExponentialBackOff adapts Config to cenkalti/backoff for callers that want
// its retry-loop helpers (backoff.Retry, backoff.RetryNotify) instead of manual
// sleeps, e.g. around a single flaky store round-trip.
func (c Config) NewExponentialBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialBackoff
	b.MaxInterval = c.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = c.JitterFactor
	b.MaxElapsedTime = 0 // caller controls the retry count, not elapsed wall time

	return b
}

// CapDelay bounds a caller-suggested delay (e.g. from a TransactionOldTimestamp
// error) by a ceiling, returning the smaller of the two.
func CapDelay(suggested, ceiling time.Duration) time.Duration {
	if suggested > ceiling {
		return ceiling
	}

	return suggested
}
