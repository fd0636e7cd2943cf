// Package retry provides bounded retrying with fixed or growing delays.
// Guest readiness polling uses a fixed interval and a small attempt budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config holds retry behavior.
type Config struct {
	Attempts   int           // total attempts, including the first
	Delay      time.Duration // delay before each retry
	MaxDelay   time.Duration // cap on the delay
	Multiplier float64       // delay growth factor; 1.0 keeps a fixed interval
}

// Option adjusts a Config.
type Option func(*Config)

// Do runs op up to the configured number of attempts, sleeping between
// attempts. Context cancellation is honored during the sleep. Errors wrapped
// with Permanent are returned immediately without further attempts.
func Do(ctx context.Context, op func() error, opts ...Option) error {
	cfg := &Config{
		Attempts:   5,
		Delay:      time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	delay := cfg.Delay
	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return err
		}

		if attempt < cfg.Attempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("aborted after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			}
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", cfg.Attempts, lastErr)
}

// Attempts sets the total number of attempts.
func Attempts(n int) Option {
	return func(c *Config) { c.Attempts = n }
}

// Delay sets the initial delay between attempts.
func Delay(d time.Duration) Option {
	return func(c *Config) { c.Delay = d }
}

// FixedInterval keeps the delay constant across attempts.
func FixedInterval() Option {
	return func(c *Config) { c.Multiplier = 1.0 }
}

// PermanentError marks an error as not worth retrying.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries the no-retry marker.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
