// Package faulttolerance provides bounded retries with exponential backoff for
// the archive download and the per-day persistence step.
package faulttolerance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrPermanent marks errors that must not be retried.
var ErrPermanent = errors.New("permanent error")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() []error {
	return []error{e.err, ErrPermanent}
}

// Permanent wraps err so that Retryer.Execute returns it without retrying.
// errors.Is(err, ErrPermanent) reports true for the result, and the original
// error chain stays reachable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryConfig holds configuration for retry mechanisms
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts, including the first
	BaseDelay   time.Duration // Base delay for exponential backoff
	MaxDelay    time.Duration // Maximum delay between retries
	Multiplier  float64       // Multiplier for exponential backoff
	JitterRange float64       // Jitter range (0.0 to 1.0)
	Name        string        // Name for logging
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig(name string) RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		JitterRange: 0.1,
		Name:        name,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// Retryer handles retry logic with exponential backoff and jitter
type Retryer struct {
	config RetryConfig
	logger logrus.FieldLogger
	rng    *rand.Rand
	after  func(time.Duration) <-chan time.Time
}

// NewRetryer creates a new retryer
func NewRetryer(config RetryConfig, logger logrus.FieldLogger) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 1 * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 1.0 {
		config.Multiplier = 2.0
	}
	if config.JitterRange < 0 || config.JitterRange > 1.0 {
		config.JitterRange = 0.1
	}
	if config.Name == "" {
		config.Name = "Retryer"
	}
	if logger == nil {
		logger = NewLogger("info")
	}

	return &Retryer{
		config: config,
		logger: logger.WithField("retryer", config.Name),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		after:  time.After,
	}
}

// Config returns the effective configuration.
func (r *Retryer) Config() RetryConfig { return r.config }

// Execute executes the function with retry logic
func (r *Retryer) Execute(ctx context.Context, fn RetryableFunc) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Infof("Operation succeeded on attempt %d", attempt)
			}
			return nil
		}

		lastErr = err

		if errors.Is(err, ErrPermanent) {
			r.logger.Errorf("Non-retryable error: %v", err)
			return err
		}

		if attempt == r.config.MaxAttempts {
			r.logger.Errorf("All %d attempts failed, last error: %v", attempt, err)
			break
		}

		delay := r.calculateDelay(attempt)
		r.logger.Warnf("Attempt %d failed: %v. Retrying in %v...", attempt, err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.after(delay):
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
}

// calculateDelay calculates the delay for the next retry with exponential backoff and jitter
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	// Exponential backoff: baseDelay * multiplier^(attempt-1)
	delay := float64(r.config.BaseDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	if r.config.JitterRange > 0 {
		jitter := r.rng.Float64() * r.config.JitterRange * delay
		if r.rng.Float64() < 0.5 {
			delay -= jitter
		} else {
			delay += jitter
		}
	}

	if delay < float64(r.config.BaseDelay) {
		delay = float64(r.config.BaseDelay)
	}

	return time.Duration(delay)
}

// NewLogger builds the logrus logger used by retryers.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger
}
