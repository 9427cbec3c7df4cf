// Package relay forwards messages between the in-process broker and an
// external AMQP 0.9.1 broker, so a gateway can interoperate with a real
// RabbitMQ deployment.
package relay

import (
	"context"
	"math"
	"time"

	"github.com/ismaild/vumi/errors"
)

// Default values for the ReconnectionPolicy
const (
	defaultMaxRetries   = 10
	defaultBaseInterval = 1 * time.Second
	defaultMaxInterval  = 10 * time.Second
)

// ReconnectionPolicy defines the settings for exponential reconnection
// attempts against the remote broker.
type ReconnectionPolicy struct {
	maxRetries   int
	baseInterval time.Duration
	maxInterval  time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewReconnectionPolicy initializes a policy with customizable
// settings. Zero values fall back to defaults.
func NewReconnectionPolicy(maxRetries int, baseInterval, maxInterval time.Duration) *ReconnectionPolicy {
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	if baseInterval == 0 {
		baseInterval = defaultBaseInterval
	}
	if maxInterval == 0 {
		maxInterval = defaultMaxInterval
	}
	return &ReconnectionPolicy{
		maxRetries:   maxRetries,
		baseInterval: baseInterval,
		maxInterval:  maxInterval,
		sleep:        sleepContext,
	}
}

// NewDefaultReconnectionPolicy initializes a policy with default values.
func NewDefaultReconnectionPolicy() *ReconnectionPolicy {
	return NewReconnectionPolicy(defaultMaxRetries, defaultBaseInterval, defaultMaxInterval)
}

// Interval returns the backoff before the given zero-based attempt,
// capped at the policy's maximum.
func (r *ReconnectionPolicy) Interval(attempt int) time.Duration {
	backoff := float64(r.baseInterval) * math.Pow(2, float64(attempt))
	return time.Duration(math.Min(backoff, float64(r.maxInterval)))
}

// Execute retries connect with exponential backoff until it succeeds,
// the retry budget runs out or ctx is canceled.
func (r *ReconnectionPolicy) Execute(ctx context.Context, op string, connect func() error) error {
	var err error
	for i := 0; i < r.maxRetries; i++ {
		if err = connect(); err == nil {
			return nil
		}
		if sleepErr := r.sleep(ctx, r.Interval(i)); sleepErr != nil {
			return sleepErr
		}
	}
	return errors.NewTransportError(op, "remote broker", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
