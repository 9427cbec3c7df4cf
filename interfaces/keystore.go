package interfaces

import (
	"context"
	"time"
)

// KeyStore is a small get/set/expire store used for cross-system
// message-id correlation.
type KeyStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
