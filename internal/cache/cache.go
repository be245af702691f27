// Package cache wraps Redis for the tracking cache, rate counters and live
// status fan-out. Memory implements the same surface in process.
package cache

import (
	"context"
	"errors"
	"time"
)

const (
	TrackingTTL = time.Minute
)

var ErrMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Counter backs fixed-window rate limits.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber delivers messages until the returned cancel func is called or
// ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

func TrackingKey(orderNumber string) string {
	return "order_track:" + orderNumber
}

func StatusChannel(orderNumber string) string {
	return "order_status:" + orderNumber
}
