package queue

import (
	"context"
	"time"
)

// Client sends messages to a queue backend, delivered after delay.
type Client interface {
	Send(ctx context.Context, msg Message, delay time.Duration) error
	Close() error
}
