// Package targetbus defines pub/sub interfaces for target events.
package targetbus

import (
	"context"

	"github.com/coastwatch/aistracker/internal/schema"
)

// SubscriptionID uniquely identifies a bus subscription.
type SubscriptionID string

// Bus delivers target events to interested subscribers.
type Bus interface {
	Publish(ctx context.Context, evt *schema.TargetEvent) error
	Subscribe(ctx context.Context, typ schema.EventType) (SubscriptionID, <-chan *schema.TargetEvent, error)
	Unsubscribe(id SubscriptionID)
	Close()
}

// MemoryConfig configures the in-memory bus buffers.
type MemoryConfig struct {
	BufferSize int
}

func (c MemoryConfig) normalize() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
	return c
}
