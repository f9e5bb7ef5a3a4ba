// Package mesh is the event bus that decouples slow side effects (mail delivery)
// from the request that triggers them.
package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	// TopicClaimCreated carries a notify.Job for a freshly persisted claim.
	TopicClaimCreated = "claims.created"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("mesh: bus closed")

type Event struct {
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

type Handler func(ctx context.Context, e Event)

type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(topic string, h Handler) (unsubscribe func(), err error)
	// Close stops accepting events and waits for in-flight handlers until ctx is done.
	Close(ctx context.Context) error
}
