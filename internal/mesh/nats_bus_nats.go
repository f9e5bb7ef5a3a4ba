//go:build nats

package mesh

import (
	"context"
	"encoding/json"
	"time"

	nats "github.com/nats-io/nats.go"
)

// NatsBus fans events out through a NATS server so any instance may deliver them.
type NatsBus struct {
	nc *nats.Conn
}

func NewNatsBus(url string) (Bus, error) {
	nc, err := nats.Connect(url, nats.Name("parcelclaims-backend"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	return &NatsBus{nc: nc}, nil
}

func (b *NatsBus) Publish(ctx context.Context, e Event) error {
	if b.nc.IsDraining() || b.nc.IsClosed() {
		return ErrClosed
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.nc.Publish(e.Topic, payload)
}

// Subscribe joins a queue group per topic so each event is handled by one instance.
func (b *NatsBus) Subscribe(topic string, h Handler) (func(), error) {
	sub, err := b.nc.QueueSubscribe(topic, topic+".workers", func(msg *nats.Msg) {
		var e Event
		if err := json.Unmarshal(msg.Data, &e); err == nil {
			h(context.Background(), e)
		}
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close drains subscriptions, letting queued messages finish, then closes the connection.
func (b *NatsBus) Close(ctx context.Context) error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return err
	}
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for !b.nc.IsClosed() {
		select {
		case <-ctx.Done():
			b.nc.Close()
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
