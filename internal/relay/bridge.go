package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/imaad666/W-Chhatt/pkg/log"
	"github.com/imaad666/W-Chhatt/pkg/pubsub"
)

// Bridge connects the relay to the pub/sub bus so that subscribers bound on
// other instances see the same room events.
type Bridge struct {
	ps         pubsub.PubSub
	relay      *Relay
	instanceID string
}

func NewBridge(ps pubsub.PubSub, relay *Relay, instanceID string) *Bridge {
	return &Bridge{
		ps:         ps,
		relay:      relay,
		instanceID: instanceID,
	}
}

// Publish sends an already encoded client event to the room's channel.
func (b *Bridge) Publish(ctx context.Context, roomID, eventType string, payload []byte) error {
	event, err := pubsub.NewEvent(eventType, roomID, b.instanceID, json.RawMessage(payload))
	if err != nil {
		return err
	}
	return b.ps.Publish(ctx, pubsub.RoomEventsChannel(roomID), event)
}

// Start subscribes to every room channel and delivers events published by
// other instances to local subscribers. It returns once subscribed; delivery
// stops when ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	events, err := b.ps.SubscribePattern(ctx, pubsub.PatternRoomEvents)
	if err != nil {
		return fmt.Errorf("failed to subscribe to room events: %w", err)
	}

	l := log.L()
	l.Info().Str(log.FieldInstanceID, b.instanceID).Msg("room event bridge started")

	go b.run(ctx, events)
	return nil
}

func (b *Bridge) run(ctx context.Context, events <-chan *pubsub.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			b.handle(ctx, event)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, event *pubsub.Event) {
	if event == nil || event.Source == b.instanceID || event.RoomID == "" {
		return
	}
	delivered := b.relay.DeliverLocal(ctx, event.RoomID, event.Payload)

	l := log.L()
	l.Debug().
		Str(log.FieldRoomID, event.RoomID).
		Str("event_type", event.Type).
		Str("source", event.Source).
		Int("delivered", delivered).
		Msg("remote room event delivered")
}
