package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/internal/presence"
	"github.com/imaad666/W-Chhatt/pkg/pubsub"
)

// memoryBus is a PubSub that hands every published event to every pattern
// subscriber.
type memoryBus struct {
	mu   sync.Mutex
	subs []chan *pubsub.Event
}

func (b *memoryBus) Publish(_ context.Context, channel string, event *pubsub.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		ch <- event
	}
	return nil
}

func (b *memoryBus) Subscribe(ctx context.Context, channel string) (<-chan *pubsub.Event, error) {
	return b.SubscribePattern(ctx, channel)
}

func (b *memoryBus) SubscribePattern(context.Context, string) (<-chan *pubsub.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *pubsub.Event, 16)
	b.subs = append(b.subs, ch)
	return ch, nil
}

func (b *memoryBus) Unsubscribe(context.Context, string) error { return nil }

func (b *memoryBus) Close() error { return nil }

func TestBridge_DeliversRemoteEventsOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := &memoryBus{}

	localConn := &recordingConn{id: "local"}
	localSubs := staticSubs{}
	f := newFixture(t, localSubs)
	localSubs[f.room.ID] = []presence.Conn{localConn}

	remoteConn := &recordingConn{id: "remote"}
	remoteRelay := NewRelay(f.msgs, f.users, f.rooms, staticSubs{f.room.ID: {remoteConn}}, f.relay.ids, f.relay.cfg)

	local := NewBridge(bus, f.relay, "instance-a")
	remote := NewBridge(bus, remoteRelay, "instance-b")
	f.relay.SetPublisher(local)
	remoteRelay.SetPublisher(remote)
	require.NoError(t, local.Start(ctx))
	require.NoError(t, remote.Start(ctx))

	msg, err := f.relay.SendMessage(ctx, "across instances", f.room.ID, f.alice)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(remoteConn.events(t)) == 1
	}, time.Second, 10*time.Millisecond)

	got := remoteConn.events(t)[0]
	assert.Equal(t, domain.MsgTypeChatMessage, got["type"])
	assert.Equal(t, msg.ID, got["message"].(map[string]interface{})["id"])

	// The publishing instance drops its own echo.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, localConn.events(t), 1)
}

func TestBridge_IgnoresMalformedEvents(t *testing.T) {
	conn := &recordingConn{id: "c"}
	f := newFixture(t, staticSubs{"r": {conn}})
	b := NewBridge(&memoryBus{}, f.relay, "me")

	b.handle(context.Background(), nil)
	b.handle(context.Background(), &pubsub.Event{RoomID: "r", Source: "me", Payload: []byte(`{}`)})
	b.handle(context.Background(), &pubsub.Event{Source: "other", Payload: []byte(`{}`)})
	assert.Empty(t, conn.events(t))

	b.handle(context.Background(), &pubsub.Event{RoomID: "r", Source: "other", Payload: []byte(`{"type":"x"}`)})
	assert.Len(t, conn.events(t), 1)
}
