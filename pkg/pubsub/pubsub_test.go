package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelMapping(t *testing.T) {
	assert.Equal(t, "chat:room:R1:events", RoomEventsChannel("R1"))

	tests := []struct {
		name    string
		channel string
		topic   string
		key     string
		subject string
		wantErr bool
	}{
		{"room channel", "chat:room:R1:events", "chat-room-events", "R1", "chat.room.R1.events", false},
		{"pattern", PatternRoomEvents, "chat-room-events", "*", "chat.room.*.events", false},
		{"underscore suffix", "chat:room:R2:user_events", "chat-room-user-events", "R2", "chat.room.R2.user_events", false},
		{"too short", "chat:room:R1", "", "", "", true},
		{"no room segment", "chat:lobby:R1:events", "", "", "", true},
		{"empty room", "chat:room::events", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topic, key, err := channelToTopicAndKey(tt.channel)
			subject, subjErr := channelToSubject(tt.channel)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Error(t, subjErr)
				return
			}
			require.NoError(t, err)
			require.NoError(t, subjErr)
			assert.Equal(t, tt.topic, topic)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.subject, subject)
		})
	}
}

func TestNewEvent(t *testing.T) {
	event, err := NewEvent("chat_message", "R1", "node-a", map[string]string{"content": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "R1", event.RoomID)
	assert.Equal(t, "node-a", event.Source)
	assert.False(t, event.Timestamp.IsZero())

	var payload map[string]string
	require.NoError(t, event.UnmarshalPayload(&payload))
	assert.Equal(t, "hi", payload["content"])
}

func TestNewPubSub_UnknownDriver(t *testing.T) {
	_, err := NewPubSub(Config{Driver: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestRedisPubSub_PatternRoundTrip(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping test")
	}

	ps := NewRedisPubSubFromClient(client)
	defer ps.Close()

	events, err := ps.SubscribePattern(ctx, PatternRoomEvents)
	require.NoError(t, err)

	sent, err := NewEvent("system_message", "room-42", "node-a", map[string]string{"content": "joined"})
	require.NoError(t, err)
	require.NoError(t, ps.Publish(ctx, RoomEventsChannel("room-42"), sent))

	select {
	case got := <-events:
		require.NotNil(t, got)
		assert.Equal(t, "system_message", got.Type)
		assert.Equal(t, "room-42", got.RoomID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}

	require.NoError(t, ps.Unsubscribe(ctx, PatternRoomEvents))
}
