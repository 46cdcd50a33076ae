package pubsub

import (
	"fmt"
	"strings"
)

// Room fan-out channels: chat:room:{roomID}:events.
const (
	ChannelRoomEvents = "chat:room:%s:events"
	PatternRoomEvents = "chat:room:*:events"
)

// RoomEventsChannel returns the channel carrying events for a room.
func RoomEventsChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomEvents, roomID)
}

// splitChannel breaks a {prefix}:room:{roomID}:{suffix} channel into parts.
func splitChannel(channel string) (prefix, roomID, suffix string, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[1] != "room" || parts[2] == "" {
		return "", "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	return parts[0], parts[2], parts[3], nil
}
