package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imaad666/W-Chhatt/internal/config"
	"github.com/imaad666/W-Chhatt/internal/domain"
)

// Hash fields of a cached room.
const (
	fieldName            = "name"
	fieldDescription     = "description"
	fieldPrivate         = "private"
	fieldMaxParticipants = "max_participants"
	fieldCreatorID       = "creator_id"
	fieldCreatorUsername = "creator_username"
	fieldCreatedAt       = "created_at"
)

// RedisRoomCache stores each room as a Redis hash under <prefix>:<room id>.
type RedisRoomCache struct {
	client *redis.Client
	prefix string
}

func NewRedisRoomCache(cfg config.RedisConfig, prefix string) (*RedisRoomCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisRoomCacheFromClient(client, prefix), nil
}

// NewRedisRoomCacheFromClient wraps an existing client. Close closes it.
func NewRedisRoomCacheFromClient(client *redis.Client, prefix string) *RedisRoomCache {
	return &RedisRoomCache{client: client, prefix: prefix}
}

func (c *RedisRoomCache) key(roomID string) string {
	return c.prefix + ":" + roomID
}

func (c *RedisRoomCache) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	fields, err := c.client.HGetAll(ctx, c.key(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read room %s from redis: %w", roomID, err)
	}
	if len(fields) == 0 {
		return nil, ErrCacheMiss
	}

	room, err := decodeRoom(roomID, fields)
	if err != nil {
		// A malformed entry is treated as absent and dropped.
		c.client.Del(ctx, c.key(roomID))
		return nil, ErrCacheMiss
	}
	return room, nil
}

// PutRoom writes the hash and its expiry in one transaction so a reader
// never sees an entry without a TTL.
func (c *RedisRoomCache) PutRoom(ctx context.Context, room *domain.Room, ttl time.Duration) error {
	key := c.key(room.ID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encodeRoom(room))
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache room %s: %w", room.ID, err)
	}
	return nil
}

func (c *RedisRoomCache) Forget(ctx context.Context, roomIDs ...string) error {
	if len(roomIDs) == 0 {
		return nil
	}
	keys := make([]string, len(roomIDs))
	for i, id := range roomIDs {
		keys[i] = c.key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to evict rooms: %w", err)
	}
	return nil
}

func (c *RedisRoomCache) Close() error {
	return c.client.Close()
}

func encodeRoom(room *domain.Room) map[string]interface{} {
	fields := map[string]interface{}{
		fieldName:            room.Name,
		fieldDescription:     room.Description,
		fieldPrivate:         strconv.FormatBool(room.IsPrivate),
		fieldCreatorID:       room.CreatorID,
		fieldCreatorUsername: room.CreatorUsername,
		fieldCreatedAt:       room.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if room.MaxParticipants != nil {
		fields[fieldMaxParticipants] = strconv.Itoa(*room.MaxParticipants)
	}
	return fields
}

func decodeRoom(roomID string, fields map[string]string) (*domain.Room, error) {
	name, ok := fields[fieldName]
	if !ok {
		return nil, errors.New("missing name")
	}

	private, err := strconv.ParseBool(fields[fieldPrivate])
	if err != nil {
		return nil, fmt.Errorf("private: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}

	room := &domain.Room{
		ID:              roomID,
		Name:            name,
		Description:     fields[fieldDescription],
		IsPrivate:       private,
		CreatorID:       fields[fieldCreatorID],
		CreatorUsername: fields[fieldCreatorUsername],
		CreatedAt:       createdAt,
	}
	if raw, ok := fields[fieldMaxParticipants]; ok {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("max_participants: %w", err)
		}
		room.MaxParticipants = &limit
	}
	return room, nil
}
