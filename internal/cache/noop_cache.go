package cache

import (
	"context"
	"time"

	"github.com/imaad666/W-Chhatt/internal/domain"
)

// NoopRoomCache always misses. Used when caching is disabled.
type NoopRoomCache struct{}

func NewNoopRoomCache() *NoopRoomCache {
	return &NoopRoomCache{}
}

func (NoopRoomCache) GetRoom(context.Context, string) (*domain.Room, error) {
	return nil, ErrCacheMiss
}

func (NoopRoomCache) PutRoom(context.Context, *domain.Room, time.Duration) error { return nil }

func (NoopRoomCache) Forget(context.Context, ...string) error { return nil }

func (NoopRoomCache) Close() error { return nil }
