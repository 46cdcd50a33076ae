package cache

import (
	"context"
	"errors"
	"time"

	"github.com/imaad666/W-Chhatt/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// RoomCache caches room metadata by id. Membership and counts change on
// every join and message, so they are always read from the database.
type RoomCache interface {
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	PutRoom(ctx context.Context, room *domain.Room, ttl time.Duration) error
	Forget(ctx context.Context, roomIDs ...string) error
	Close() error
}
