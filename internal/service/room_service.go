package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/imaad666/W-Chhatt/internal/audit"
	"github.com/imaad666/W-Chhatt/internal/cache"
	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/internal/repository"
	"github.com/imaad666/W-Chhatt/pkg/log"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomNameTaken = errors.New("room name already taken")
	ErrRoomFull      = errors.New("room is full")
)

// roomServiceImpl implements RoomService interface.
type roomServiceImpl struct {
	rooms    repository.RoomRepository
	users    repository.UserRepository
	messages repository.MessageRepository
	cache    cache.RoomCache
	cacheTTL time.Duration
	sf       singleflight.Group
}

// NewRoomService creates a new room service.
func NewRoomService(
	rooms repository.RoomRepository,
	users repository.UserRepository,
	messages repository.MessageRepository,
	roomCache cache.RoomCache,
	cacheTTL time.Duration,
) RoomService {
	return &roomServiceImpl{
		rooms:    rooms,
		users:    users,
		messages: messages,
		cache:    roomCache,
		cacheTTL: cacheTTL,
	}
}

// CreateRoom creates a new room owned by creator.
func (s *roomServiceImpl) CreateRoom(ctx context.Context, creator domain.Identity, req *domain.CreateRoomRequest) (*domain.RoomResponse, error) {
	user, err := s.loadUser(ctx, creator.UserID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if err := checkLength("name", name, minRoomNameLen, maxRoomNameLen); err != nil {
		return nil, err
	}
	exists, err := s.rooms.ExistsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrRoomNameTaken
	}

	room := &domain.Room{
		Name:            name,
		Description:     strings.TrimSpace(req.Description),
		IsPrivate:       req.IsPrivate,
		MaxParticipants: req.MaxParticipants,
		CreatorID:       user.ID,
		CreatorUsername: user.Username,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		if errors.Is(err, repository.ErrRoomNameExists) {
			return nil, ErrRoomNameTaken
		}
		return nil, err
	}

	audit.Record(ctx, audit.Event{Action: audit.ActionCreateRoom, UserID: user.ID, RoomID: room.ID}, "room created")
	return s.materialise(ctx, room)
}

// GetRoom retrieves a room with its participants and message count.
func (s *roomServiceImpl) GetRoom(ctx context.Context, roomID string) (*domain.RoomResponse, error) {
	room, err := s.getRoomMeta(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.materialise(ctx, room)
}

// getRoomMeta loads room metadata through the cache. Concurrent lookups of
// the same room share one fetch, which outlives any single caller's
// cancellation.
func (s *roomServiceImpl) getRoomMeta(ctx context.Context, roomID string) (*domain.Room, error) {
	shared := context.WithoutCancel(ctx)
	result, err, _ := s.sf.Do(roomID, func() (interface{}, error) {
		return s.fetchWithCache(shared, roomID)
	})
	if err != nil {
		return nil, err
	}

	room, ok := result.(*domain.Room)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	// Callers share the pointer; hand each one its own copy.
	dup := *room
	return &dup, nil
}

func (s *roomServiceImpl) fetchWithCache(ctx context.Context, roomID string) (*domain.Room, error) {
	cached, err := s.cache.GetRoom(ctx, roomID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("cache get error")
	}

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	// Populate asynchronously; the response does not wait on Redis.
	entry := *room
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.PutRoom(cacheCtx, &entry, s.cacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Str(log.FieldRoomID, entry.ID).Msg("cache set error")
		}
	}()

	return room, nil
}

// ListPublicRooms lists every room that is not private.
func (s *roomServiceImpl) ListPublicRooms(ctx context.Context) ([]domain.RoomResponse, error) {
	rooms, err := s.rooms.ListPublic(ctx)
	if err != nil {
		return nil, err
	}
	return s.materialiseAll(ctx, rooms)
}

// ListRoomsForUser lists the rooms userID participates in.
func (s *roomServiceImpl) ListRoomsForUser(ctx context.Context, userID string) ([]domain.RoomResponse, error) {
	rooms, err := s.rooms.ListByMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.materialiseAll(ctx, rooms)
}

// SearchRooms matches keyword against room names and descriptions.
func (s *roomServiceImpl) SearchRooms(ctx context.Context, keyword string) ([]domain.RoomResponse, error) {
	rooms, err := s.rooms.Search(ctx, strings.TrimSpace(keyword))
	if err != nil {
		return nil, err
	}
	return s.materialiseAll(ctx, rooms)
}

// Join adds userID to the room. Joining twice is a no-op.
func (s *roomServiceImpl) Join(ctx context.Context, roomID, userID string) error {
	if _, err := s.loadUser(ctx, userID); err != nil {
		return err
	}

	added, err := s.rooms.AddMember(ctx, roomID, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRoomNotFound):
			return ErrRoomNotFound
		case errors.Is(err, repository.ErrRoomFull):
			return ErrRoomFull
		}
		return err
	}
	if added {
		audit.Record(ctx, audit.Event{Action: audit.ActionJoinRoom, UserID: userID, RoomID: roomID}, "user joined room")
	}
	return nil
}

// Leave removes userID from the room. Leaving a room one is not in, or one
// created by the caller, changes nothing.
func (s *roomServiceImpl) Leave(ctx context.Context, roomID, userID string) error {
	if _, err := s.loadUser(ctx, userID); err != nil {
		return err
	}
	room, err := s.getRoomMeta(ctx, roomID)
	if err != nil {
		return err
	}
	if room.CreatorID == userID {
		return nil
	}

	removed, err := s.rooms.RemoveMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if removed {
		audit.Record(ctx, audit.Event{Action: audit.ActionLeaveRoom, UserID: userID, RoomID: roomID}, "user left room")
	}
	return nil
}

// IsMember reports whether userID belongs to the room's durable member set.
func (s *roomServiceImpl) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	if _, err := s.getRoomMeta(ctx, roomID); err != nil {
		return false, err
	}
	return s.rooms.IsMember(ctx, roomID, userID)
}

// Participants returns the usernames of a room's members in join order.
func (s *roomServiceImpl) Participants(ctx context.Context, roomID string) ([]string, error) {
	if _, err := s.getRoomMeta(ctx, roomID); err != nil {
		return nil, err
	}
	return s.rooms.Participants(ctx, roomID)
}

func (s *roomServiceImpl) loadUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *roomServiceImpl) materialise(ctx context.Context, room *domain.Room) (*domain.RoomResponse, error) {
	participants, err := s.rooms.Participants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	count, err := s.messages.CountByRoom(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	resp := room.ToResponse(participants, count)
	return &resp, nil
}

func (s *roomServiceImpl) materialiseAll(ctx context.Context, rooms []domain.Room) ([]domain.RoomResponse, error) {
	out := make([]domain.RoomResponse, 0, len(rooms))
	for i := range rooms {
		resp, err := s.materialise(ctx, &rooms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *resp)
	}
	return out, nil
}
