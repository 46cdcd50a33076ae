package repository

import (
	"context"
	"errors"
	"time"

	"github.com/imaad666/W-Chhatt/internal/domain"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailExists     = errors.New("email already exists")
	ErrUsernameExists  = errors.New("username already exists")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomNameExists  = errors.New("room name already exists")
	ErrRoomFull        = errors.New("room is full")
	ErrMessageNotFound = errors.New("message not found")
)

// UserRepository defines the interface for user data persistence.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	Search(ctx context.Context, keyword string, limit int) ([]domain.User, error)
}

// RoomRepository defines the interface for rooms and their membership.
type RoomRepository interface {
	// Create stores the room and adds its creator as the first member.
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	ListPublic(ctx context.Context) ([]domain.Room, error)
	ListByMember(ctx context.Context, userID string) ([]domain.Room, error)
	Search(ctx context.Context, keyword string) ([]domain.Room, error)
	// AddMember adds userID to the room unless already present. It returns
	// ErrRoomFull when the room is at its participant cap.
	AddMember(ctx context.Context, roomID, userID string) (bool, error)
	RemoveMember(ctx context.Context, roomID, userID string) (bool, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	// Participants returns member usernames in join order.
	Participants(ctx context.Context, roomID string) ([]string, error)
}

// MessageRepository defines the interface for message persistence.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error
	Delete(ctx context.Context, id string) error
	// ListByRoom returns one page of a room's history, newest first, with
	// the total number of messages in the room.
	ListByRoom(ctx context.Context, roomID string, page, size int) ([]domain.Message, int64, error)
	// ListSince returns messages created strictly after since, oldest first.
	ListSince(ctx context.Context, roomID string, since time.Time) ([]domain.Message, error)
	SearchInRoom(ctx context.Context, roomID, keyword string) ([]domain.Message, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Message, error)
	ListByUserInRoom(ctx context.Context, userID, roomID string) ([]domain.Message, error)
	CountByRoom(ctx context.Context, roomID string) (int64, error)
}
