package service

import (
	"context"

	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/internal/presence"
)

// AccountService defines the interface for identity and credential logic.
type AccountService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error)
	RefreshToken(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.AuthResponse, error)
	Logout(ctx context.Context, userID string) error
	Me(ctx context.Context, userID string) (*domain.UserResponse, error)
	SearchUsers(ctx context.Context, keyword string) ([]domain.PublicUser, error)
}

// RoomService defines the interface for the room registry.
type RoomService interface {
	CreateRoom(ctx context.Context, creator domain.Identity, req *domain.CreateRoomRequest) (*domain.RoomResponse, error)
	GetRoom(ctx context.Context, roomID string) (*domain.RoomResponse, error)
	ListPublicRooms(ctx context.Context) ([]domain.RoomResponse, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]domain.RoomResponse, error)
	SearchRooms(ctx context.Context, keyword string) ([]domain.RoomResponse, error)
	Join(ctx context.Context, roomID, userID string) error
	Leave(ctx context.Context, roomID, userID string) error
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	Participants(ctx context.Context, roomID string) ([]string, error)
}

// ChatService handles the real-time events of one WebSocket session.
type ChatService interface {
	HandleConnect(conn presence.Conn) *presence.Session
	HandleAuth(ctx context.Context, s *presence.Session, token string) error
	HandleAddUser(ctx context.Context, s *presence.Session, username, roomID string) error
	HandleSendMessage(ctx context.Context, s *presence.Session, content, roomID string) error
	HandleLeaveUser(ctx context.Context, s *presence.Session) error
	HandleDisconnect(ctx context.Context, s *presence.Session) error
}
