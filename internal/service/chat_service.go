package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/internal/presence"
	"github.com/imaad666/W-Chhatt/internal/relay"
	"github.com/imaad666/W-Chhatt/pkg/jwt"
	"github.com/imaad666/W-Chhatt/pkg/log"
)

var ErrNotInRoom = errors.New("session is not in that room")

// TokenValidator validates access tokens presented on the socket.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*jwt.Claims, error)
}

type chatService struct {
	tracker   *presence.Tracker
	rooms     RoomService
	relay     *relay.Relay
	validator TokenValidator
}

func NewChatService(
	tracker *presence.Tracker,
	rooms RoomService,
	r *relay.Relay,
	validator TokenValidator,
) ChatService {
	return &chatService{
		tracker:   tracker,
		rooms:     rooms,
		relay:     r,
		validator: validator,
	}
}

func (s *chatService) HandleConnect(conn presence.Conn) *presence.Session {
	return s.tracker.Register(conn)
}

func (s *chatService) HandleAuth(ctx context.Context, sess *presence.Session, token string) error {
	claims, err := s.validator.ValidateAccessToken(token)
	if err == nil {
		// A socket keeps one identity for its lifetime; a room binding is
		// only ever held by the user who joined.
		err = sess.Authenticate(claims.UserID, claims.Username)
	}
	if err != nil {
		reply(ctx, sess, &domain.AuthResultMessage{
			Type:    domain.MsgTypeAuthResult,
			Success: false,
			Message: err.Error(),
		})
		return err
	}

	return reply(ctx, sess, &domain.AuthResultMessage{
		Type:     domain.MsgTypeAuthResult,
		Success:  true,
		UserID:   claims.UserID,
		Username: claims.Username,
	})
}

func (s *chatService) HandleAddUser(ctx context.Context, sess *presence.Session, username, roomID string) error {
	userID, authed, ok := sess.Identity()
	if !ok {
		return replyError(ctx, sess, domain.ErrCodeUnauthorized, "Not authenticated")
	}
	if roomID == "" {
		return replyError(ctx, sess, domain.ErrCodeBadRequest, "room_id is required")
	}
	if username != "" && username != authed {
		return replyError(ctx, sess, domain.ErrCodeForbidden, "username does not match the authenticated user")
	}

	if err := s.rooms.Join(ctx, roomID, userID); err != nil {
		switch {
		case errors.Is(err, ErrRoomNotFound):
			return replyError(ctx, sess, domain.ErrCodeNotFound, "Room not found")
		case errors.Is(err, ErrRoomFull):
			return replyError(ctx, sess, domain.ErrCodeRoomFull, "Room is full")
		case errors.Is(err, ErrUserNotFound):
			return replyError(ctx, sess, domain.ErrCodeUnauthorized, "User not found")
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to join room")
		return replyError(ctx, sess, domain.ErrCodeInternalError, "Failed to join room")
	}

	previous, err := s.tracker.Bind(sess, authed, roomID)
	if err != nil {
		return replyError(ctx, sess, domain.ErrCodeBadRequest, err.Error())
	}
	if previous != "" && previous != roomID {
		s.relay.AnnounceLeave(ctx, authed, previous)
	}

	participants, err := s.rooms.Participants(ctx, roomID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to load participants")
	}
	if participants == nil {
		participants = []string{}
	}
	if err := reply(ctx, sess, &domain.RoomJoinedMessage{
		Type:         domain.MsgTypeRoomJoined,
		RoomID:       roomID,
		Participants: participants,
	}); err != nil {
		return err
	}

	if previous != roomID {
		s.relay.AnnounceJoin(ctx, authed, roomID)
	}
	return nil
}

func (s *chatService) HandleSendMessage(ctx context.Context, sess *presence.Session, content, roomID string) error {
	userID, username, ok := sess.Identity()
	if !ok {
		return replyError(ctx, sess, domain.ErrCodeUnauthorized, "Not authenticated")
	}

	bound := sess.RoomID()
	if bound == "" || (roomID != "" && roomID != bound) {
		return replyError(ctx, sess, domain.ErrCodeNotInRoom, ErrNotInRoom.Error())
	}

	// Leaving over REST drops durable membership without touching the
	// socket, so the binding alone is not proof of membership.
	member, err := s.rooms.IsMember(ctx, bound, userID)
	if err != nil && !errors.Is(err, ErrRoomNotFound) {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, bound).Msg("failed to check membership")
		return replyError(ctx, sess, domain.ErrCodeInternalError, "Failed to send message")
	}
	if !member {
		if _, unbound := s.tracker.Unbind(sess); unbound {
			s.relay.AnnounceLeave(ctx, username, bound)
		}
		return replyError(ctx, sess, domain.ErrCodeNotInRoom, ErrNotInRoom.Error())
	}

	_, err = s.relay.SendMessage(ctx, content, bound, domain.Identity{UserID: userID, Username: username})
	if err != nil {
		switch {
		case errors.Is(err, relay.ErrContentInvalid):
			return replyError(ctx, sess, domain.ErrCodeBadRequest, err.Error())
		case errors.Is(err, relay.ErrRoomNotFound):
			return replyError(ctx, sess, domain.ErrCodeNotFound, "Room not found")
		case errors.Is(err, relay.ErrUserNotFound):
			return replyError(ctx, sess, domain.ErrCodeUnauthorized, "User not found")
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, bound).Msg("failed to send message")
		return replyError(ctx, sess, domain.ErrCodeInternalError, "Failed to send message")
	}
	return nil
}

func (s *chatService) HandleLeaveUser(ctx context.Context, sess *presence.Session) error {
	_, username, ok := sess.Identity()
	if !ok {
		return replyError(ctx, sess, domain.ErrCodeUnauthorized, "Not authenticated")
	}

	roomID, bound := s.tracker.Unbind(sess)
	if !bound {
		return replyError(ctx, sess, domain.ErrCodeNotInRoom, "Not in a room")
	}

	s.relay.AnnounceLeave(ctx, username, roomID)
	return reply(ctx, sess, &domain.RoomLeftMessage{
		Type:   domain.MsgTypeRoomLeft,
		RoomID: roomID,
	})
}

func (s *chatService) HandleDisconnect(ctx context.Context, sess *presence.Session) error {
	departure, ok := s.tracker.Unregister(sess)
	if !ok {
		return nil
	}
	s.relay.AnnounceLeave(ctx, departure.Username, departure.RoomID)
	return nil
}

func reply(ctx context.Context, sess *presence.Session, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if err := sess.Conn().Send(data); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldSessionID, sess.ID()).Msg("failed to reply to session")
		return err
	}
	return nil
}

func replyError(ctx context.Context, sess *presence.Session, code, message string) error {
	return reply(ctx, sess, domain.NewErrorMessage(code, message))
}
