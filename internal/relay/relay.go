package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/imaad666/W-Chhatt/internal/audit"
	"github.com/imaad666/W-Chhatt/internal/config"
	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/internal/idgen"
	"github.com/imaad666/W-Chhatt/internal/presence"
	"github.com/imaad666/W-Chhatt/internal/repository"
	"github.com/imaad666/W-Chhatt/pkg/log"
)

var (
	ErrContentInvalid  = errors.New("message content is invalid")
	ErrForbidden       = errors.New("only the author can modify this message")
	ErrMessageNotFound = errors.New("message not found")
	ErrRoomNotFound    = errors.New("room not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Subscribers resolves the local connections bound to a room.
type Subscribers interface {
	SubscribersOf(roomID string) []presence.Conn
}

// Publisher forwards locally broadcast events to other instances.
type Publisher interface {
	Publish(ctx context.Context, roomID, eventType string, payload []byte) error
}

// Relay persists chat messages and fans them out to the subscribers of
// their room.
type Relay struct {
	messages repository.MessageRepository
	users    repository.UserRepository
	rooms    repository.RoomRepository
	subs     Subscribers
	ids      idgen.Generator
	cfg      config.ChatConfig

	attachments *Attachments
	publisher   Publisher
	now         func() time.Time
}

func NewRelay(
	messages repository.MessageRepository,
	users repository.UserRepository,
	rooms repository.RoomRepository,
	subs Subscribers,
	ids idgen.Generator,
	cfg config.ChatConfig,
) *Relay {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 1000
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 50
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	return &Relay{
		messages: messages,
		users:    users,
		rooms:    rooms,
		subs:     subs,
		ids:      ids,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetPublisher enables cross-instance fan-out.
func (r *Relay) SetPublisher(p Publisher) {
	r.publisher = p
}

// SetAttachments enables file messages.
func (r *Relay) SetAttachments(a *Attachments) {
	r.attachments = a
}

// validateContent checks content is non-blank and within the length limit.
func (r *Relay) validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content cannot be empty", ErrContentInvalid)
	}
	if utf8.RuneCountInString(content) > r.cfg.MaxMessageLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrContentInvalid, r.cfg.MaxMessageLength)
	}
	return nil
}

// SendMessage persists a text message and broadcasts it to the room.
func (r *Relay) SendMessage(ctx context.Context, content, roomID string, sender domain.Identity) (*domain.Message, error) {
	if err := r.validateContent(content); err != nil {
		return nil, err
	}
	user, err := r.resolve(ctx, roomID, sender)
	if err != nil {
		return nil, err
	}
	return r.store(ctx, roomID, user, content, domain.MessageTypeText)
}

// resolve loads the sender and checks the room exists.
func (r *Relay) resolve(ctx context.Context, roomID string, sender domain.Identity) (*domain.User, error) {
	user, err := r.users.GetByID(ctx, sender.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load sender: %w", err)
	}
	if _, err := r.rooms.GetByID(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to load room: %w", err)
	}
	return user, nil
}

// store persists a message of the given type and broadcasts it.
func (r *Relay) store(ctx context.Context, roomID string, user *domain.User, content string, msgType domain.MessageType) (*domain.Message, error) {
	id, err := r.ids.Generate()
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:        id,
		Content:   content,
		UserID:    user.ID,
		Username:  user.Username,
		RoomID:    roomID,
		Type:      msgType,
		CreatedAt: r.now(),
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	r.broadcast(ctx, roomID, domain.MsgTypeChatMessage, &domain.MessageEvent{
		Type:    domain.MsgTypeChatMessage,
		Message: *msg,
	})
	return msg, nil
}

// AnnounceJoin broadcasts a SYSTEM notice that username joined. Notices are
// not persisted.
func (r *Relay) AnnounceJoin(ctx context.Context, username, roomID string) {
	r.announce(ctx, roomID, username+" joined the chat!")
}

// AnnounceLeave broadcasts a SYSTEM notice that username left.
func (r *Relay) AnnounceLeave(ctx context.Context, username, roomID string) {
	r.announce(ctx, roomID, username+" left the chat!")
}

func (r *Relay) announce(ctx context.Context, roomID, content string) {
	id, err := r.ids.Generate()
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to generate system message id")
		return
	}
	r.broadcast(ctx, roomID, domain.MsgTypeSystemMessage, &domain.MessageEvent{
		Type: domain.MsgTypeSystemMessage,
		Message: domain.Message{
			ID:        id,
			Content:   content,
			Username:  domain.SystemUsername,
			RoomID:    roomID,
			Type:      domain.MessageTypeSystem,
			CreatedAt: r.now(),
		},
	})
}

// EditMessage replaces the content of a message written by requester.
func (r *Relay) EditMessage(ctx context.Context, id, content string, requester domain.Identity) (*domain.Message, error) {
	msg, err := r.authorise(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	if msg.Type != domain.MessageTypeText {
		return nil, fmt.Errorf("%w: only text messages can be edited", ErrContentInvalid)
	}
	if err := r.validateContent(content); err != nil {
		return nil, err
	}

	editedAt := r.now()
	if err := r.messages.UpdateContent(ctx, id, content, editedAt); err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	msg.Content = content
	msg.Edited = true
	msg.EditedAt = &editedAt

	audit.Record(ctx, audit.Event{Action: audit.ActionEditMessage, UserID: requester.UserID, RoomID: msg.RoomID, MessageID: id}, "message edited")
	r.broadcast(ctx, msg.RoomID, domain.MsgTypeMessageEdited, &domain.MessageEvent{
		Type:    domain.MsgTypeMessageEdited,
		Message: *msg,
	})
	return msg, nil
}

// DeleteMessage removes a message written by requester.
func (r *Relay) DeleteMessage(ctx context.Context, id string, requester domain.Identity) error {
	msg, err := r.authorise(ctx, id, requester)
	if err != nil {
		return err
	}

	if err := r.messages.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if msg.IsAttachment() && r.attachments != nil {
		r.attachments.Remove(ctx, msg.Content)
	}

	audit.Record(ctx, audit.Event{Action: audit.ActionDeleteMessage, UserID: requester.UserID, RoomID: msg.RoomID, MessageID: id}, "message deleted")
	r.broadcast(ctx, msg.RoomID, domain.MsgTypeMessageDeleted, &domain.MessageDeletedEvent{
		Type:      domain.MsgTypeMessageDeleted,
		MessageID: id,
		RoomID:    msg.RoomID,
	})
	return nil
}

func (r *Relay) authorise(ctx context.Context, id string, requester domain.Identity) (*domain.Message, error) {
	msg, err := r.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if !msg.IsAuthoredBy(requester.UserID) {
		return nil, ErrForbidden
	}
	return msg, nil
}

// GetMessage returns one message.
func (r *Relay) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	if ok, _ := r.ids.Validate(id); !ok {
		return nil, ErrMessageNotFound
	}
	msg, err := r.messages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

// History returns one page of a room's messages, newest first. page is
// zero-based; size falls back to the default and is capped.
func (r *Relay) History(ctx context.Context, roomID string, page, size int) (*domain.MessagePage, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = r.cfg.DefaultPageSize
	}
	if size > r.cfg.MaxPageSize {
		size = r.cfg.MaxPageSize
	}

	messages, total, err := r.messages.ListByRoom(ctx, roomID, page, size)
	if err != nil {
		return nil, err
	}
	return &domain.MessagePage{
		Messages: messages,
		Page:     page,
		Size:     size,
		Total:    total,
	}, nil
}

// Since returns a room's messages created strictly after ts, oldest first.
func (r *Relay) Since(ctx context.Context, roomID string, ts time.Time) ([]domain.Message, error) {
	return r.messages.ListSince(ctx, roomID, ts)
}

// SearchInRoom finds messages containing keyword, ignoring case.
func (r *Relay) SearchInRoom(ctx context.Context, keyword, roomID string) ([]domain.Message, error) {
	return r.messages.SearchInRoom(ctx, roomID, keyword)
}

// ByUser returns every message written by userID.
func (r *Relay) ByUser(ctx context.Context, userID string) ([]domain.Message, error) {
	return r.messages.ListByUser(ctx, userID)
}

// ByUserInRoom returns userID's messages in roomID.
func (r *Relay) ByUserInRoom(ctx context.Context, userID, roomID string) ([]domain.Message, error) {
	return r.messages.ListByUserInRoom(ctx, userID, roomID)
}

// Count returns the number of stored messages in a room.
func (r *Relay) Count(ctx context.Context, roomID string) (int64, error) {
	return r.messages.CountByRoom(ctx, roomID)
}

// broadcast delivers event to local subscribers and, when enabled, to the
// other instances.
func (r *Relay) broadcast(ctx context.Context, roomID, eventType string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to marshal broadcast event")
		return
	}

	r.DeliverLocal(ctx, roomID, data)

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, roomID, eventType, data); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to publish room event")
		}
	}
}

// DeliverLocal sends raw data to every local subscriber of roomID.
// Per-connection failures are logged and skipped.
func (r *Relay) DeliverLocal(ctx context.Context, roomID string, data []byte) int {
	delivered := 0
	for _, conn := range r.subs.SubscribersOf(roomID) {
		if err := conn.Send(data); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).
				Str(log.FieldRoomID, roomID).
				Str(log.FieldSessionID, conn.ID()).
				Msg("failed to deliver to subscriber")
			continue
		}
		delivered++
	}
	return delivered
}
