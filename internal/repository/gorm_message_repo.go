package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/pkg/log"
)

const (
	orderNewestFirst = "created_at DESC, id DESC"
	orderOldestFirst = "created_at ASC, id ASC"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create persists a message. The caller assigns the ID.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	model := domain.MessageToModel(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("failed to create message in db")
		return err
	}
	msg.Type = domain.MessageType(model.Type)
	return nil
}

// GetByID retrieves a message by ID.
func (r *GormMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var model domain.MessageModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldMessageID, id).Msg("failed to get message by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// UpdateContent replaces the content and marks the message edited.
func (r *GormMessageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":   content,
			"edited":    true,
			"edited_at": editedAt,
		})
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldMessageID, id).Msg("failed to update message")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// Delete removes a message permanently.
func (r *GormMessageRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.MessageModel{}, "id = ?", id)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldMessageID, id).Msg("failed to delete message")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ListByRoom retrieves a page of room history, newest first.
func (r *GormMessageRepository) ListByRoom(ctx context.Context, roomID string, page, size int) ([]domain.Message, int64, error) {
	l := log.Ctx(ctx)

	if page < 0 {
		page = 0
	}
	if size < 1 {
		size = 50
	}

	query := r.db.WithContext(ctx).Model(&domain.MessageModel{}).Where("room_id = ?", roomID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to count messages")
		return nil, 0, err
	}

	var models []domain.MessageModel
	if err := query.Order(orderNewestFirst).Offset(page * size).Limit(size).Find(&models).Error; err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to list messages")
		return nil, 0, err
	}

	return toMessages(models), total, nil
}

// ListSince retrieves messages created strictly after since, oldest first.
func (r *GormMessageRepository) ListSince(ctx context.Context, roomID string, since time.Time) ([]domain.Message, error) {
	var models []domain.MessageModel
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND created_at > ?", roomID, since.UTC()).
		Order(orderOldestFirst).
		Find(&models)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to list messages since")
		return nil, result.Error
	}
	return toMessages(models), nil
}

// SearchInRoom matches keyword against content, ignoring case, newest first.
func (r *GormMessageRepository) SearchInRoom(ctx context.Context, roomID, keyword string) ([]domain.Message, error) {
	var models []domain.MessageModel
	pattern := "%" + strings.ToLower(keyword) + "%"
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND LOWER(content) LIKE ?", roomID, pattern).
		Order(orderNewestFirst).
		Find(&models)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to search messages")
		return nil, result.Error
	}
	return toMessages(models), nil
}

// ListByUser retrieves every message written by userID, newest first.
func (r *GormMessageRepository) ListByUser(ctx context.Context, userID string) ([]domain.Message, error) {
	var models []domain.MessageModel
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(orderNewestFirst).
		Find(&models)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldUserID, userID).Msg("failed to list messages by user")
		return nil, result.Error
	}
	return toMessages(models), nil
}

// ListByUserInRoom retrieves userID's messages in one room, newest first.
func (r *GormMessageRepository) ListByUserInRoom(ctx context.Context, userID, roomID string) ([]domain.Message, error) {
	var models []domain.MessageModel
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		Order(orderNewestFirst).
		Find(&models)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldUserID, userID).Str(log.FieldRoomID, roomID).Msg("failed to list messages by user in room")
		return nil, result.Error
	}
	return toMessages(models), nil
}

// CountByRoom counts the messages stored for a room.
func (r *GormMessageRepository) CountByRoom(ctx context.Context, roomID string) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("room_id = ?", roomID).
		Count(&count)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to count messages")
	}
	return count, result.Error
}

func toMessages(models []domain.MessageModel) []domain.Message {
	messages := make([]domain.Message, len(models))
	for i, model := range models {
		messages[i] = *model.ToDomain()
	}
	return messages
}
