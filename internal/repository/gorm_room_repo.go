package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/pkg/database"
	"github.com/imaad666/W-Chhatt/pkg/log"
)

// GormRoomRepository implements RoomRepository using GORM.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GORM-based room repository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// Create creates a new room with its creator as the first member.
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	l := log.Ctx(ctx)

	room.ID = uuid.New().String()
	model := domain.RoomToModel(room)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return tx.Create(&domain.RoomMemberModel{
			RoomID: model.ID,
			UserID: model.CreatorID,
		}).Error
	})
	if err != nil {
		if database.IsDuplicateKey(err) {
			return ErrRoomNameExists
		}
		l.Error().Err(err).Msg("failed to create room in db")
		return err
	}

	// Update the domain object with generated timestamps
	room.CreatedAt = model.CreatedAt
	l.Debug().Str(log.FieldRoomID, room.ID).Msg("room created in db")
	return nil
}

// GetByID retrieves a room by ID.
func (r *GormRoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	var model domain.RoomModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldRoomID, id).Msg("failed to get room by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ExistsByName reports whether a room with this name exists.
func (r *GormRoomRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.RoomModel{}).
		Where("name = ?", name).
		Count(&count).Error
	return count > 0, err
}

// ListPublic lists every non-private room, newest first.
func (r *GormRoomRepository) ListPublic(ctx context.Context) ([]domain.Room, error) {
	var models []domain.RoomModel
	result := r.db.WithContext(ctx).
		Where("is_private = ?", false).
		Order("created_at DESC").
		Find(&models)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Msg("failed to list public rooms")
		return nil, result.Error
	}
	return toRooms(models), nil
}

// ListByMember lists the rooms userID participates in, newest first.
func (r *GormRoomRepository) ListByMember(ctx context.Context, userID string) ([]domain.Room, error) {
	var models []domain.RoomModel
	result := r.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ?", userID).
		Order("rooms.created_at DESC").
		Find(&models)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldUserID, userID).Msg("failed to list rooms for member")
		return nil, result.Error
	}
	return toRooms(models), nil
}

// Search matches keyword against name or description, ignoring case.
func (r *GormRoomRepository) Search(ctx context.Context, keyword string) ([]domain.Room, error) {
	var models []domain.RoomModel
	pattern := "%" + strings.ToLower(keyword) + "%"
	result := r.db.WithContext(ctx).
		Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern).
		Order("created_at DESC").
		Find(&models)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Msg("failed to search rooms")
		return nil, result.Error
	}
	return toRooms(models), nil
}

// AddMember adds userID to the room. The room row is locked for the
// duration of the capacity check on databases that support it.
func (r *GormRoomRepository) AddMember(ctx context.Context, roomID, userID string) (bool, error) {
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room domain.RoomModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&room, "id = ?", roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoomNotFound
			}
			return err
		}

		var existing int64
		if err := tx.Model(&domain.RoomMemberModel{}).
			Where("room_id = ? AND user_id = ?", roomID, userID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		if room.MaxParticipants != nil {
			var count int64
			if err := tx.Model(&domain.RoomMemberModel{}).
				Where("room_id = ?", roomID).
				Count(&count).Error; err != nil {
				return err
			}
			if int(count) >= *room.MaxParticipants {
				return ErrRoomFull
			}
		}

		if err := tx.Create(&domain.RoomMemberModel{RoomID: roomID, UserID: userID}).Error; err != nil {
			if database.IsDuplicateKey(err) {
				return nil
			}
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrRoomNotFound) && !errors.Is(err, ErrRoomFull) {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldRoomID, roomID).Str(log.FieldUserID, userID).Msg("failed to add room member")
		}
		return false, err
	}
	return added, nil
}

// RemoveMember removes userID from the room. Removing a non-member is not
// an error.
func (r *GormRoomRepository) RemoveMember(ctx context.Context, roomID, userID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&domain.RoomMemberModel{})
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Str(log.FieldUserID, userID).Msg("failed to remove room member")
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IsMember reports whether userID is in the room's participant set.
func (r *GormRoomRepository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.RoomMemberModel{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

// Participants returns member usernames in join order.
func (r *GormRoomRepository) Participants(ctx context.Context, roomID string) ([]string, error) {
	names := []string{}
	result := r.db.WithContext(ctx).Model(&domain.RoomMemberModel{}).
		Joins("JOIN users ON users.id = room_members.user_id").
		Where("room_members.room_id = ?", roomID).
		Order("room_members.id ASC").
		Pluck("users.username", &names)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to list participants")
		return nil, result.Error
	}
	return names, nil
}

func toRooms(models []domain.RoomModel) []domain.Room {
	rooms := make([]domain.Room, len(models))
	for i, model := range models {
		rooms[i] = *model.ToDomain()
	}
	return rooms
}
