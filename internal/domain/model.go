package domain

import (
	"time"

	"github.com/imaad666/W-Chhatt/pkg/database"
)

// UserModel is the GORM model for users table.
type UserModel struct {
	ID           string               `gorm:"type:varchar(36);primaryKey"`
	Username     string               `gorm:"type:varchar(50);uniqueIndex;not null"`
	Email        string               `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string               `gorm:"type:varchar(255);not null"`
	Roles        database.StringArray `gorm:"type:text"`
	Active       bool                 `gorm:"not null;default:true"`
	CreatedAt    time.Time            `gorm:"autoCreateTime"`
	LastLogin    *time.Time
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Roles:        []string(m.Roles),
		Active:       m.Active,
		CreatedAt:    m.CreatedAt,
		LastLogin:    m.LastLogin,
	}
}

// UserToModel converts domain User to UserModel.
func UserToModel(u *User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Roles:        database.StringArray(u.Roles),
		Active:       u.Active,
		CreatedAt:    u.CreatedAt,
		LastLogin:    u.LastLogin,
	}
}

// RoomModel is the GORM model for rooms table.
type RoomModel struct {
	ID              string    `gorm:"type:varchar(36);primaryKey"`
	Name            string    `gorm:"type:varchar(100);uniqueIndex;not null"`
	Description     string    `gorm:"type:varchar(500)"`
	IsPrivate       bool      `gorm:"index;not null;default:false"`
	MaxParticipants *int      `gorm:"column:max_participants"`
	CreatorID       string    `gorm:"type:varchar(36);index;not null"`
	CreatorUsername string    `gorm:"type:varchar(50);not null"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "rooms"
}

// ToDomain converts RoomModel to domain Room.
func (m *RoomModel) ToDomain() *Room {
	return &Room{
		ID:              m.ID,
		Name:            m.Name,
		Description:     m.Description,
		IsPrivate:       m.IsPrivate,
		MaxParticipants: m.MaxParticipants,
		CreatorID:       m.CreatorID,
		CreatorUsername: m.CreatorUsername,
		CreatedAt:       m.CreatedAt,
	}
}

// RoomToModel converts domain Room to RoomModel.
func RoomToModel(r *Room) *RoomModel {
	return &RoomModel{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		IsPrivate:       r.IsPrivate,
		MaxParticipants: r.MaxParticipants,
		CreatorID:       r.CreatorID,
		CreatorUsername: r.CreatorUsername,
		CreatedAt:       r.CreatedAt,
	}
}

// RoomMemberModel is the GORM model for the room_members relation. ID is the
// insertion sequence used to order participants.
type RoomMemberModel struct {
	ID       uint64    `gorm:"primaryKey;autoIncrement"`
	RoomID   string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_room_member"`
	UserID   string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_room_member;index"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for RoomMemberModel.
func (RoomMemberModel) TableName() string {
	return "room_members"
}

// MessageModel is the GORM model for messages table.
type MessageModel struct {
	ID        string    `gorm:"type:varchar(26);primaryKey"`
	Content   string    `gorm:"type:varchar(4000);not null"`
	UserID    string    `gorm:"type:varchar(36);not null;index:idx_messages_user_room"`
	Username  string    `gorm:"type:varchar(50);not null"`
	RoomID    string    `gorm:"type:varchar(36);not null;index:idx_messages_room_created;index:idx_messages_user_room"`
	Type      string    `gorm:"type:varchar(10);not null;default:'TEXT'"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_room_created"`
	Edited    bool      `gorm:"not null;default:false"`
	EditedAt  *time.Time
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:        m.ID,
		Content:   m.Content,
		UserID:    m.UserID,
		Username:  m.Username,
		RoomID:    m.RoomID,
		Type:      MessageType(m.Type),
		CreatedAt: m.CreatedAt,
		Edited:    m.Edited,
		EditedAt:  m.EditedAt,
	}
}

// MessageToModel converts domain Message to MessageModel.
func MessageToModel(msg *Message) *MessageModel {
	t := string(msg.Type)
	if t == "" {
		t = string(MessageTypeText)
	}
	return &MessageModel{
		ID:        msg.ID,
		Content:   msg.Content,
		UserID:    msg.UserID,
		Username:  msg.Username,
		RoomID:    msg.RoomID,
		Type:      t,
		CreatedAt: msg.CreatedAt,
		Edited:    msg.Edited,
		EditedAt:  msg.EditedAt,
	}
}

// Models lists every table for auto-migration.
func Models() []interface{} {
	return []interface{}{
		&UserModel{},
		&RoomModel{},
		&RoomMemberModel{},
		&MessageModel{},
	}
}
