package domain

import (
	"time"
)

// Room is a chat room's durable metadata. Membership lives in its own
// relation and is loaded explicitly.
type Room struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	IsPrivate       bool      `json:"is_private"`
	MaxParticipants *int      `json:"max_participants,omitempty"`
	CreatorID       string    `json:"creator_id"`
	CreatorUsername string    `json:"creator_username"`
	CreatedAt       time.Time `json:"created_at"`
}

// HasCapacityFor reports whether a room with count participants can take
// one more.
func (r *Room) HasCapacityFor(count int) bool {
	return r.MaxParticipants == nil || count < *r.MaxParticipants
}

// CreateRoomRequest represents a create room request.
type CreateRoomRequest struct {
	Name            string `json:"name" binding:"required,min=3,max=100"`
	Description     string `json:"description" binding:"max=500"`
	IsPrivate       bool   `json:"is_private"`
	MaxParticipants *int   `json:"max_participants" binding:"omitempty,min=1"`
}

// SearchRoomsRequest represents a room search query.
type SearchRoomsRequest struct {
	Keyword string `form:"keyword" binding:"required,min=1,max=100"`
}

// RoomResponse is a fully materialised room.
type RoomResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	IsPrivate        bool      `json:"is_private"`
	MaxParticipants  *int      `json:"max_participants,omitempty"`
	CreatorID        string    `json:"creator_id"`
	CreatorUsername  string    `json:"creator_username"`
	CreatedAt        time.Time `json:"created_at"`
	Participants     []string  `json:"participants"`
	ParticipantCount int       `json:"participant_count"`
	MessageCount     int64     `json:"message_count"`
}

// ToResponse builds a RoomResponse from the room and its loaded relations.
func (r *Room) ToResponse(participants []string, messageCount int64) RoomResponse {
	if participants == nil {
		participants = []string{}
	}
	return RoomResponse{
		ID:               r.ID,
		Name:             r.Name,
		Description:      r.Description,
		IsPrivate:        r.IsPrivate,
		MaxParticipants:  r.MaxParticipants,
		CreatorID:        r.CreatorID,
		CreatorUsername:  r.CreatorUsername,
		CreatedAt:        r.CreatedAt,
		Participants:     participants,
		ParticipantCount: len(participants),
		MessageCount:     messageCount,
	}
}
