package domain

import (
	"time"
)

// MessageType classifies a message.
type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeImage  MessageType = "IMAGE"
	MessageTypeFile   MessageType = "FILE"
	MessageTypeSystem MessageType = "SYSTEM"
)

// SystemUsername is the author shown on join/leave notices.
const SystemUsername = "System"

// Message is a chat message. SYSTEM messages are never persisted.
type Message struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	UserID    string      `json:"user_id,omitempty"`
	Username  string      `json:"username"`
	RoomID    string      `json:"room_id"`
	Type      MessageType `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
	Edited    bool        `json:"edited"`
	EditedAt  *time.Time  `json:"edited_at,omitempty"`
}

// IsAuthoredBy reports whether userID wrote the message.
func (m *Message) IsAuthoredBy(userID string) bool {
	return m.UserID != "" && m.UserID == userID
}

// IsAttachment reports whether the message points at a stored file.
func (m *Message) IsAttachment() bool {
	return m.Type == MessageTypeImage || m.Type == MessageTypeFile
}

// EditMessageRequest represents an edit request.
type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// HistoryRequest is the query of the paginated room history.
type HistoryRequest struct {
	Page int `form:"page" binding:"omitempty,min=0"`
	Size int `form:"size" binding:"omitempty,min=1"`
}

// SearchMessagesRequest represents an in-room message search.
type SearchMessagesRequest struct {
	Keyword string `form:"keyword" binding:"required,min=1,max=200"`
}

// SinceRequest asks for messages strictly after a timestamp.
type SinceRequest struct {
	Timestamp time.Time `form:"ts" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
}

// MessagePage is one page of room history, newest first.
type MessagePage struct {
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	Size     int       `json:"size"`
	Total    int64     `json:"total"`
}

// MessageCount is the response of the count endpoint.
type MessageCount struct {
	RoomID string `json:"room_id"`
	Count  int64  `json:"count"`
}
