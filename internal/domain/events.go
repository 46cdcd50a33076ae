package domain

// WebSocket message types from client.
const (
	MsgTypeAuth        = "auth"
	MsgTypeAddUser     = "chat.addUser"
	MsgTypeSendMessage = "chat.sendMessage"
	MsgTypeLeaveUser   = "chat.leaveUser"
	MsgTypePing        = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAuthResult     = "auth_result"
	MsgTypeRoomJoined     = "room_joined"
	MsgTypeRoomLeft       = "room_left"
	MsgTypeChatMessage    = "chat_message"
	MsgTypeSystemMessage  = "system_message"
	MsgTypeMessageEdited  = "message_edited"
	MsgTypeMessageDeleted = "message_deleted"
	MsgTypeError          = "error"
	MsgTypePong           = "pong"
)

// Error codes shared by the REST envelope and WebSocket error events.
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeRoomFull         = "ROOM_FULL"
	ErrCodeNotInRoom        = "NOT_IN_ROOM"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type AddUserMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	RoomID   string `json:"room_id"`
}

type SendMessageWS struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	RoomID  string `json:"room_id"`
}

type LeaveUserMessage struct {
	Type string `json:"type"`
}

// Server -> Client messages

type AuthResultMessage struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

type RoomJoinedMessage struct {
	Type         string   `json:"type"`
	RoomID       string   `json:"room_id"`
	Participants []string `json:"participants"`
}

type RoomLeftMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// MessageEvent carries a chat or system message to subscribers.
type MessageEvent struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// MessageDeletedEvent tells subscribers a message is gone.
type MessageDeletedEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

type PongMessage struct {
	Type string `json:"type"`
}
