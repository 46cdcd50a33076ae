package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (same keys as pkg/middleware)
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Chat
	FieldRoomID     = "room_id"
	FieldSessionID  = "session_id"
	FieldMessageID  = "message_id"
	FieldInstanceID = "instance_id"

	FieldService = "service"

	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
