package audit

import (
	"context"

	"github.com/imaad666/W-Chhatt/pkg/log"
)

// Audit actions.
const (
	ActionRegister      = "user.register"
	ActionLogin         = "user.login"
	ActionLoginFailed   = "user.login_failed"
	ActionLogout        = "user.logout"
	ActionCreateRoom    = "room.create"
	ActionJoinRoom      = "room.join"
	ActionLeaveRoom     = "room.leave"
	ActionEditMessage   = "message.edit"
	ActionDeleteMessage = "message.delete"
	ActionUpload        = "message.upload"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Event describes one audited action. Empty fields are left out of the
// log line.
type Event struct {
	Action    string
	UserID    string
	RoomID    string
	MessageID string
	Detail    string
}

// Record writes ev through the context logger with log_type=audit.
func Record(ctx context.Context, ev Event, msg string) {
	l := log.Ctx(ctx)
	e := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, ev.Action)

	optional := [...]struct{ key, val string }{
		{log.FieldUserID, ev.UserID},
		{log.FieldRoomID, ev.RoomID},
		{log.FieldMessageID, ev.MessageID},
		{FieldDetail, ev.Detail},
	}
	for _, f := range optional {
		if f.val != "" {
			e = e.Str(f.key, f.val)
		}
	}
	e.Msg(msg)
}
