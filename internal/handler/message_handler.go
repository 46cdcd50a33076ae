package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/internal/relay"
	"github.com/imaad666/W-Chhatt/pkg/log"
	"github.com/imaad666/W-Chhatt/pkg/middleware"
	"github.com/imaad666/W-Chhatt/pkg/response"
)

// MessageHandler handles HTTP requests for room messages and attachments.
type MessageHandler struct {
	relay          *relay.Relay
	authMiddleware *middleware.AuthMiddleware
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(r *relay.Relay, authMiddleware *middleware.AuthMiddleware) *MessageHandler {
	return &MessageHandler{
		relay:          r,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *MessageHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		messages := api.Group("/messages")
		messages.Use(h.authMiddleware.RequireAuth())
		{
			messages.GET("/room/:id", h.History)
			messages.GET("/room/:id/search", h.Search)
			messages.GET("/room/:id/since", h.Since)
			messages.GET("/room/:id/count", h.Count)
			messages.POST("/room/:id/attachments", h.UploadAttachment)
			messages.GET("/user/:id", h.ByUser)
			messages.GET("/user/:id/room/:roomId", h.ByUserInRoom)
			messages.GET("/:id", h.GetMessage)
			messages.PUT("/:id", h.EditMessage)
			messages.DELETE("/:id", h.DeleteMessage)
		}

		// Attachment URLs are embedded in messages and fetched by browsers
		// without a bearer header; keys are unguessable.
		api.GET("/attachments/*key", h.DownloadAttachment)
	}
}

// History returns one page of a room's messages, newest first.
func (h *MessageHandler) History(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BindError(c, err)
		return
	}

	roomID := c.Param("id")
	page, err := h.relay.History(ctx, roomID, req.Page, req.Size)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to get history")
		response.InternalError(c, "failed to get messages")
		return
	}

	response.Success(c, page)
}

// Search finds messages in a room containing a keyword.
func (h *MessageHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.SearchMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BindError(c, err)
		return
	}

	roomID := c.Param("id")
	messages, err := h.relay.SearchInRoom(ctx, req.Keyword, roomID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to search messages")
		response.InternalError(c, "failed to search messages")
		return
	}

	response.Success(c, messages)
}

// Since returns messages created after the ts query parameter, oldest first.
func (h *MessageHandler) Since(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.SinceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BindError(c, err)
		return
	}

	roomID := c.Param("id")
	messages, err := h.relay.Since(ctx, roomID, req.Timestamp)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to get messages since")
		response.InternalError(c, "failed to get messages")
		return
	}

	response.Success(c, messages)
}

// Count returns the number of messages in a room.
func (h *MessageHandler) Count(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	roomID := c.Param("id")
	count, err := h.relay.Count(ctx, roomID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to count messages")
		response.InternalError(c, "failed to count messages")
		return
	}

	response.Success(c, domain.MessageCount{RoomID: roomID, Count: count})
}

// ByUser lists every message written by a user.
func (h *MessageHandler) ByUser(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := c.Param("id")
	messages, err := h.relay.ByUser(ctx, userID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list user messages")
		response.InternalError(c, "failed to get messages")
		return
	}

	response.Success(c, messages)
}

// ByUserInRoom lists a user's messages in one room.
func (h *MessageHandler) ByUserInRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := c.Param("id")
	roomID := c.Param("roomId")
	messages, err := h.relay.ByUserInRoom(ctx, userID, roomID)
	if err != nil {
		l.Error().Err(err).
			Str(log.FieldUserID, userID).
			Str(log.FieldRoomID, roomID).
			Msg("failed to list user messages in room")
		response.InternalError(c, "failed to get messages")
		return
	}

	response.Success(c, messages)
}

// GetMessage returns one message.
func (h *MessageHandler) GetMessage(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	id := c.Param("id")
	msg, err := h.relay.GetMessage(ctx, id)
	if err != nil {
		if !writeMessageError(c, err) {
			l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to get message")
			response.InternalError(c, "failed to get message")
		}
		return
	}

	response.Success(c, msg)
}

// EditMessage replaces the content of one of the caller's messages.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	id := c.Param("id")
	msg, err := h.relay.EditMessage(ctx, id, req.Content, currentIdentity(c))
	if err != nil {
		if !writeMessageError(c, err) {
			l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to edit message")
			response.InternalError(c, "failed to edit message")
		}
		return
	}

	response.Success(c, msg)
}

// DeleteMessage removes one of the caller's messages.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	id := c.Param("id")
	if err := h.relay.DeleteMessage(ctx, id, currentIdentity(c)); err != nil {
		if !writeMessageError(c, err) {
			l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to delete message")
			response.InternalError(c, "failed to delete message")
		}
		return
	}

	response.Success(c, gin.H{"message": "message deleted"})
}

// UploadAttachment stores the multipart "file" field and posts it to the
// room as an IMAGE or FILE message.
func (h *MessageHandler) UploadAttachment(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		l.Error().Err(err).Msg("failed to open uploaded file")
		response.InternalError(c, "failed to read upload")
		return
	}
	defer f.Close()

	roomID := c.Param("id")
	msg, err := h.relay.SendAttachment(ctx, roomID, currentIdentity(c), relay.Attachment{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		if !writeMessageError(c, err) {
			l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to upload attachment")
			response.InternalError(c, "failed to upload attachment")
		}
		return
	}

	response.Created(c, msg)
}

// DownloadAttachment streams a stored attachment.
func (h *MessageHandler) DownloadAttachment(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	key := c.Param("key")
	rc, err := h.relay.OpenAttachment(ctx, key)
	if err != nil {
		if !writeMessageError(c, err) {
			l.Error().Err(err).Str("key", key).Msg("failed to open attachment")
			response.InternalError(c, "failed to read attachment")
		}
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		l.Warn().Err(err).Str("key", key).Msg("attachment download interrupted")
	}
}

// writeMessageError answers the relay's sentinel errors. It reports false
// when err is not one of them.
func writeMessageError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, relay.ErrMessageNotFound):
		response.NotFound(c, "message not found")
	case errors.Is(err, relay.ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, relay.ErrContentInvalid):
		response.BadRequest(c, err.Error())
	case errors.Is(err, relay.ErrRoomNotFound):
		response.NotFound(c, "room not found")
	case errors.Is(err, relay.ErrUserNotFound):
		response.Unauthorized(c, "user not found")
	case errors.Is(err, relay.ErrAttachmentNotFound):
		response.NotFound(c, "attachment not found")
	case errors.Is(err, relay.ErrAttachmentTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", err.Error())
	case errors.Is(err, relay.ErrAttachmentsDisabled):
		response.Error(c, http.StatusNotImplemented, "NOT_IMPLEMENTED", err.Error())
	default:
		return false
	}
	return true
}
