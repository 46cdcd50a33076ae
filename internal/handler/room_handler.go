package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/internal/service"
	"github.com/imaad666/W-Chhatt/pkg/log"
	"github.com/imaad666/W-Chhatt/pkg/middleware"
	"github.com/imaad666/W-Chhatt/pkg/response"
)

// RoomHandler handles HTTP requests for the room registry.
type RoomHandler struct {
	roomService    service.RoomService
	authMiddleware *middleware.AuthMiddleware
}

// NewRoomHandler creates a new room handler.
func NewRoomHandler(roomService service.RoomService, authMiddleware *middleware.AuthMiddleware) *RoomHandler {
	return &RoomHandler{
		roomService:    roomService,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *RoomHandler) RegisterRoutes(r *gin.Engine) {
	rooms := r.Group("/api/rooms")
	rooms.Use(h.authMiddleware.RequireAuth())
	{
		rooms.POST("", h.CreateRoom)
		rooms.GET("", h.ListRooms)
		rooms.GET("/my", h.GetMyRooms)
		rooms.GET("/search", h.SearchRooms)
		rooms.GET("/:id", h.GetRoom)
		rooms.POST("/:id/join", h.JoinRoom)
		rooms.POST("/:id/leave", h.LeaveRoom)
		rooms.GET("/:id/participants", h.Participants)
	}
}

// CreateRoom creates a new room owned by the caller.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create room request")
		response.BindError(c, err)
		return
	}

	room, err := h.roomService.CreateRoom(ctx, currentIdentity(c), &req)
	if err != nil {
		if writeFieldError(c, err) {
			return
		}
		switch {
		case errors.Is(err, service.ErrRoomNameTaken):
			response.Conflict(c, "room name already taken")
		case errors.Is(err, service.ErrUserNotFound):
			response.Unauthorized(c, "user not found")
		default:
			l.Error().Err(err).Msg("failed to create room")
			response.InternalError(c, "failed to create room")
		}
		return
	}

	response.Created(c, room)
}

// GetRoom retrieves a room by ID.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	roomID := c.Param("id")
	room, err := h.roomService.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to get room")
		response.InternalError(c, "failed to get room")
		return
	}

	response.Success(c, room)
}

// ListRooms lists public rooms.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	rooms, err := h.roomService.ListPublicRooms(ctx)
	if err != nil {
		l.Error().Err(err).Msg("failed to list rooms")
		response.InternalError(c, "failed to list rooms")
		return
	}

	response.Success(c, rooms)
}

// GetMyRooms lists the rooms the caller is a member of.
func (h *RoomHandler) GetMyRooms(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	rooms, err := h.roomService.ListRoomsForUser(ctx, middleware.GetUserID(c))
	if err != nil {
		l.Error().Err(err).Msg("failed to get my rooms")
		response.InternalError(c, "failed to get rooms")
		return
	}

	response.Success(c, rooms)
}

// SearchRooms searches rooms by name or description.
func (h *RoomHandler) SearchRooms(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.SearchRoomsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind search rooms request")
		response.BindError(c, err)
		return
	}

	rooms, err := h.roomService.SearchRooms(ctx, req.Keyword)
	if err != nil {
		l.Error().Err(err).Msg("failed to search rooms")
		response.InternalError(c, "failed to search rooms")
		return
	}

	response.Success(c, rooms)
}

// JoinRoom adds the caller to a room and returns the updated room.
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	roomID := c.Param("id")
	if err := h.roomService.Join(ctx, roomID, middleware.GetUserID(c)); err != nil {
		if !writeMembershipError(c, err) {
			l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to join room")
			response.InternalError(c, "failed to join room")
		}
		return
	}

	h.GetRoom(c)
}

// LeaveRoom removes the caller from a room.
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	roomID := c.Param("id")
	if err := h.roomService.Leave(ctx, roomID, middleware.GetUserID(c)); err != nil {
		if !writeMembershipError(c, err) {
			l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to leave room")
			response.InternalError(c, "failed to leave room")
		}
		return
	}

	response.Success(c, gin.H{"message": "left room"})
}

// Participants lists the usernames of a room's members.
func (h *RoomHandler) Participants(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	roomID := c.Param("id")
	participants, err := h.roomService.Participants(ctx, roomID)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to list participants")
		response.InternalError(c, "failed to list participants")
		return
	}

	response.Success(c, participants)
}

// writeMembershipError answers the errors Join and Leave can return. It
// reports false when err is not one of them.
func writeMembershipError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		response.NotFound(c, "room not found")
	case errors.Is(err, service.ErrRoomFull):
		response.Error(c, http.StatusConflict, domain.ErrCodeRoomFull, "room is full")
	case errors.Is(err, service.ErrUserNotFound):
		response.Unauthorized(c, "user not found")
	default:
		return false
	}
	return true
}

func currentIdentity(c *gin.Context) domain.Identity {
	return domain.Identity{
		UserID:   middleware.GetUserID(c),
		Username: middleware.GetUsername(c),
	}
}

// writeFieldError answers a service-level field validation failure the same
// way a binding failure is answered.
func writeFieldError(c *gin.Context, err error) bool {
	var fe *service.FieldError
	if !errors.As(err, &fe) {
		return false
	}
	response.ValidationFailed(c, map[string]string{fe.Field: fe.Message})
	return true
}
