package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/imaad666/W-Chhatt/internal/config"
	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/internal/hub"
	"github.com/imaad666/W-Chhatt/internal/presence"
	"github.com/imaad666/W-Chhatt/internal/service"
	"github.com/imaad666/W-Chhatt/pkg/log"
	"github.com/imaad666/W-Chhatt/pkg/middleware"
)

type WSHandler struct {
	hub      *hub.Hub
	service  service.ChatService
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(wsCfg.AllowedOrigins),
		},
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the request and starts the client pumps. A token
// given as ?token= or a bearer header authenticates the session right away;
// otherwise the client sends an auth event.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	reqLogger := log.Ctx(c.Request.Context())

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		reqLogger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	clientID := uuid.New().String()
	ctx := log.WithFields(context.WithoutCancel(c.Request.Context()), log.FieldSessionID, clientID)
	sessLogger := log.Ctx(ctx)

	client := hub.NewClient(clientID, h.hub, conn, h.wsCfg)
	h.hub.Register(client)
	sess := h.service.HandleConnect(client)

	go client.WritePump()

	if token := upgradeToken(c); token != "" {
		if err := h.service.HandleAuth(ctx, sess, token); err != nil {
			sessLogger.Debug().Err(err).Msg("upgrade token rejected")
		}
	}

	go client.ReadPump(
		func(cl *hub.Client, message []byte) {
			h.handleMessage(ctx, cl, sess, message)
		},
		func(*hub.Client) {
			if err := h.service.HandleDisconnect(ctx, sess); err != nil {
				sessLogger.Warn().Err(err).Msg("disconnect failed")
			}
		},
	)
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, sess *presence.Session, message []byte) {
	l := log.Ctx(ctx)

	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	switch base.Type {
	case domain.MsgTypeAuth:
		var msg domain.AuthMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid auth message"))
			return
		}
		if err := h.service.HandleAuth(ctx, sess, msg.Token); err != nil {
			l.Debug().Err(err).Msg("auth failed")
		}

	case domain.MsgTypeAddUser:
		var msg domain.AddUserMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid chat.addUser message"))
			return
		}
		if err := h.service.HandleAddUser(ctx, sess, msg.Username, msg.RoomID); err != nil {
			l.Warn().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("add user failed")
		}

	case domain.MsgTypeSendMessage:
		var msg domain.SendMessageWS
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid chat.sendMessage message"))
			return
		}
		if err := h.service.HandleSendMessage(ctx, sess, msg.Content, msg.RoomID); err != nil {
			l.Warn().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("send message failed")
		}

	case domain.MsgTypeLeaveUser:
		if err := h.service.HandleLeaveUser(ctx, sess); err != nil {
			l.Warn().Err(err).Msg("leave user failed")
		}

	case domain.MsgTypePing:
		client.SendMessage(&domain.PongMessage{Type: domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}

func upgradeToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	token, _ := middleware.BearerToken(c.GetHeader(middleware.AuthHeaderKey))
	return token
}

// checkOrigin allows every origin when none are configured or "*" is listed.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
