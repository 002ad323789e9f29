package handler

import (
	"realtime-chat-be/internal/pkg/logger"
	"realtime-chat-be/internal/pkg/serverutils"
	internalWS "realtime-chat-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WsHandler upgrades authenticated requests to the socket that carries view updates.
type WsHandler struct {
	hub       *internalWS.Hub
	jwtSecret []byte
	logger    logger.ILogger
}

func NewWsHandler(hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *WsHandler {
	return &WsHandler{
		hub:       hub,
		jwtSecret: []byte(jwtSecret),
		logger:    log,
	}
}

func (h *WsHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/ws", h.ServeWs)
}

// ServeWs takes the token from ?token= (browsers) or the Authorization header.
func (h *WsHandler) ServeWs(c *fiber.Ctx) error {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr = serverutils.BearerToken(c)
	}

	userID, err := serverutils.ParseUserToken(tokenStr, h.jwtSecret)
	if err != nil {
		h.logger.Warn("WS_HANDLER", "Rejected websocket handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(err.Error()))
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("WS_HANDLER", "Starting WebSocket session", map[string]interface{}{"user_id": userID.String()})
		internalWS.ServeWs(h.hub, conn, userID)
		h.logger.Info("WS_HANDLER", "WebSocket session ended", map[string]interface{}{"user_id": userID.String()})
	})(c)
}
