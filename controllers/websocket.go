package controllers

import (
	"aslab_go/middleware"
	"aslab_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub *websocket.Hub
}

func NewWebSocketController(hub *websocket.Hub) *WebSocketController {
	return &WebSocketController{hub: hub}
}

// Upgrade runs after JWTMiddleware, which accepts ?token= for browsers that
// cannot set headers on the handshake.
func (wsc *WebSocketController) Upgrade(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error": "Use the WebSocket endpoint: ws://<host>/ws?token=YOUR_JWT",
		})
	}
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}
	c.Locals("ws_user_id", user.ID)
	return c.Next()
}

// Handler connects an upgraded socket to the hub.
func (wsc *WebSocketController) Handler() fiber.Handler {
	return fiberws.New(func(conn *fiberws.Conn) {
		userID, _ := conn.Locals("ws_user_id").(uint)
		if userID == 0 {
			_ = conn.WriteMessage(fiberws.CloseMessage, []byte("Unauthorized"))
			conn.Close()
			return
		}
		logrus.WithField("user_id", userID).Info("websocket connected")
		wsc.hub.ServeFiberWS(conn, userID)
	})
}

func (wsc *WebSocketController) Stats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}
