package services

import (
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func (a *Api) WsUpgrade() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(ctx) {
			return ctx.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Notifications streams WSEvents to one client. The first message is the current
// status.
func (a *Api) Notifications() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {

		clientId := strings.TrimSpace(conn.Params("id"))
		if clientId == "" {
			clientId = uuid.NewString()
		}

		client := NewWSClient(clientId, conn)
		a.hub.Add(client)
		a.log.Debug("ws client connected", "clientId", clientId, "clients", a.hub.Len())

		go client.writeLoop()
		a.hub.SendTo(clientId, a.gen.StatusEvent())

		client.readPump(func() {
			a.hub.Remove(clientId, client)
			a.log.Debug("ws client disconnected", "clientId", clientId)
		})
	})
}
