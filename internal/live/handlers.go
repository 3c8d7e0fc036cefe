package live

import (
	"backend-caravan/internal/retreat"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes mounts the live websocket. The auth middleware runs before
// the upgrade, so the bound retreat is available through conn locals.
func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler) {
	r.Get("/live", authMiddleware, websocket.New(func(c *websocket.Conn) {
		ret, ok := c.Locals("retreat").(retreat.Retreat)
		if !ok {
			_ = c.Close()
			return
		}

		client := hub.Register(ret.ID)
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		<-done
	}))
}
