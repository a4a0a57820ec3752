package api

import (
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"

	"github.com/fathima-sithara/realtime-backplane/internal/presence"
	"github.com/fathima-sithara/realtime-backplane/internal/ws"
)

type Server struct {
	presence *presence.Store
}

func NewServer(wsHandler *ws.Handler, pres *presence.Store) *fiber.App {
	app := fiber.New()
	app.Use(fiberlogger.New())
	s := &Server{presence: pres}

	api := app.Group("/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api.Get("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(wsHandler.Handle))

	api.Get("/presence/:user_id", s.getPresence)

	return app
}

func (s *Server) getPresence(c *fiber.Ctx) error {
	if s.presence == nil {
		return fiber.ErrNotFound
	}
	doc, err := s.presence.GetPresence(c.Context(), c.Params("user_id"))
	if err != nil {
		return fiber.ErrNotFound
	}
	return c.JSON(fiber.Map{"status": "success", "data": doc})
}
