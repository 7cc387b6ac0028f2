package services

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"aiframe/config"
)

type Api struct {
	server         *fiber.App
	gen            *Generator
	hub            *Hub
	port           string
	allowedOrigins string
	log            *log.Logger
}

func NewApi(gen *Generator, hub *Hub, config config.ApiConfig) *Api {
	if config.AllowedOrigins == "" {
		config.AllowedOrigins = "*"
	}
	if config.Port == "" {
		config.Port = "8080"
	}

	a := &Api{
		server:         fiber.New(fiber.Config{DisableStartupMessage: true}),
		gen:            gen,
		hub:            hub,
		port:           config.Port,
		allowedOrigins: config.AllowedOrigins,
		log:            log.With("component", "api"),
	}

	allowCredentials := a.allowedOrigins != "*"

	a.server.Use(cors.New(cors.Config{
		AllowOrigins:     a.allowedOrigins,
		AllowCredentials: allowCredentials,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Content-Type,Authorization,Accept,Origin",
	}))
	a.server.Use(RequestLogger())

	a.addRoutes()
	return a
}

// Start serves until the listener fails or Shutdown is called.
func (a *Api) Start() error {
	a.log.Info("listening", "port", a.port)
	return a.server.Listen(fmt.Sprint(":", a.port))
}

func (a *Api) Shutdown(ctx context.Context) error {
	a.hub.Shutdown()
	return a.server.ShutdownWithContext(ctx)
}

func (a *Api) addRoutes() {
	a.server.Add("GET", "/health", a.Health())
	a.server.Add("GET", "/status", a.Status())
	a.server.Add("GET", "/styles", a.Styles())
	a.server.Add("POST", "/styles/refresh", a.RefreshStyles())
	a.server.Add("POST", "/generate", a.Generate())
	a.server.Add("GET", "/frame.png", a.Frame())

	// websocket connection
	a.server.Use("/ws", a.WsUpgrade())
	a.server.Get("/ws/:id", a.Notifications())
}
