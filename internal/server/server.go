package server

import (
	"errors"

	"backend-caravan/internal/admin"
	"backend-caravan/internal/auth"
	"backend-caravan/internal/avatar"
	"backend-caravan/internal/config"
	"backend-caravan/internal/identity"
	"backend-caravan/internal/live"
	"backend-caravan/internal/location"
	"backend-caravan/internal/message"
	"backend-caravan/internal/mirror"
	"backend-caravan/internal/place"
	"backend-caravan/internal/retreat"
	"backend-caravan/internal/waypoint"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App   *fiber.App
	Cfg   config.Config
	DB    *pgxpool.Pool
	Redis *redis.Client
	Live  *live.Hub
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:   app,
		Cfg:   cfg,
		DB:    db,
		Redis: redisClient,
		Live:  live.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

// errorHandler keeps every error response on the {"error": ...} envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	avatars := avatar.NewStore(s.Cfg.AvatarDir, s.Cfg.AvatarBaseURL)
	if s.Cfg.AvatarBaseURL != "" && s.Cfg.AvatarDir != "" {
		s.App.Static(s.Cfg.AvatarBaseURL, s.Cfg.AvatarDir)
	}

	locationMirror := mirror.New(s.Cfg, s.Redis)
	geocoder := place.NewService(s.Cfg, s.Redis)
	collapser := location.NewCollapser(s.Cfg.CollapseNames)

	authMiddleware := auth.Middleware(s.DB)
	retreats := retreat.NewService(s.DB)

	api := s.App.Group("/api/v1")
	group := api.Group("/retreat")

	retreat.RegisterRoutes(group, retreats, s.DB, avatars, authMiddleware)
	location.RegisterRoutes(group, location.NewService(s.DB, locationMirror, collapser, geocoder, avatars), authMiddleware)
	message.RegisterRoutes(group, message.NewService(s.DB), authMiddleware)
	waypoint.RegisterRoutes(group, waypoint.NewService(s.DB), retreats, authMiddleware)
	live.RegisterRoutes(group, s.Live, authMiddleware)

	admin.RegisterRoutes(api.Group("/admin"), admin.NewService(s.DB), identity.NewService(s.DB), s.Cfg.AdminKey)
}
