package api

import (
	"fmt"
	"math/rand/v2"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/rs/zerolog"
	"github.com/trackship/server/src/auth"
	"github.com/trackship/server/src/cache"
	"github.com/trackship/server/src/hub"
	"github.com/trackship/server/src/store"
)

// Server wires the HTTP API to its collaborators. Push delivery is a
// best-effort side effect of the mutating handlers, never a
// precondition for their success.
type Server struct {
	store    store.Store
	tokens   *auth.Tokens
	hub      *hub.Hub
	cache    *cache.TrackingCache
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewServer creates the API server. The cache may be nil.
func NewServer(st store.Store, tokens *auth.Tokens, h *hub.Hub, tc *cache.TrackingCache, logger zerolog.Logger) *Server {
	return &Server{
		store:    st,
		tokens:   tokens,
		hub:      h,
		cache:    tc,
		validate: validator.New(),
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the fiber application with all routes mounted.
func (s *Server) Router(corsOrigin string) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "trackship",
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{corsOrigin},
		AllowMethods: []string{fiber.MethodGet, fiber.MethodPost, fiber.MethodPut, fiber.MethodDelete},
		AllowHeaders: []string{fiber.HeaderContentType, fiber.HeaderAuthorization},
	}))

	app.Get("/api/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "message": "Server is running"})
	})
	app.Get("/ws/info", s.handleWSInfo)

	authGroup := app.Group("/api/auth")
	authGroup.Post("/login", s.handleLogin)
	authGroup.Post("/register", s.handleRegister, auth.RequireAuth(s.tokens), auth.RequireAdmin())
	authGroup.Get("/verify", s.handleVerify, auth.RequireAuth(s.tokens))
	authGroup.Get("/me", s.handleMe, auth.RequireAuth(s.tokens))

	app.Get("/api/tracking/:trackingNumber", s.handleTrackShipment)

	admin := app.Group("/api/admin", auth.RequireAuth(s.tokens), auth.RequireAdmin())
	admin.Get("/shipments", s.handleListShipments)
	admin.Get("/shipments/:id", s.handleGetShipment)
	admin.Post("/shipments", s.handleCreateShipment)
	admin.Put("/shipments/:id", s.handleUpdateShipment)
	admin.Delete("/shipments/:id", s.handleDeleteShipment)
	admin.Put("/shipments/:id/status", s.handleUpdateShipmentStatus)
	admin.Get("/countries", s.handleListCountries)
	admin.Get("/states", s.handleListStates)
	admin.Get("/states/country/:countryId", s.handleListStatesByCountry)

	return app
}

func (s *Server) handleWSInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  "/ws",
		"clients":   s.hub.ClientCount(),
	})
}

func ok(c fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func created(c fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": data})
}

func fail(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "message": message})
}

// newTrackingNumber generates a TSE-prefixed tracking number with ten
// random digits.
func newTrackingNumber() string {
	return fmt.Sprintf("TSE%d", 1000000000+rand.Int64N(9000000000))
}
