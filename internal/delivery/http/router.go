package http

import (
	"strings"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp creates the fiber app with middleware and routes installed
func NewApp(handler *Handler, corsOrigins []string) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Trip Planner API v1",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: ErrorHandler,
	})

	origins := "*"
	if len(corsOrigins) > 0 {
		origins = strings.Join(corsOrigins, ",")
	}

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))
	app.Use(requestLogger(logging.NewProdLogger()))

	SetupRoutes(app, handler)
	return app
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(app *fiber.App, handler *Handler) {
	app.Get("/health", handler.HealthCheck)

	api := app.Group("/api/v1")
	{
		api.Post("/route-planning", handler.PlanRoute)

		api.Get("/alerts", handler.ListAlerts)
		api.Get("/alerts/zones", handler.ZoneSummary)
		api.Get("/traffic-predictions", handler.TrafficPredictions)
		api.Get("/zones.kml", handler.ZonesKML)
	}
}

// requestLogger scopes a logger to each request's user context
func requestLogger(lg logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.SetUserContext(logging.With(c.UserContext(), lg.With("path", c.Path())))
		return c.Next()
	}
}

// ErrorHandler renders errors as JSON
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
