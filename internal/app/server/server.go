package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/shortener/internal/app/service"
	inthttp "github.com/sifan077/shortener/internal/http/handler"
	"github.com/sifan077/shortener/internal/http/middleware"
	infraprom "github.com/sifan077/shortener/internal/infra/prometheus"
	"go.uber.org/zap"
)

// Dependencies bundles everything the HTTP server needs. Redis and RateLimit
// are optional.
type Dependencies struct {
	Logger     *zap.Logger
	Metrics    *infraprom.Metrics
	Links      service.LinkService
	Statistics service.StatisticsService
	Auth       service.Authenticator
	Redis      *redis.Client
	RateLimit  *middleware.RateLimitConfig
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with all routes registered.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = infraprom.NewMetrics()
	}

	app := fiber.New(fiber.Config{
		AppName:               "shortener",
		ErrorHandler:          inthttp.ErrorHandler(deps.Logger),
		DisableStartupMessage: true,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the underlying Fiber application, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.deps.Logger.Named("http")))
	s.app.Use(middleware.Metrics(s.deps.Metrics))
	s.app.Use(middleware.CORS())

	if s.deps.Redis != nil && s.deps.RateLimit != nil {
		s.app.Use(middleware.RateLimit(s.deps.Redis, *s.deps.RateLimit, s.deps.Logger))
	}
}

func (s *Server) registerRoutes() {
	s.app.Get("/metrics", adaptor.HTTPHandler(s.deps.Metrics.Handler()))

	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:      s.deps.Logger,
		LinkService: s.deps.Links,
		Statistics:  s.deps.Statistics,
		Metrics:     s.deps.Metrics,
	})
	apiHandler.Register(s.app, middleware.RequireAPIKey(s.deps.Auth, s.deps.Metrics, s.deps.Logger))

	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:      s.deps.Logger,
		LinkService: s.deps.Links,
		Statistics:  s.deps.Statistics,
		Metrics:     s.deps.Metrics,
	})
	redirectHandler.Register(s.app)
}
