package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/shortener/internal/app/model"
	"github.com/sifan077/shortener/internal/app/repository"
	"github.com/sifan077/shortener/internal/app/service"
	infraprom "github.com/sifan077/shortener/internal/infra/prometheus"
	"go.uber.org/zap"
)

const redirectCacheControl = "public, max-age=300, s-maxage=300, stale-while-revalidate=300, stale-if-error=300"

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger      *zap.Logger
	LinkService service.LinkService
	Statistics  service.StatisticsService
	Metrics     *infraprom.Metrics
}

// RedirectHandler implements the public redirect and health endpoints.
type RedirectHandler struct {
	logger      *zap.Logger
	linkService service.LinkService
	statistics  service.StatisticsService
	metrics     *infraprom.Metrics
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:      logger,
		linkService: deps.LinkService,
		statistics:  deps.Statistics,
		metrics:     deps.Metrics,
	}
}

// Register wires redirect routes onto the provided router. It must run after
// every other GET route with a single path segment.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Get("/:id", h.Redirect)
}

// Health always reports the service as healthy.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	return c.SendString("Service healthy")
}

// Redirect handles GET /:id.
//
// An unknown id is answered with 200 and the body "Not found", not 404.
// Clients rely on that pairing.
func (h *RedirectHandler) Redirect(c *fiber.Ctx) error {
	// Fiber reuses the request buffers once the handler returns.
	id := strings.Clone(c.Params("id"))

	link, err := h.linkService.GetLink(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return c.Status(fiber.StatusOK).SendString("Not found")
		}
		return internalError(c, h.logger, h.metrics, "redirect", err)
	}

	h.logger.Debug("redirecting short link", zap.String("id", id), zap.String("target", link.TargetURL))

	c.Set(fiber.HeaderCacheControl, redirectCacheControl)
	if err := c.Redirect(link.TargetURL, fiber.StatusTemporaryRedirect); err != nil {
		return err
	}

	h.statistics.RecordAsync(model.LinkStatistic{
		LinkID:    link.ID,
		Referer:   optionalHeader(c, fiber.HeaderReferer),
		UserAgent: optionalHeader(c, fiber.HeaderUserAgent),
	})
	return nil
}

// optionalHeader copies a request header, mapping an absent header to nil.
func optionalHeader(c *fiber.Ctx, name string) *string {
	value := c.Get(name)
	if value == "" {
		return nil
	}
	value = strings.Clone(value)
	return &value
}
