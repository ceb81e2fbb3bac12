package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/shortener/internal/app/model"
	"github.com/sifan077/shortener/internal/app/repository"
	"github.com/sifan077/shortener/internal/app/service"
	infraprom "github.com/sifan077/shortener/internal/infra/prometheus"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger      *zap.Logger
	LinkService service.LinkService
	Statistics  service.StatisticsService
	Metrics     *infraprom.Metrics
}

// APIHandler implements the API-key protected endpoints.
type APIHandler struct {
	logger      *zap.Logger
	linkService service.LinkService
	statistics  service.StatisticsService
	metrics     *infraprom.Metrics
	validate    *validator.Validate
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:      logger,
		linkService: deps.LinkService,
		statistics:  deps.Statistics,
		metrics:     deps.Metrics,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register wires API routes onto the provided router behind requireKey.
func (h *APIHandler) Register(router fiber.Router, requireKey fiber.Handler) {
	router.Post("/create", requireKey, h.CreateLink)
	router.Get("/:id/statistics", requireKey, h.GetLinkStatistics)
	router.Patch("/:id", requireKey, h.UpdateLink)
}

// CreateLink handles POST /create
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	target, err := h.parseTarget(c)
	if err != nil {
		return err
	}

	link, err := h.linkService.CreateLink(c.UserContext(), target.TargetURL)
	if err != nil {
		return h.fail(c, "create_link", err)
	}

	return c.Status(fiber.StatusCreated).JSON(link)
}

// UpdateLink handles PATCH /:id
func (h *APIHandler) UpdateLink(c *fiber.Ctx) error {
	target, err := h.parseTarget(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	link, err := h.linkService.UpdateLink(c.UserContext(), id, target.TargetURL)
	if err != nil {
		return h.fail(c, "update_link", err)
	}

	h.logger.Debug("updated link", zap.String("id", id), zap.String("target", link.TargetURL))
	return c.JSON(link)
}

// GetLinkStatistics handles GET /:id/statistics
func (h *APIHandler) GetLinkStatistics(c *fiber.Ctx) error {
	counts, err := h.statistics.CountByLink(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, "get_link_statistics", err)
	}
	if counts == nil {
		counts = []model.CountedLinkStatistics{}
	}
	return c.JSON(counts)
}

// parseTarget decodes and validates the request body.
func (h *APIHandler) parseTarget(c *fiber.Ctx) (*model.LinkTarget, error) {
	var target model.LinkTarget
	if err := c.BodyParser(&target); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(&target); err != nil {
		return nil, errURLMalformed
	}
	return &target, nil
}

func (h *APIHandler) fail(c *fiber.Ctx, operation string, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		return errURLMalformed
	case errors.Is(err, repository.ErrLinkNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "link not found",
		})
	default:
		return internalError(c, h.logger, h.metrics, operation, err)
	}
}

