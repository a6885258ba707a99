package report

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the monthly statistics endpoints.
type Handler struct {
	generator *Generator
}

// NewHandler constructs a statistics HTTP handler.
func NewHandler(generator *Generator) *Handler {
	return &Handler{generator: generator}
}

// Get serves previously generated statistics for ?month=YYYY-MM.
func (h *Handler) Get(c *fiber.Ctx) error {
	stats, err := h.generator.Get(c.UserContext(), c.Query("month"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrInvalidMonth):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, "statistics unavailable")
		}
	}
	return c.Status(http.StatusOK).JSON(stats)
}

type generateRequest struct {
	Month string `json:"month"`
}

// Generate recomputes statistics for the requested month from source records.
func (h *Handler) Generate(c *fiber.Ctx) error {
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	stats, err := h.generator.Generate(c.UserContext(), req.Month)
	if err != nil {
		if errors.Is(err, ErrInvalidMonth) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, "statistics generation failed")
	}
	return c.Status(http.StatusCreated).JSON(stats)
}
