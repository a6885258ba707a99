package verification

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/identity"
)

// Handler exposes step-up verification endpoints.
type Handler struct {
	identity *identity.Service
	tokens   *TokenService
}

// NewHandler constructs a verification HTTP handler.
func NewHandler(identitySvc *identity.Service, tokens *TokenService) *Handler {
	return &Handler{identity: identitySvc, tokens: tokens}
}

type issueRequest struct {
	SubjectID string `json:"subject_id"`
	PIN       string `json:"pin"`
	Context   struct {
		Type     string `json:"type"`
		Amount   int64  `json:"amount"`
		TargetID string `json:"target_id"`
	} `json:"context"`
}

type issueResponse struct {
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issue authenticates the subject's PIN and mints a token bound to the
// declared transaction context.
func (h *Handler) Issue(c *fiber.Ctx) error {
	var req issueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.SubjectID == "" || req.PIN == "" {
		return fiber.NewError(http.StatusBadRequest, "subject_id and pin are required")
	}
	if req.Context.Type == "" || req.Context.Amount <= 0 {
		return fiber.NewError(http.StatusBadRequest, "transaction context is required")
	}

	if _, err := h.identity.VerifyPIN(c.UserContext(), req.SubjectID, req.PIN); err != nil {
		if errors.Is(err, identity.ErrInvalidPIN) || errors.Is(err, identity.ErrNotFound) {
			return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
		}
		return fiber.NewError(http.StatusInternalServerError, "verification unavailable")
	}

	token, err := h.tokens.Issue(c.UserContext(), req.SubjectID, Context{
		Type:     req.Context.Type,
		Amount:   req.Context.Amount,
		TargetID: req.Context.TargetID,
	})
	if err != nil {
		if errors.Is(err, ErrStepUpNotEnabled) {
			return fiber.NewError(http.StatusForbidden, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, "token issuance failed")
	}

	return c.Status(http.StatusCreated).JSON(issueResponse{TokenID: token.ID, ExpiresAt: token.ExpiresAt})
}
