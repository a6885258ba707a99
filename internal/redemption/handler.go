package redemption

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes redemption endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a redemption HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type redeemRequest struct {
	SubjectID           string `json:"subject_id"`
	Method              string `json:"method"`
	Amount              int64  `json:"amount"`
	DestinationWalletID string `json:"destination_wallet_id"`
	Destination         string `json:"destination"`
	VerificationToken   string `json:"verification_token"`
}

type transactionResponse struct {
	TransactionID string     `json:"transaction_id"`
	Status        string     `json:"status"`
	Method        string     `json:"method"`
	Amount        int64      `json:"amount"`
	FailureReason string     `json:"failure_reason,omitempty"`
	RailReference string     `json:"rail_reference,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// RedeemVoucher converts a voucher into value via the requested method.
func (h *Handler) RedeemVoucher(c *fiber.Ctx) error {
	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return h.redeem(c, Request{
		SubjectID:           req.SubjectID,
		IdempotencyKey:      c.Get("Idempotency-Key"),
		VoucherID:           c.Params("voucherId"),
		DestinationWalletID: req.DestinationWalletID,
		Destination:         req.Destination,
		Method:              Method(req.Method),
		Amount:              req.Amount,
		VerificationTokenID: req.VerificationToken,
	})
}

// RedeemFromWallet pays stored value out of a wallet via an external method.
func (h *Handler) RedeemFromWallet(c *fiber.Ctx) error {
	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return h.redeem(c, Request{
		SubjectID:           req.SubjectID,
		IdempotencyKey:      c.Get("Idempotency-Key"),
		SourceWalletID:      c.Params("walletId"),
		DestinationWalletID: req.DestinationWalletID,
		Destination:         req.Destination,
		Method:              Method(req.Method),
		Amount:              req.Amount,
		VerificationTokenID: req.VerificationToken,
	})
}

func (h *Handler) redeem(c *fiber.Ctx, req Request) error {
	tx, err := h.service.Redeem(c.UserContext(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrBadRequest):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrInFlight):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, "redemption unavailable")
		}
	}

	status := http.StatusCreated
	if tx.Status == StatusFailed {
		status = http.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(toResponse(tx))
}

// Get returns the recorded outcome for an idempotency key.
func (h *Handler) Get(c *fiber.Ctx) error {
	tx, err := h.service.Get(c.UserContext(), c.Params("transactionId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, "lookup failed")
	}
	return c.Status(http.StatusOK).JSON(toResponse(tx))
}

func toResponse(tx Transaction) transactionResponse {
	return transactionResponse{
		TransactionID: tx.ID,
		Status:        string(tx.Status),
		Method:        string(tx.Method),
		Amount:        tx.Amount,
		FailureReason: tx.FailureReason,
		RailReference: tx.RailReference,
		CreatedAt:     tx.CreatedAt,
		CompletedAt:   tx.CompletedAt,
	}
}
