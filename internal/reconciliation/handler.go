package reconciliation

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/redemption"
)

// Handler exposes the trust account admin endpoints.
type Handler struct {
	engine      *Engine
	redemptions *redemption.Service
}

// NewHandler constructs a reconciliation HTTP handler.
func NewHandler(engine *Engine, redemptions *redemption.Service) *Handler {
	return &Handler{engine: engine, redemptions: redemptions}
}

type recordResponse struct {
	Date             string  `json:"date"`
	TrustBalance     int64   `json:"trust_balance"`
	Liabilities      int64   `json:"liabilities"`
	CoverageRatio    float64 `json:"coverage_ratio"`
	DeficiencyAmount int64   `json:"deficiency_amount"`
	Status           string  `json:"status"`
	ReconciledBy     string  `json:"reconciled_by"`
	StaleReads       bool    `json:"stale_reads"`
}

type statusResponse struct {
	IsCompliant            bool             `json:"is_compliant"`
	CoverageRatio          float64          `json:"coverage_ratio"`
	DeficiencyAmount       int64            `json:"deficiency_amount"`
	LastReconciliationDate string           `json:"last_reconciliation_date"`
	History                []recordResponse `json:"history"`
	RecentTransactions     []recentTx       `json:"recent_transactions"`
}

type recentTx struct {
	TransactionID string `json:"transaction_id"`
	Method        string `json:"method"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
}

// Status reports current coverage plus recent history. It is a pure read and
// never triggers a reconciliation run.
func (h *Handler) Status(c *fiber.Ctx) error {
	days := 30
	if v := c.Query("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 365 {
			return fiber.NewError(http.StatusBadRequest, "days must be between 1 and 365")
		}
		days = parsed
	}

	summary, err := h.engine.Status(c.UserContext())
	if err != nil {
		if errors.Is(err, ErrNoRecords) {
			return fiber.NewError(http.StatusNotFound, "no reconciliation has run yet")
		}
		return fiber.NewError(http.StatusInternalServerError, "status unavailable")
	}

	history, err := h.engine.History(c.UserContext(), days)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "history unavailable")
	}

	recent, err := h.redemptions.Recent(c.UserContext(), 20)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "transaction list unavailable")
	}

	resp := statusResponse{
		IsCompliant:            summary.IsCompliant,
		CoverageRatio:          summary.CoverageRatio,
		DeficiencyAmount:       summary.DeficiencyAmount,
		LastReconciliationDate: summary.LastReconciliationDate.Format("2006-01-02"),
		History:                make([]recordResponse, 0, len(history)),
		RecentTransactions:     make([]recentTx, 0, len(recent)),
	}
	for _, rec := range history {
		resp.History = append(resp.History, toRecordResponse(rec))
	}
	for _, tx := range recent {
		resp.RecentTransactions = append(resp.RecentTransactions, recentTx{
			TransactionID: tx.ID,
			Method:        string(tx.Method),
			Amount:        tx.Amount,
			Status:        string(tx.Status),
			CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
		})
	}
	return c.Status(http.StatusOK).JSON(resp)
}

type reconcileRequest struct {
	// TrustAccountBalance is the operator-entered bank statement figure in
	// minor units; nil lets the engine read the trust balance provider.
	TrustAccountBalance *int64 `json:"trust_account_balance"`
	ReconciledBy        string `json:"reconciled_by"`
}

// Reconcile runs a reconciliation now and returns the recorded outcome.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	var req reconcileRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	if req.TrustAccountBalance != nil && *req.TrustAccountBalance < 0 {
		return fiber.NewError(http.StatusBadRequest, "trust_account_balance must not be negative")
	}

	reconciledBy := req.ReconciledBy
	if reconciledBy == "" {
		reconciledBy, _ = c.Locals("operator_id").(string)
	}
	if reconciledBy == "" {
		reconciledBy = "system"
	}

	rec, err := h.engine.Run(c.UserContext(), RunInput{
		AsOf:         time.Now().UTC(),
		ReconciledBy: reconciledBy,
		TrustBalance: req.TrustAccountBalance,
	})
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "reconciliation failed")
	}
	return c.Status(http.StatusCreated).JSON(toRecordResponse(rec))
}

func toRecordResponse(rec Record) recordResponse {
	return recordResponse{
		Date:             rec.Date.Format("2006-01-02"),
		TrustBalance:     rec.TrustBalance,
		Liabilities:      rec.Liabilities,
		CoverageRatio:    rec.CoverageRatio,
		DeficiencyAmount: rec.DeficiencyAmount,
		Status:           string(rec.Status),
		ReconciledBy:     rec.ReconciledBy,
		StaleReads:       rec.StaleReads,
	}
}
