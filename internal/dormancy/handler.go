package dormancy

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the dormancy compliance endpoints.
type Handler struct {
	machine *Machine
}

// NewHandler constructs a dormancy HTTP handler.
func NewHandler(machine *Machine) *Handler {
	return &Handler{machine: machine}
}

// Inspect serves read-only dormancy views selected by the action query
// parameter: "check" scans current boundary counts, "report" fetches a stored
// monthly report.
func (h *Handler) Inspect(c *fiber.Ctx) error {
	switch c.Query("action", "check") {
	case "check":
		res, err := h.machine.Check(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "dormancy scan failed")
		}
		return c.Status(http.StatusOK).JSON(res)
	case "report":
		month := c.Query("month")
		if _, err := time.Parse("2006-01", month); err != nil {
			return fiber.NewError(http.StatusBadRequest, "month must be YYYY-MM")
		}
		rep, err := h.machine.GetReport(c.UserContext(), month)
		if err != nil {
			if errors.Is(err, ErrReportNotFound) {
				return fiber.NewError(http.StatusNotFound, err.Error())
			}
			return fiber.NewError(http.StatusInternalServerError, "report lookup failed")
		}
		return c.Status(http.StatusOK).JSON(toReportResponse(rep))
	default:
		return fiber.NewError(http.StatusBadRequest, "unknown action")
	}
}

type executeRequest struct {
	Action string `json:"action"`
	Month  string `json:"month"`
}

// Execute runs a dormancy operation: "process" performs the daily lifecycle
// pass, "generate-report" recomputes a monthly report.
func (h *Handler) Execute(c *fiber.Ctx) error {
	var req executeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	switch req.Action {
	case "process":
		counts, err := h.machine.RunDailyProcessing(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "dormancy processing failed")
		}
		return c.Status(http.StatusOK).JSON(counts)
	case "generate-report":
		if _, err := time.Parse("2006-01", req.Month); err != nil {
			return fiber.NewError(http.StatusBadRequest, "month must be YYYY-MM")
		}
		rep, err := h.machine.GenerateMonthlyReport(c.UserContext(), req.Month)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "report generation failed")
		}
		return c.Status(http.StatusCreated).JSON(toReportResponse(rep))
	default:
		return fiber.NewError(http.StatusBadRequest, "unknown action")
	}
}

type reportResponse struct {
	Month          string    `json:"month"`
	DormantCount   int64     `json:"dormant_count"`
	DormantValue   int64     `json:"dormant_value"`
	ReleasedCount  int64     `json:"released_count"`
	ReleasedValue  int64     `json:"released_value"`
	EscheatedCount int64     `json:"escheated_count"`
	EscheatedValue int64     `json:"escheated_value"`
	GeneratedAt    time.Time `json:"generated_at"`
}

func toReportResponse(rep Report) reportResponse {
	return reportResponse{
		Month:          rep.Month,
		DormantCount:   rep.DormantCount,
		DormantValue:   rep.DormantValue,
		ReleasedCount:  rep.ReleasedCount,
		ReleasedValue:  rep.ReleasedValue,
		EscheatedCount: rep.EscheatedCount,
		EscheatedValue: rep.EscheatedValue,
		GeneratedAt:    rep.GeneratedAt,
	}
}
