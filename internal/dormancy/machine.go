package dormancy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/audit"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/notification"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/rail"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/wallet"
)

// Machine drives the per-wallet dormancy lifecycle
// Active → Warned → Dormant → Held → Released|Escheated.
// Transitions are strictly forward within a cycle and at most one fires per
// wallet per daily run, so re-running a day never double-fires.
type Machine struct {
	wallets       wallet.Repository
	notifications NotificationRepository
	reports       ReportRepository
	audit         *audit.Recorder
	notifier      notification.Notifier
	rail          rail.Rail

	thresholds      Thresholds
	upstreamTimeout time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

// NewMachine constructs a dormancy state machine.
func NewMachine(wallets wallet.Repository, notifications NotificationRepository, reports ReportRepository,
	recorder *audit.Recorder, notifier notification.Notifier, railConn rail.Rail,
	thresholds Thresholds, upstreamTimeout time.Duration, logger *slog.Logger) *Machine {
	return &Machine{
		wallets:         wallets,
		notifications:   notifications,
		reports:         reports,
		audit:           recorder,
		notifier:        notifier,
		rail:            railConn,
		thresholds:      thresholds,
		upstreamTimeout: upstreamTimeout,
		logger:          logger,
		now:             time.Now,
	}
}

// Thresholds returns the configured lifecycle boundaries.
func (m *Machine) Thresholds() Thresholds {
	return m.thresholds
}

// RunDailyProcessing scans wallets crossing a threshold and applies the single
// applicable transition per wallet. Buckets run latest-stage first so a wallet
// transitioned this run is never picked up again by a later bucket.
func (m *Machine) RunDailyProcessing(ctx context.Context) (ProcessingCounts, error) {
	var counts ProcessingCounts
	now := m.now().UTC()

	if err := m.resolveHeld(ctx, now, &counts); err != nil {
		return counts, err
	}
	if err := m.holdExpired(ctx, now, &counts); err != nil {
		return counts, err
	}
	if err := m.markDormant(ctx, now, &counts); err != nil {
		return counts, err
	}
	if err := m.warn(ctx, now, &counts); err != nil {
		return counts, err
	}
	return counts, nil
}

// warn moves Active wallets past the warning threshold to Warned and sends the
// single per-cycle notification.
func (m *Machine) warn(ctx context.Context, now time.Time, counts *ProcessingCounts) error {
	cutoff := now.AddDate(0, 0, -m.thresholds.WarningDays)
	candidates, err := m.wallets.ListInactiveSince(ctx, []wallet.DormancyState{wallet.StateActive}, cutoff)
	if err != nil {
		return fmt.Errorf("list warning candidates: %w", err)
	}
	for _, w := range candidates {
		if w.WarningSentAt != nil || w.Balance <= 0 {
			continue
		}
		sentAt := now
		w.DormancyState = wallet.StateWarned
		w.WarningSentAt = &sentAt
		if err := m.transition(ctx, w, wallet.StateActive, wallet.StateWarned); err != nil {
			continue
		}
		if err := m.notifications.Record(ctx, Notification{
			WalletID:            w.ID,
			SentAt:              sentAt,
			ThresholdDaysAtSend: m.thresholds.DormancyDays,
		}); err != nil {
			m.logger.Error("record dormancy notification", "wallet", w.ID, "error", err)
		}
		daysLeft := m.thresholds.DormancyDays - m.thresholds.WarningDays
		if err := m.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindDormancyWarning,
			Destination: w.OwnerID,
			Body:        fmt.Sprintf("Your wallet will become dormant in %d days unless a transaction is made.", daysLeft),
		}); err != nil {
			m.logger.Error("dormancy warning not delivered", "wallet", w.ID, "error", err)
		}
		counts.Warned++
	}
	return nil
}

// markDormant moves Warned wallets past the dormancy threshold to Dormant.
// Fee suppression starts here; the owner keeps full redemption access.
func (m *Machine) markDormant(ctx context.Context, now time.Time, counts *ProcessingCounts) error {
	cutoff := now.AddDate(0, 0, -m.thresholds.DormancyDays)
	candidates, err := m.wallets.ListInactiveSince(ctx, []wallet.DormancyState{wallet.StateWarned}, cutoff)
	if err != nil {
		return fmt.Errorf("list dormancy candidates: %w", err)
	}
	for _, w := range candidates {
		dormantSince := now
		w.DormancyState = wallet.StateDormant
		w.DormantSince = &dormantSince
		if err := m.transition(ctx, w, wallet.StateWarned, wallet.StateDormant); err != nil {
			continue
		}
		counts.Dormant++
	}
	return nil
}

// holdExpired earmarks long-dormant funds for recovery. Outbound movement is
// frozen from here apart from the recovery routes.
func (m *Machine) holdExpired(ctx context.Context, now time.Time, counts *ProcessingCounts) error {
	cutoff := now.AddDate(0, 0, -m.thresholds.HoldDays)
	candidates, err := m.wallets.ListInactiveSince(ctx, []wallet.DormancyState{wallet.StateDormant}, cutoff)
	if err != nil {
		return fmt.Errorf("list hold candidates: %w", err)
	}
	for _, w := range candidates {
		if w.Balance <= 0 {
			continue
		}
		heldSince := now
		w.DormancyState = wallet.StateHeld
		w.HeldSince = &heldSince
		if err := m.transition(ctx, w, wallet.StateDormant, wallet.StateHeld); err != nil {
			continue
		}
		counts.Held++
	}
	return nil
}

// resolveHeld releases held funds through the best available route, or
// escheats them when the hold period elapses with no route resolved.
func (m *Machine) resolveHeld(ctx context.Context, now time.Time, counts *ProcessingCounts) error {
	held, err := m.wallets.ListByState(ctx, wallet.StateHeld)
	if err != nil {
		return fmt.Errorf("list held wallets: %w", err)
	}
	escheatCutoff := now.AddDate(0, 0, -m.thresholds.HoldDays)
	for _, w := range held {
		if w.PrimaryBankAccount != "" {
			if m.release(ctx, w) {
				counts.Released++
			}
			continue
		}
		if w.HeldSince != nil && !w.HeldSince.After(escheatCutoff) {
			if m.escheat(ctx, w) {
				counts.Escheated++
			}
		}
	}
	return nil
}

// release returns held funds to the wallet's primary bank account. A rail
// failure leaves the wallet Held for the next run; funds only leave the book
// after the rail accepted the payout.
func (m *Machine) release(ctx context.Context, w wallet.Wallet) bool {
	railCtx, cancel := context.WithTimeout(ctx, m.upstreamTimeout)
	defer cancel()
	receipt, err := m.rail.Execute(railCtx, rail.Payout{
		Method:      ReleaseToBankAccount,
		Destination: w.PrimaryBankAccount,
		Amount:      w.Balance,
		Currency:    w.Currency,
		Reference:   "dormancy-release:" + w.ID,
	})
	if err != nil {
		m.logger.Warn("held funds release deferred, rail unavailable", "wallet", w.ID, "error", err)
		return false
	}

	amount := w.Balance
	w.Balance = 0
	w.DormancyState = wallet.StateReleased
	if err := m.transitionWithPayload(ctx, w, wallet.StateHeld, wallet.StateReleased, map[string]any{
		"amount":         amount,
		"release_method": ReleaseToBankAccount,
		"rail_reference": receipt.Reference,
	}); err != nil {
		return false
	}
	if err := m.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindFundsReleased,
		Destination: w.OwnerID,
		Body:        fmt.Sprintf("Dormant wallet funds of %d minor units were returned to your bank account.", amount),
	}); err != nil {
		m.logger.Error("funds released notice not delivered", "wallet", w.ID, "error", err)
	}
	return true
}

// escheat moves unresolved held funds to the legal holding process.
func (m *Machine) escheat(ctx context.Context, w wallet.Wallet) bool {
	railCtx, cancel := context.WithTimeout(ctx, m.upstreamTimeout)
	defer cancel()
	receipt, err := m.rail.Execute(railCtx, rail.Payout{
		Method:      ReleaseToHolding,
		Destination: "escheatment-holding",
		Amount:      w.Balance,
		Currency:    w.Currency,
		Reference:   "dormancy-escheat:" + w.ID,
	})
	if err != nil {
		m.logger.Warn("escheatment deferred, rail unavailable", "wallet", w.ID, "error", err)
		return false
	}

	amount := w.Balance
	w.Balance = 0
	w.DormancyState = wallet.StateEscheated
	if err := m.transitionWithPayload(ctx, w, wallet.StateHeld, wallet.StateEscheated, map[string]any{
		"amount":         amount,
		"release_method": ReleaseToHolding,
		"rail_reference": receipt.Reference,
	}); err != nil {
		return false
	}
	return true
}

func (m *Machine) transition(ctx context.Context, w wallet.Wallet, from, to wallet.DormancyState) error {
	return m.transitionWithPayload(ctx, w, from, to, nil)
}

// transitionWithPayload writes the wallet under its version guard and records
// the dormancy event. A version conflict means the wallet moved under us
// (e.g. a customer transaction reactivated it); the transition is dropped.
func (m *Machine) transitionWithPayload(ctx context.Context, w wallet.Wallet, from, to wallet.DormancyState, extra map[string]any) error {
	if err := m.wallets.Update(ctx, w); err != nil {
		m.logger.Warn("dormancy transition skipped", "wallet", w.ID, "from", from, "to", to, "error", err)
		return err
	}
	payload := map[string]any{
		"wallet_id": w.ID,
		"from":      string(from),
		"to":        string(to),
		"balance":   w.Balance,
	}
	for k, v := range extra {
		payload[k] = v
	}
	m.audit.Record(ctx, audit.Entry{
		Type:    audit.TypeDormancyTransition,
		Actor:   "dormancy-machine",
		Payload: payload,
		Result:  string(to),
	})
	return nil
}

// GenerateMonthlyReport aggregates the month's dormancy figures. It recomputes
// from current wallet state and the audit event log; regenerating a month
// overwrites rather than double-counts.
func (m *Machine) GenerateMonthlyReport(ctx context.Context, month string) (Report, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return Report{}, fmt.Errorf("invalid month %q: %w", month, err)
	}
	end := start.AddDate(0, 1, 0)

	rep := Report{Month: month, GeneratedAt: m.now().UTC()}

	for _, state := range []wallet.DormancyState{wallet.StateDormant, wallet.StateHeld} {
		wallets, err := m.wallets.ListByState(ctx, state)
		if err != nil {
			return Report{}, err
		}
		for _, w := range wallets {
			rep.DormantCount++
			rep.DormantValue += w.Balance
		}
	}

	events, err := m.audit.List(ctx, audit.TypeDormancyTransition, start, end)
	if err != nil {
		return Report{}, err
	}
	for _, e := range events {
		to, _ := e.Payload["to"].(string)
		amount := payloadAmount(e.Payload)
		switch wallet.DormancyState(to) {
		case wallet.StateReleased:
			rep.ReleasedCount++
			rep.ReleasedValue += amount
		case wallet.StateEscheated:
			rep.EscheatedCount++
			rep.EscheatedValue += amount
		}
	}

	if err := m.reports.UpsertByMonth(ctx, rep); err != nil {
		return Report{}, err
	}
	return rep, nil
}

// GetReport returns a previously generated monthly report.
func (m *Machine) GetReport(ctx context.Context, month string) (Report, error) {
	return m.reports.GetByMonth(ctx, month)
}

// CheckResult summarizes the wallets approaching each boundary right now.
type CheckResult struct {
	NeedingWarning  int        `json:"needingWarning"`
	BecomingDormant int        `json:"becomingDormant"`
	PendingRelease  int        `json:"pendingRelease"`
	Thresholds      Thresholds `json:"thresholds"`
}

// Check reports the current scan results without transitioning anything.
func (m *Machine) Check(ctx context.Context) (CheckResult, error) {
	now := m.now().UTC()
	res := CheckResult{Thresholds: m.thresholds}

	warning, err := m.wallets.ListInactiveSince(ctx, []wallet.DormancyState{wallet.StateActive}, now.AddDate(0, 0, -m.thresholds.WarningDays))
	if err != nil {
		return CheckResult{}, err
	}
	for _, w := range warning {
		if w.WarningSentAt == nil && w.Balance > 0 {
			res.NeedingWarning++
		}
	}

	dormant, err := m.wallets.ListInactiveSince(ctx, []wallet.DormancyState{wallet.StateWarned}, now.AddDate(0, 0, -m.thresholds.DormancyDays))
	if err != nil {
		return CheckResult{}, err
	}
	res.BecomingDormant = len(dormant)

	held, err := m.wallets.ListByState(ctx, wallet.StateHeld)
	if err != nil {
		return CheckResult{}, err
	}
	res.PendingRelease = len(held)

	return res, nil
}

// payloadAmount tolerates JSON round-tripping of the audit payload, where
// numbers come back as float64.
func payloadAmount(payload map[string]any) int64 {
	switch v := payload["amount"].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}
