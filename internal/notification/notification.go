package notification

import (
	"context"
	"log/slog"
)

const (
	// KindDormancyWarning tells a customer their wallet is a month from dormancy.
	KindDormancyWarning = "dormancy_warning"
	// KindFundsReleased tells a customer held funds were returned.
	KindFundsReleased = "funds_released"
	// KindDeficiencyAlert pages operators about a trust account shortfall.
	KindDeficiencyAlert = "trust_deficiency_alert"
	// KindIntegrityAlert pages operators about a halted wallet.
	KindIntegrityAlert = "integrity_alert"
	// KindAuditFailure is the secondary path when the audit store is down;
	// losing audit coverage is itself a compliance event.
	KindAuditFailure = "audit_store_failure"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems (push/SMS dispatch is
// an external collaborator; implementations here only hand off).
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
