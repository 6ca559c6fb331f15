package security

import (
	"context"

	"go.uber.org/zap"

	"github.com/stayloop/stayloop-backend/internal/domain/security"
)

// LogNotifier writes alerts to the structured log. Stands in for the mail
// notifier in environments without an outbound channel configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendAlert logs the alert at error level so it reaches the operator feed
func (n *LogNotifier) SendAlert(_ context.Context, subject string, event *security.Event) error {
	n.logger.Error("security alert",
		zap.String("subject", subject),
		zap.String("event_type", event.EventType),
		zap.String("severity", string(event.Severity)),
		zap.String("ip", event.IPAddress))
	return nil
}
