package security

import (
	"context"

	"github.com/stayloop/stayloop-backend/internal/domain/security"
	"github.com/stayloop/stayloop-backend/internal/service/fraud"
)

// FraudAuditLog adapts the security event log into the fraud scorer's audit
// sink: every completed check lands in the event store as a FRAUD_CHECK
// event. FRAUD_CHECK is not in the pattern catalog, so audit writes never
// trigger the monitor.
type FraudAuditLog struct {
	events Service
}

// NewFraudAuditLog creates the audit adapter
func NewFraudAuditLog(events Service) *FraudAuditLog {
	return &FraudAuditLog{events: events}
}

// RecordFraudCheck appends the audit event for a completed check
func (a *FraudAuditLog) RecordFraudCheck(ctx context.Context, txn *fraud.TransactionContext, result *fraud.FraudCheckResult) error {
	severity := security.SeverityLow
	switch result.RiskLevel {
	case fraud.RiskLevelMedium:
		severity = security.SeverityMedium
	case fraud.RiskLevelHigh:
		severity = security.SeverityHigh
	case fraud.RiskLevelCritical:
		severity = security.SeverityCritical
	}

	event := security.NewEvent(security.EventFraudCheck, severity, security.EventDetails{
		FraudCheck: &security.FraudCheckDetails{
			ActorID:   txn.ActorID,
			Amount:    txn.Amount.String(),
			RiskScore: result.RiskScore,
			RiskLevel: string(result.RiskLevel),
			Flags:     result.Flags,
			Blocked:   result.Blocked,
		},
	}).WithActor(txn.ActorID).WithOrigin(txn.IPAddress, txn.UserAgent)

	return a.events.LogEvent(ctx, event)
}
