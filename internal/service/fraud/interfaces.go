package fraud

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service is the fraud detection entry point exposed to the rest of the
// application.
type Service interface {
	// AnalyzeTransaction scores a transaction attempt. It never fails: any
	// internal error degrades to a medium-risk, non-blocking result flagged
	// fraud-detection-error.
	AnalyzeTransaction(ctx context.Context, txn *TransactionContext) *FraudCheckResult

	// ReportFalsePositive annotates a prior check that turned out clean
	ReportFalsePositive(ctx context.Context, transactionID uuid.UUID, note string) error

	// ReportConfirmedFraud annotates a prior check confirmed as fraud
	ReportConfirmedFraud(ctx context.Context, transactionID uuid.UUID, fraudType, note string) error
}

// BehaviorStore reads an actor's transaction history
type BehaviorStore interface {
	// GetBehaviorSnapshot recomputes the actor's profile from stored history
	GetBehaviorSnapshot(ctx context.Context, actorID uuid.UUID) (*ActorBehaviorProfile, error)

	// GetRecentActivity counts and sums the actor's transactions at or after
	// the given instant
	GetRecentActivity(ctx context.Context, actorID uuid.UUID, since time.Time) (*RecentActivity, error)
}

// InstrumentReader looks up a stored payment instrument
type InstrumentReader interface {
	GetInstrument(ctx context.Context, id uuid.UUID) (*PaymentInstrument, error)
}

// AuditLog receives the best-effort audit record appended after every check
type AuditLog interface {
	RecordFraudCheck(ctx context.Context, txn *TransactionContext, result *FraudCheckResult) error
}

// FeedbackStore persists append-only feedback annotations
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, fb *Feedback) error
}
