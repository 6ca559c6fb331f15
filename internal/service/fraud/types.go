package fraud

import (
	"time"

	"github.com/google/uuid"

	"github.com/stayloop/stayloop-backend/internal/domain/values"
)

// RiskLevel classifies a final risk score
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// Diagnostic flag codes. These are labels, not identifiers; the same code may
// be produced by more than one evaluator and duplicates are collapsed in the
// final result.
const (
	FlagLargeTransaction     = "large-transaction"
	FlagAmountRatioHigh      = "amount-ratio-high"
	FlagAmountRatioElevated  = "amount-ratio-elevated"
	FlagRoundAmount          = "round-amount"
	FlagHighFrequency        = "high-frequency"
	FlagElevatedFrequency    = "elevated-frequency"
	FlagHighRecentVolume     = "high-recent-volume"
	FlagNewAccount           = "new-account"
	FlagRecentAccount        = "recent-account"
	FlagEmailUnverified      = "email-unverified"
	FlagPhoneUnverified      = "phone-unverified"
	FlagIdentityUnverified   = "identity-unverified"
	FlagNewInstrument        = "new-payment-instrument"
	FlagInstrumentUnverified = "instrument-unverified"
	FlagHighRiskRegion       = "high-risk-region"
	FlagHighFailureRate      = "high-failure-rate"
	FlagElevatedFailureRate  = "elevated-failure-rate"
	FlagChargebackHistory    = "chargeback-history"
	FlagFirstTransaction     = "first-transaction"
	FlagDetectionError       = "fraud-detection-error"
)

// TransactionContext is the immutable input to a fraud check, constructed
// once per transaction attempt.
type TransactionContext struct {
	TransactionID uuid.UUID    `json:"transaction_id"`
	ActorID       uuid.UUID    `json:"actor_id"`
	CounterpartID *uuid.UUID   `json:"counterpart_id,omitempty"`
	Amount        values.Money `json:"amount"`
	InstrumentID  uuid.UUID    `json:"instrument_id"`
	IPAddress     string       `json:"ip_address,omitempty"`
	UserAgent     string       `json:"user_agent,omitempty"`
	BillingRegion string       `json:"billing_region,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// ActorBehaviorProfile is a read-only snapshot of an actor's history,
// recomputed from the transaction log on every scoring call. Never mutated
// in place.
type ActorBehaviorProfile struct {
	ActorID           uuid.UUID    `json:"actor_id"`
	AccountAgeDays    int          `json:"account_age_days"`
	TransactionCount  int          `json:"transaction_count"`
	MeanAmount        values.Money `json:"mean_amount"`
	FailedCount       int          `json:"failed_count"`
	ChargebackCount   int          `json:"chargeback_count"`
	EmailVerified     bool         `json:"email_verified"`
	PhoneVerified     bool         `json:"phone_verified"`
	IdentityVerified  bool         `json:"identity_verified"`
	LastTransactionAt *time.Time   `json:"last_transaction_at,omitempty"`
}

// FailureRate returns failed/total, or 0 with no history
func (p *ActorBehaviorProfile) FailureRate() float64 {
	if p.TransactionCount == 0 {
		return 0
	}
	return float64(p.FailedCount) / float64(p.TransactionCount)
}

// IsFirstTransaction reports whether the actor has no prior transactions
func (p *ActorBehaviorProfile) IsFirstTransaction() bool {
	return p.TransactionCount == 0
}

// RiskFinding is the (score, flags) output of one evaluator
type RiskFinding struct {
	Score int      `json:"score"`
	Flags []string `json:"flags"`
}

func (f *RiskFinding) add(points int, flag string) {
	f.Score += points
	f.Flags = append(f.Flags, flag)
}

// RecentActivity summarizes an actor's transactions inside a trailing window
type RecentActivity struct {
	Count int
	Total values.Money
}

// PaymentInstrument is the read-only view of a stored payment instrument
type PaymentInstrument struct {
	ID        uuid.UUID `json:"id"`
	ActorID   uuid.UUID `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
	Verified  bool      `json:"verified"`
}

// FraudCheckResult is the sole outcome of a scoring call. It is transient:
// only the audit record derived from it is persisted.
type FraudCheckResult struct {
	ID              uuid.UUID `json:"id"`
	TransactionID   uuid.UUID `json:"transaction_id"`
	ActorID         uuid.UUID `json:"actor_id"`
	RiskScore       int       `json:"risk_score"`
	RiskLevel       RiskLevel `json:"risk_level"`
	Flags           []string  `json:"flags"`
	Recommendations []string  `json:"recommendations"`
	Blocked         bool      `json:"blocked"`
	Reason          string    `json:"reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// FeedbackKind distinguishes the two feedback hooks
type FeedbackKind string

const (
	FeedbackFalsePositive  FeedbackKind = "false_positive"
	FeedbackConfirmedFraud FeedbackKind = "confirmed_fraud"
)

// Feedback is an append-only annotation on a prior fraud check, kept for
// future tuning only; nothing in this core reads it back.
type Feedback struct {
	ID            uuid.UUID    `json:"id"`
	TransactionID uuid.UUID    `json:"transaction_id"`
	Kind          FeedbackKind `json:"kind"`
	FraudType     string       `json:"fraud_type,omitempty"`
	Note          string       `json:"note,omitempty"`
	ReportedAt    time.Time    `json:"reported_at"`
}
