package fraud

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stayloop/stayloop-backend/internal/domain/errors"
)

// service implements the Service interface
type service struct {
	behavior    BehaviorStore
	instruments InstrumentReader
	audit       AuditLog
	feedback    FeedbackStore
	cfg         *Config
	logger      *zap.Logger
	tracer      trace.Tracer
}

// NewService creates a new fraud detection service
func NewService(
	behavior BehaviorStore,
	instruments InstrumentReader,
	audit AuditLog,
	feedback FeedbackStore,
	cfg *Config,
	logger *zap.Logger,
) Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &service{
		behavior:    behavior,
		instruments: instruments,
		audit:       audit,
		feedback:    feedback,
		cfg:         cfg,
		logger:      logger,
		tracer:      otel.Tracer("service.fraud"),
	}
}

// AnalyzeTransaction runs all six risk signals and combines them into a
// blocking decision. It never propagates a failure to the caller: an outage
// in the detection path degrades to a manual-review advisory instead of
// blocking every transaction or silently approving everything.
func (s *service) AnalyzeTransaction(ctx context.Context, txn *TransactionContext) (result *FraudCheckResult) {
	ctx, span := s.tracer.Start(ctx, "fraud.analyze_transaction",
		trace.WithAttributes(attribute.String("actor_id", txn.ActorID.String())))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("fraud analysis panicked",
				zap.Any("panic", r),
				zap.String("actor_id", txn.ActorID.String()))
			result = s.fallbackResult(txn)
		}
	}()

	profileCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	profile, err := s.behavior.GetBehaviorSnapshot(profileCtx, txn.ActorID)
	cancel()
	if err != nil {
		s.logger.Error("behavior profile lookup failed",
			zap.String("actor_id", txn.ActorID.String()),
			zap.Error(err))
		span.RecordError(err)
		return s.fallbackResult(txn)
	}

	findings := []RiskFinding{
		s.amountRisk(txn, profile),
		s.frequencyRisk(ctx, txn),
		s.verificationRisk(profile),
		s.instrumentRisk(ctx, txn),
		s.geographicRisk(txn),
		s.behaviorRisk(profile),
	}

	score := 0
	flags := make([]string, 0, 8)
	seen := make(map[string]struct{})
	for _, f := range findings {
		score += f.Score
		for _, flag := range f.Flags {
			if _, ok := seen[flag]; ok {
				continue
			}
			seen[flag] = struct{}{}
			flags = append(flags, flag)
		}
	}

	if score > MaxRiskScore {
		score = MaxRiskScore
	}

	result = &FraudCheckResult{
		ID:            uuid.New(),
		TransactionID: txn.TransactionID,
		ActorID:       txn.ActorID,
		RiskScore:     score,
		RiskLevel:     classifyRiskLevel(score),
		Flags:         flags,
		Timestamp:     time.Now().UTC(),
	}

	if score >= ThresholdHigh {
		result.Recommendations = append(result.Recommendations, "require additional verification")
	}
	if score >= ThresholdCritical {
		result.Recommendations = append(result.Recommendations,
			"manual review",
			"consider phone verification")
	}
	if score >= ThresholdBlock {
		result.Blocked = true
		result.Reason = "transaction blocked - contact customer"
		result.Recommendations = append(result.Recommendations, result.Reason)
	}

	span.SetAttributes(
		attribute.Int("risk_score", score),
		attribute.String("risk_level", string(result.RiskLevel)),
		attribute.Bool("blocked", result.Blocked))

	s.logger.Info("fraud check completed",
		zap.String("actor_id", txn.ActorID.String()),
		zap.String("amount", txn.Amount.String()),
		zap.Int("risk_score", score),
		zap.String("risk_level", string(result.RiskLevel)),
		zap.Strings("flags", flags),
		zap.Bool("blocked", result.Blocked))

	// Best effort: losing the audit record must not fail the check
	if s.audit != nil {
		if err := s.audit.RecordFraudCheck(ctx, txn, result); err != nil {
			s.logger.Warn("fraud audit write failed",
				zap.String("actor_id", txn.ActorID.String()),
				zap.Error(err))
		}
	}

	return result
}

// ReportFalsePositive annotates a prior check that turned out clean
func (s *service) ReportFalsePositive(ctx context.Context, transactionID uuid.UUID, note string) error {
	return s.saveFeedback(ctx, &Feedback{
		ID:            uuid.New(),
		TransactionID: transactionID,
		Kind:          FeedbackFalsePositive,
		Note:          note,
		ReportedAt:    time.Now().UTC(),
	})
}

// ReportConfirmedFraud annotates a prior check confirmed as fraud
func (s *service) ReportConfirmedFraud(ctx context.Context, transactionID uuid.UUID, fraudType, note string) error {
	if fraudType == "" {
		return errors.NewValidationError("INVALID_FRAUD_TYPE", "fraud type cannot be empty")
	}

	return s.saveFeedback(ctx, &Feedback{
		ID:            uuid.New(),
		TransactionID: transactionID,
		Kind:          FeedbackConfirmedFraud,
		FraudType:     fraudType,
		Note:          note,
		ReportedAt:    time.Now().UTC(),
	})
}

func (s *service) saveFeedback(ctx context.Context, fb *Feedback) error {
	if err := s.feedback.SaveFeedback(ctx, fb); err != nil {
		return errors.NewInternalError("failed to save fraud feedback").WithCause(err)
	}

	s.logger.Info("fraud feedback recorded",
		zap.String("transaction_id", fb.TransactionID.String()),
		zap.String("kind", string(fb.Kind)))
	return nil
}

// fallbackResult is the fixed fail-safe-to-review outcome: medium risk,
// never blocking, flagged so operators can see the detection path was down.
func (s *service) fallbackResult(txn *TransactionContext) *FraudCheckResult {
	return &FraudCheckResult{
		ID:              uuid.New(),
		TransactionID:   txn.TransactionID,
		ActorID:         txn.ActorID,
		RiskScore:       50,
		RiskLevel:       RiskLevelMedium,
		Flags:           []string{FlagDetectionError},
		Recommendations: []string{"manual review"},
		Blocked:         false,
		Timestamp:       time.Now().UTC(),
	}
}

func classifyRiskLevel(score int) RiskLevel {
	switch {
	case score >= ThresholdCritical:
		return RiskLevelCritical
	case score >= ThresholdHigh:
		return RiskLevelHigh
	case score >= ThresholdMedium:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}
