package fraud

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stayloop/stayloop-backend/internal/domain/values"
)

// The six risk signals. Each returns an independent finding; scores are
// additive and flags may repeat across signals.

// amountRisk scores the absolute amount, its ratio to the actor's mean, and
// the round-number heuristic.
func (s *service) amountRisk(txn *TransactionContext, profile *ActorBehaviorProfile) RiskFinding {
	var f RiskFinding

	amount := txn.Amount.Abs()
	large := values.MustNewMoneyFromFloat(s.cfg.LargeAmount, amount.Currency())
	if amount.GreaterThan(large) {
		f.add(s.cfg.Weights.LargeTransaction, FlagLargeTransaction)
	}

	// Ratio check only applies once the actor has history
	if profile.MeanAmount.IsPositive() {
		ratio, _ := amount.Ratio(profile.MeanAmount).Float64()
		if ratio > s.cfg.RatioHigh {
			f.add(s.cfg.Weights.AmountRatioHigh, FlagAmountRatioHigh)
		} else if ratio > s.cfg.RatioElevated {
			f.add(s.cfg.Weights.AmountRatioElevated, FlagAmountRatioElevated)
		}
	}

	min := values.MustNewMoneyFromFloat(s.cfg.RoundAmountMin, amount.Currency())
	if amount.IsExactMultipleOf(s.cfg.RoundAmountOf) && amount.GreaterThanOrEqual(min) {
		f.add(s.cfg.Weights.RoundAmount, FlagRoundAmount)
	}

	return f
}

// frequencyRisk counts the actor's transactions in the trailing window. The
// lookup is I/O; on failure the signal degrades to a zero finding rather
// than blocking the check.
func (s *service) frequencyRisk(ctx context.Context, txn *TransactionContext) RiskFinding {
	var f RiskFinding

	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	since := time.Now().Add(-s.cfg.FrequencyWindow)
	activity, err := s.behavior.GetRecentActivity(ctx, txn.ActorID, since)
	if err != nil {
		s.logger.Warn("frequency signal degraded",
			zap.String("actor_id", txn.ActorID.String()),
			zap.Error(err))
		return RiskFinding{}
	}

	if activity.Count >= s.cfg.FrequencyHighCount {
		f.add(s.cfg.Weights.HighFrequency, FlagHighFrequency)
	} else if activity.Count >= s.cfg.FrequencyElevatedCount {
		f.add(s.cfg.Weights.ElevatedFrequency, FlagElevatedFrequency)
	}

	volume := values.MustNewMoneyFromFloat(s.cfg.RecentVolumeThreshold, activity.Total.Currency())
	if activity.Total.GreaterThan(volume) {
		f.add(s.cfg.Weights.HighRecentVolume, FlagHighRecentVolume)
	}

	return f
}

// verificationRisk scores account age and the three verification flags.
// All four checks are independent and additive.
func (s *service) verificationRisk(profile *ActorBehaviorProfile) RiskFinding {
	var f RiskFinding

	if profile.AccountAgeDays < s.cfg.NewAccountDays {
		f.add(s.cfg.Weights.NewAccount, FlagNewAccount)
	} else if profile.AccountAgeDays < s.cfg.RecentAccountDays {
		f.add(s.cfg.Weights.RecentAccount, FlagRecentAccount)
	}

	if !profile.EmailVerified {
		f.add(s.cfg.Weights.EmailUnverified, FlagEmailUnverified)
	}
	if !profile.PhoneVerified {
		f.add(s.cfg.Weights.PhoneUnverified, FlagPhoneUnverified)
	}
	if !profile.IdentityVerified {
		f.add(s.cfg.Weights.IdentityUnverified, FlagIdentityUnverified)
	}

	return f
}

// instrumentRisk looks up the payment instrument's age and verification
// state. A missing or unreadable record yields a zero finding; this single
// signal fails open.
func (s *service) instrumentRisk(ctx context.Context, txn *TransactionContext) RiskFinding {
	var f RiskFinding

	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	instrument, err := s.instruments.GetInstrument(ctx, txn.InstrumentID)
	if err != nil {
		s.logger.Warn("instrument signal degraded",
			zap.String("instrument_id", txn.InstrumentID.String()),
			zap.Error(err))
		return RiskFinding{}
	}

	if time.Since(instrument.CreatedAt) < s.cfg.NewInstrumentAge {
		f.add(s.cfg.Weights.NewInstrument, FlagNewInstrument)
	}
	if !instrument.Verified {
		f.add(s.cfg.Weights.InstrumentUnverified, FlagInstrumentUnverified)
	}

	return f
}

// geographicRisk flags billing regions on the fixed high-risk list.
// IP geolocation and proxy detection are deliberately not implemented.
func (s *service) geographicRisk(txn *TransactionContext) RiskFinding {
	var f RiskFinding

	if txn.BillingRegion == "" {
		return f
	}

	for _, region := range s.cfg.HighRiskRegions {
		if txn.BillingRegion == region {
			f.add(s.cfg.Weights.HighRiskRegion, FlagHighRiskRegion)
			break
		}
	}

	return f
}

// behaviorRisk scores the actor's historical failure rate and chargebacks.
// A missing history is itself a weak signal: the first-ever transaction
// scores a flat amount.
func (s *service) behaviorRisk(profile *ActorBehaviorProfile) RiskFinding {
	var f RiskFinding

	if profile.TransactionCount > 0 {
		rate := profile.FailureRate()
		if rate > s.cfg.FailureRateHigh {
			f.add(s.cfg.Weights.HighFailureRate, FlagHighFailureRate)
		} else if rate > s.cfg.FailureRateElevated {
			f.add(s.cfg.Weights.ElevatedFailureRate, FlagElevatedFailureRate)
		}
	}

	if profile.ChargebackCount > 0 {
		f.add(s.cfg.Weights.ChargebackHistory, FlagChargebackHistory)
	}

	if profile.IsFirstTransaction() {
		f.add(s.cfg.Weights.FirstTransaction, FlagFirstTransaction)
	}

	return f
}
