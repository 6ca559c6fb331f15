package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func evalService(behavior BehaviorStore, instruments InstrumentReader) *service {
	return NewService(behavior, instruments, nil, nil, DefaultConfig(), zap.NewNop()).(*service)
}

func TestAmountRisk(t *testing.T) {
	tests := []struct {
		name       string
		amount     float64
		meanAmount float64
		wantScore  int
		wantFlags  []string
	}{
		{
			name:       "small amount with history",
			amount:     80,
			meanAmount: 100,
			wantScore:  0,
		},
		{
			name:       "large transaction",
			amount:     5001,
			meanAmount: 5000,
			wantScore:  20,
			wantFlags:  []string{FlagLargeTransaction},
		},
		{
			name:       "high ratio",
			amount:     501,
			meanAmount: 100,
			wantScore:  15,
			wantFlags:  []string{FlagAmountRatioHigh},
		},
		{
			name:       "elevated ratio",
			amount:     301,
			meanAmount: 100,
			wantScore:  8,
			wantFlags:  []string{FlagAmountRatioElevated},
		},
		{
			name:       "ratio at boundary does not fire",
			amount:     300,
			meanAmount: 100,
			wantScore:  0,
		},
		{
			name:       "no history skips ratio",
			amount:     900,
			meanAmount: 0,
			wantScore:  0,
		},
		{
			name:       "round amount over minimum",
			amount:     1200,
			meanAmount: 1000,
			wantScore:  5,
			wantFlags:  []string{FlagRoundAmount},
		},
		{
			name:       "round amount under minimum",
			amount:     900,
			meanAmount: 1000,
			wantScore:  0,
		},
		{
			name:       "large round high-ratio amount stacks",
			amount:     6000,
			meanAmount: 1000,
			wantScore:  40,
			wantFlags:  []string{FlagLargeTransaction, FlagAmountRatioHigh, FlagRoundAmount},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := evalService(nil, nil)
			profile := &ActorBehaviorProfile{MeanAmount: usd(tt.meanAmount)}

			f := svc.amountRisk(&TransactionContext{Amount: usd(tt.amount)}, profile)

			assert.Equal(t, tt.wantScore, f.Score)
			assert.ElementsMatch(t, tt.wantFlags, f.Flags)
		})
	}
}

func TestFrequencyRisk(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		total     float64
		wantScore int
		wantFlags []string
	}{
		{
			name:  "quiet window",
			count: 1,
			total: 50,
		},
		{
			name:      "elevated count",
			count:     3,
			total:     300,
			wantScore: 15,
			wantFlags: []string{FlagElevatedFrequency},
		},
		{
			name:      "high count",
			count:     5,
			total:     500,
			wantScore: 25,
			wantFlags: []string{FlagHighFrequency},
		},
		{
			name:      "high volume alone",
			count:     2,
			total:     2500,
			wantScore: 20,
			wantFlags: []string{FlagHighRecentVolume},
		},
		{
			name:      "high count and volume stack",
			count:     6,
			total:     3000,
			wantScore: 45,
			wantFlags: []string{FlagHighFrequency, FlagHighRecentVolume},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actorID := uuid.New()
			behavior := new(mockBehaviorStore)
			behavior.On("GetRecentActivity", mock.Anything, actorID, mock.Anything).
				Return(&RecentActivity{Count: tt.count, Total: usd(tt.total)}, nil)

			svc := evalService(behavior, nil)
			f := svc.frequencyRisk(context.Background(), &TransactionContext{ActorID: actorID})

			assert.Equal(t, tt.wantScore, f.Score)
			assert.ElementsMatch(t, tt.wantFlags, f.Flags)
		})
	}
}

func TestFrequencyRisk_StoreErrorFailsOpen(t *testing.T) {
	actorID := uuid.New()
	behavior := new(mockBehaviorStore)
	behavior.On("GetRecentActivity", mock.Anything, actorID, mock.Anything).Return(nil, assert.AnError)

	svc := evalService(behavior, nil)
	f := svc.frequencyRisk(context.Background(), &TransactionContext{ActorID: actorID})

	assert.Zero(t, f.Score)
	assert.Empty(t, f.Flags)
}

func TestVerificationRisk(t *testing.T) {
	tests := []struct {
		name      string
		profile   ActorBehaviorProfile
		wantScore int
		wantFlags []string
	}{
		{
			name: "fully verified established account",
			profile: ActorBehaviorProfile{
				AccountAgeDays: 365, EmailVerified: true, PhoneVerified: true, IdentityVerified: true,
			},
			wantScore: 0,
		},
		{
			name: "brand new account",
			profile: ActorBehaviorProfile{
				AccountAgeDays: 0, EmailVerified: true, PhoneVerified: true, IdentityVerified: true,
			},
			wantScore: 20,
			wantFlags: []string{FlagNewAccount},
		},
		{
			name: "recent account",
			profile: ActorBehaviorProfile{
				AccountAgeDays: 3, EmailVerified: true, PhoneVerified: true, IdentityVerified: true,
			},
			wantScore: 10,
			wantFlags: []string{FlagRecentAccount},
		},
		{
			name: "nothing verified",
			profile: ActorBehaviorProfile{
				AccountAgeDays: 365,
			},
			wantScore: 45,
			wantFlags: []string{FlagEmailUnverified, FlagPhoneUnverified, FlagIdentityUnverified},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := evalService(nil, nil)
			f := svc.verificationRisk(&tt.profile)

			assert.Equal(t, tt.wantScore, f.Score)
			assert.ElementsMatch(t, tt.wantFlags, f.Flags)
		})
	}
}

func TestInstrumentRisk(t *testing.T) {
	tests := []struct {
		name       string
		instrument *PaymentInstrument
		err        error
		wantScore  int
		wantFlags  []string
	}{
		{
			name:       "verified aged instrument",
			instrument: &PaymentInstrument{CreatedAt: time.Now().Add(-48 * time.Hour), Verified: true},
			wantScore:  0,
		},
		{
			name:       "brand new unverified instrument",
			instrument: &PaymentInstrument{CreatedAt: time.Now().Add(-10 * time.Minute), Verified: false},
			wantScore:  25,
			wantFlags:  []string{FlagNewInstrument, FlagInstrumentUnverified},
		},
		{
			name:      "lookup failure fails open",
			err:       assert.AnError,
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instrumentID := uuid.New()
			instruments := new(mockInstrumentReader)
			if tt.err != nil {
				instruments.On("GetInstrument", mock.Anything, instrumentID).Return(nil, tt.err)
			} else {
				tt.instrument.ID = instrumentID
				instruments.On("GetInstrument", mock.Anything, instrumentID).Return(tt.instrument, nil)
			}

			svc := evalService(nil, instruments)
			f := svc.instrumentRisk(context.Background(), &TransactionContext{InstrumentID: instrumentID})

			assert.Equal(t, tt.wantScore, f.Score)
			assert.ElementsMatch(t, tt.wantFlags, f.Flags)
		})
	}
}

func TestGeographicRisk(t *testing.T) {
	svc := evalService(nil, nil)

	f := svc.geographicRisk(&TransactionContext{BillingRegion: "NG"})
	assert.Equal(t, 25, f.Score)
	assert.Equal(t, []string{FlagHighRiskRegion}, f.Flags)

	f = svc.geographicRisk(&TransactionContext{BillingRegion: "US"})
	assert.Zero(t, f.Score)

	f = svc.geographicRisk(&TransactionContext{})
	assert.Zero(t, f.Score)
}

func TestBehaviorRisk(t *testing.T) {
	tests := []struct {
		name      string
		profile   ActorBehaviorProfile
		wantScore int
		wantFlags []string
	}{
		{
			name:      "clean history",
			profile:   ActorBehaviorProfile{TransactionCount: 20},
			wantScore: 0,
		},
		{
			name:      "high failure rate",
			profile:   ActorBehaviorProfile{TransactionCount: 10, FailedCount: 6},
			wantScore: 20,
			wantFlags: []string{FlagHighFailureRate},
		},
		{
			name:      "elevated failure rate",
			profile:   ActorBehaviorProfile{TransactionCount: 10, FailedCount: 4},
			wantScore: 10,
			wantFlags: []string{FlagElevatedFailureRate},
		},
		{
			name:      "rate at boundary does not fire",
			profile:   ActorBehaviorProfile{TransactionCount: 10, FailedCount: 3},
			wantScore: 0,
		},
		{
			name:      "chargeback history",
			profile:   ActorBehaviorProfile{TransactionCount: 20, ChargebackCount: 1},
			wantScore: 30,
			wantFlags: []string{FlagChargebackHistory},
		},
		{
			name:      "first transaction",
			profile:   ActorBehaviorProfile{TransactionCount: 0},
			wantScore: 10,
			wantFlags: []string{FlagFirstTransaction},
		},
		{
			name:      "failures and chargebacks stack",
			profile:   ActorBehaviorProfile{TransactionCount: 4, FailedCount: 3, ChargebackCount: 2},
			wantScore: 50,
			wantFlags: []string{FlagHighFailureRate, FlagChargebackHistory},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := evalService(nil, nil)
			f := svc.behaviorRisk(&tt.profile)

			assert.Equal(t, tt.wantScore, f.Score)
			assert.ElementsMatch(t, tt.wantFlags, f.Flags)
		})
	}
}
