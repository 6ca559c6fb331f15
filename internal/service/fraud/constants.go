package fraud

import "time"

// Risk level thresholds on the clamped 0-100 score
const (
	ThresholdMedium   = 25
	ThresholdHigh     = 50
	ThresholdCritical = 75
	ThresholdBlock    = 90
)

// MaxRiskScore caps the accumulated score
const MaxRiskScore = 100

// Weights carries the hand-tuned per-signal point values. Loaded once at
// startup; never mutated afterwards.
type Weights struct {
	LargeTransaction     int `koanf:"large_transaction"`
	AmountRatioHigh      int `koanf:"amount_ratio_high"`
	AmountRatioElevated  int `koanf:"amount_ratio_elevated"`
	RoundAmount          int `koanf:"round_amount"`
	HighFrequency        int `koanf:"high_frequency"`
	ElevatedFrequency    int `koanf:"elevated_frequency"`
	HighRecentVolume     int `koanf:"high_recent_volume"`
	NewAccount           int `koanf:"new_account"`
	RecentAccount        int `koanf:"recent_account"`
	EmailUnverified      int `koanf:"email_unverified"`
	PhoneUnverified      int `koanf:"phone_unverified"`
	IdentityUnverified   int `koanf:"identity_unverified"`
	NewInstrument        int `koanf:"new_instrument"`
	InstrumentUnverified int `koanf:"instrument_unverified"`
	HighRiskRegion       int `koanf:"high_risk_region"`
	HighFailureRate      int `koanf:"high_failure_rate"`
	ElevatedFailureRate  int `koanf:"elevated_failure_rate"`
	ChargebackHistory    int `koanf:"chargeback_history"`
	FirstTransaction     int `koanf:"first_transaction"`
}

// Config holds evaluator thresholds and weights as an explicit immutable
// structure so the six signals are tunable and testable without code changes.
type Config struct {
	Weights Weights `koanf:"weights"`

	// Amount signal
	LargeAmount    float64 `koanf:"large_amount"`
	RatioHigh      float64 `koanf:"ratio_high"`
	RatioElevated  float64 `koanf:"ratio_elevated"`
	RoundAmountMin float64 `koanf:"round_amount_min"`
	RoundAmountOf  int64   `koanf:"round_amount_of"`

	// Frequency signal
	FrequencyWindow        time.Duration `koanf:"frequency_window"`
	FrequencyHighCount     int           `koanf:"frequency_high_count"`
	FrequencyElevatedCount int           `koanf:"frequency_elevated_count"`
	RecentVolumeThreshold  float64       `koanf:"recent_volume_threshold"`

	// Verification signal
	NewAccountDays    int `koanf:"new_account_days"`
	RecentAccountDays int `koanf:"recent_account_days"`

	// Instrument signal
	NewInstrumentAge time.Duration `koanf:"new_instrument_age"`

	// Geographic signal
	HighRiskRegions []string `koanf:"high_risk_regions"`

	// Behavior signal
	FailureRateHigh     float64 `koanf:"failure_rate_high"`
	FailureRateElevated float64 `koanf:"failure_rate_elevated"`

	// External lookups are bounded; a timeout degrades the signal instead of
	// failing the check
	LookupTimeout time.Duration `koanf:"lookup_timeout"`
}

// DefaultConfig returns the hand-tuned production configuration
func DefaultConfig() *Config {
	return &Config{
		Weights: Weights{
			LargeTransaction:     20,
			AmountRatioHigh:      15,
			AmountRatioElevated:  8,
			RoundAmount:          5,
			HighFrequency:        25,
			ElevatedFrequency:    15,
			HighRecentVolume:     20,
			NewAccount:           20,
			RecentAccount:        10,
			EmailUnverified:      15,
			PhoneUnverified:      10,
			IdentityUnverified:   20,
			NewInstrument:        15,
			InstrumentUnverified: 10,
			HighRiskRegion:       25,
			HighFailureRate:      20,
			ElevatedFailureRate:  10,
			ChargebackHistory:    30,
			FirstTransaction:     10,
		},
		LargeAmount:            5000,
		RatioHigh:              5,
		RatioElevated:          3,
		RoundAmountMin:         1000,
		RoundAmountOf:          100,
		FrequencyWindow:        60 * time.Minute,
		FrequencyHighCount:     5,
		FrequencyElevatedCount: 3,
		RecentVolumeThreshold:  2000,
		NewAccountDays:         1,
		RecentAccountDays:      7,
		NewInstrumentAge:       time.Hour,
		HighRiskRegions:        []string{"NG", "PK", "VN", "ID", "BD"},
		FailureRateHigh:        0.5,
		FailureRateElevated:    0.3,
		LookupTimeout:          2 * time.Second,
	}
}
