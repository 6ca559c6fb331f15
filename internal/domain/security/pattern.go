package security

import (
	"strings"
	"time"
)

// PatternAction is what the monitor does when a pattern threshold is crossed
type PatternAction string

const (
	ActionLog   PatternAction = "LOG"
	ActionAlert PatternAction = "ALERT"
	ActionBlock PatternAction = "BLOCK"
)

// ThreatPattern is an immutable catalog entry: events whose type contains Key
// are counted per source IP inside a trailing Window; reaching Threshold
// triggers Action.
type ThreatPattern struct {
	Key       string        `json:"key" koanf:"key"`
	Threshold int           `json:"threshold" koanf:"threshold"`
	Window    time.Duration `json:"window" koanf:"window"`
	Action    PatternAction `json:"action" koanf:"action"`
}

// Matches reports whether an event type falls under this pattern.
// Substring match, not exact: "ADMIN_FAILED_LOGIN" matches "FAILED_LOGIN".
func (p ThreatPattern) Matches(eventType string) bool {
	return strings.Contains(eventType, p.Key)
}

// DefaultPatternCatalog returns the hand-tuned pattern catalog. Loaded into
// config at startup so thresholds are tunable without code changes.
func DefaultPatternCatalog() []ThreatPattern {
	return []ThreatPattern{
		{Key: EventFailedLogin, Threshold: 5, Window: 15 * time.Minute, Action: ActionBlock},
		{Key: EventMFAFailure, Threshold: 3, Window: 10 * time.Minute, Action: ActionAlert},
		{Key: EventAdminAccess, Threshold: 10, Window: 60 * time.Minute, Action: ActionAlert},
		{Key: EventDataExport, Threshold: 5, Window: 60 * time.Minute, Action: ActionAlert},
		{Key: EventFileUploadRejected, Threshold: 10, Window: 30 * time.Minute, Action: ActionBlock},
		{Key: EventSuspiciousQuery, Threshold: 3, Window: 5 * time.Minute, Action: ActionBlock},
	}
}

// BlockedIP is an upsertable block row; a given IP has at most one row and a
// new block replaces the prior expiry rather than stacking.
type BlockedIP struct {
	IPAddress string    `json:"ip_address"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the block is still in force. No explicit active
// flag exists; expiry alone decides.
func (b BlockedIP) Active(now time.Time) bool {
	return now.Before(b.ExpiresAt)
}
