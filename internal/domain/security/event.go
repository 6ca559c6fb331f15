package security

import (
	"time"

	"github.com/google/uuid"
)

// Severity represents the severity of a security event
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Well-known event types. Threat patterns match on substrings of these, so
// derived types (e.g. "ADMIN_FAILED_LOGIN") still trigger the base pattern.
const (
	EventFailedLogin        = "FAILED_LOGIN"
	EventMFAFailure         = "MFA_FAILURE"
	EventAdminAccess        = "ADMIN_ACCESS"
	EventDataExport         = "DATA_EXPORT"
	EventFileUploadRejected = "FILE_UPLOAD_REJECTED"
	EventSuspiciousQuery    = "SUSPICIOUS_QUERY"
	EventFraudCheck         = "FRAUD_CHECK"
	EventRateLimitDegraded  = "RATE_LIMITER_DEGRADED"
)

// ThreatDetectedPrefix prefixes the derived event emitted when a pattern
// threshold is crossed, e.g. THREAT_DETECTED_FAILED_LOGIN.
const ThreatDetectedPrefix = "THREAT_DETECTED_"

// Event represents a single append-only security event. Once written it is
// never mutated or deleted.
type Event struct {
	ID        uuid.UUID    `json:"id"`
	ActorID   *uuid.UUID   `json:"actor_id,omitempty"`
	EventType string       `json:"event_type"`
	Severity  Severity     `json:"severity"`
	Details   EventDetails `json:"details"`
	IPAddress string       `json:"ip_address,omitempty"`
	UserAgent string       `json:"user_agent,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewEvent creates a security event with a fresh id and timestamp
func NewEvent(eventType string, severity Severity, details EventDetails) *Event {
	return &Event{
		ID:        uuid.New(),
		EventType: eventType,
		Severity:  severity,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// WithActor attaches the acting user
func (e *Event) WithActor(actorID uuid.UUID) *Event {
	e.ActorID = &actorID
	return e
}

// WithOrigin attaches the network origin
func (e *Event) WithOrigin(ip, userAgent string) *Event {
	e.IPAddress = ip
	e.UserAgent = userAgent
	return e
}

// EventDetails is the structured payload of an event. Exactly one of the
// typed members is usually set; Metadata remains open for forward
// compatibility with event kinds this core does not know about.
type EventDetails struct {
	ThreatDetection *ThreatDetectionDetails `json:"threat_detection,omitempty"`
	FraudCheck      *FraudCheckDetails      `json:"fraud_check,omitempty"`
	RateLimit       *RateLimitDetails       `json:"rate_limit,omitempty"`
	Metadata        map[string]interface{}  `json:"metadata,omitempty"`
}

// ThreatDetectionDetails carries the evidence for a THREAT_DETECTED_* event
type ThreatDetectionDetails struct {
	OriginalEventID   uuid.UUID     `json:"original_event_id"`
	OriginalEventType string        `json:"original_event_type"`
	PatternKey        string        `json:"pattern_key"`
	Threshold         int           `json:"threshold"`
	ActualCount       int           `json:"actual_count"`
	Window            time.Duration `json:"window"`
	Action            PatternAction `json:"action"`
}

// FraudCheckDetails is the audit payload persisted after every fraud check
type FraudCheckDetails struct {
	ActorID   uuid.UUID `json:"actor_id"`
	Amount    string    `json:"amount"`
	RiskScore int       `json:"risk_score"`
	RiskLevel string    `json:"risk_level"`
	Flags     []string  `json:"flags"`
	Blocked   bool      `json:"blocked"`
}

// RateLimitDetails records a degraded-mode decision by the rate limiter
type RateLimitDetails struct {
	Key    string        `json:"key"`
	Limit  int           `json:"limit"`
	Window time.Duration `json:"window"`
	Reason string        `json:"reason"`
}
