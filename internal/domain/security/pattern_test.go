package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThreatPatternMatches(t *testing.T) {
	pattern := ThreatPattern{Key: EventFailedLogin}

	tests := []struct {
		eventType string
		want      bool
	}{
		{"FAILED_LOGIN", true},
		{"ADMIN_FAILED_LOGIN", true},
		{"FAILED_LOGIN_SSO", true},
		{"LOGIN", false},
		{"failed_login", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, pattern.Matches(tt.eventType), tt.eventType)
	}
}

func TestDefaultPatternCatalog(t *testing.T) {
	catalog := DefaultPatternCatalog()
	assert.Len(t, catalog, 6)

	byKey := make(map[string]ThreatPattern, len(catalog))
	for _, p := range catalog {
		assert.Positive(t, p.Threshold, p.Key)
		assert.Positive(t, p.Window, p.Key)
		byKey[p.Key] = p
	}

	assert.Equal(t, ActionBlock, byKey[EventFailedLogin].Action)
	assert.Equal(t, 5, byKey[EventFailedLogin].Threshold)
	assert.Equal(t, 15*time.Minute, byKey[EventFailedLogin].Window)

	assert.Equal(t, ActionAlert, byKey[EventMFAFailure].Action)
	assert.Equal(t, ActionBlock, byKey[EventSuspiciousQuery].Action)
	assert.Equal(t, 3, byKey[EventSuspiciousQuery].Threshold)
}

func TestBlockedIPActive(t *testing.T) {
	now := time.Now()
	block := BlockedIP{
		IPAddress: "10.0.0.1",
		ExpiresAt: now.Add(15 * time.Minute),
	}

	assert.True(t, block.Active(now))
	assert.True(t, block.Active(now.Add(14*time.Minute)))
	assert.False(t, block.Active(now.Add(15*time.Minute)))
	assert.False(t, block.Active(now.Add(time.Hour)))
}

func TestEventBuilders(t *testing.T) {
	event := NewEvent(EventAdminAccess, SeverityHigh, EventDetails{
		Metadata: map[string]interface{}{"path": "/admin/users"},
	}).WithOrigin("10.0.0.1", "agent")

	assert.NotEqual(t, "", event.ID.String())
	assert.Equal(t, EventAdminAccess, event.EventType)
	assert.Equal(t, SeverityHigh, event.Severity)
	assert.Equal(t, "10.0.0.1", event.IPAddress)
	assert.Nil(t, event.ActorID)
	assert.False(t, event.Timestamp.IsZero())
}
