package security

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stayloop/stayloop-backend/internal/domain/security"
	"github.com/stayloop/stayloop-backend/internal/domain/values"
	"github.com/stayloop/stayloop-backend/internal/service/fraud"
)

type mockEventStore struct {
	mock.Mock
}

func (m *mockEventStore) Append(ctx context.Context, event *security.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockEventStore) CountEvents(ctx context.Context, eventType, ip string, since time.Time) (int, error) {
	args := m.Called(ctx, eventType, ip, since)
	return args.Int(0), args.Error(1)
}

type mockBlockStore struct {
	mock.Mock
}

func (m *mockBlockStore) UpsertBlockedIP(ctx context.Context, block security.BlockedIP) error {
	args := m.Called(ctx, block)
	return args.Error(0)
}

func (m *mockBlockStore) GetBlockedIP(ctx context.Context, ip string) (*security.BlockedIP, error) {
	args := m.Called(ctx, ip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*security.BlockedIP), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendAlert(ctx context.Context, subject string, event *security.Event) error {
	args := m.Called(ctx, subject, event)
	return args.Error(0)
}

func failedLoginEvent(ip string) *security.Event {
	return security.NewEvent(security.EventFailedLogin, security.SeverityMedium, security.EventDetails{
		Metadata: map[string]interface{}{"username": "alice"},
	}).WithOrigin(ip, "test-agent")
}

func TestLogEvent_BelowThresholdOnlyAppends(t *testing.T) {
	store := new(mockEventStore)
	blocks := new(mockBlockStore)
	notifier := new(mockNotifier)

	store.On("Append", mock.Anything, mock.Anything).Return(nil)
	store.On("CountEvents", mock.Anything, security.EventFailedLogin, "10.0.0.1", mock.Anything).Return(2, nil)

	svc := NewService(store, blocks, notifier, nil, zap.NewNop())

	require.NoError(t, svc.LogEvent(context.Background(), failedLoginEvent("10.0.0.1")))

	store.AssertNumberOfCalls(t, "Append", 1)
	blocks.AssertNotCalled(t, "UpsertBlockedIP", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "SendAlert", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogEvent_BlockPatternBlocksAndAlerts(t *testing.T) {
	store := new(mockEventStore)
	blocks := new(mockBlockStore)
	notifier := new(mockNotifier)

	store.On("Append", mock.Anything, mock.Anything).Return(nil)
	store.On("CountEvents", mock.Anything, security.EventFailedLogin, "10.0.0.1", mock.Anything).Return(5, nil)

	var blocked security.BlockedIP
	blocks.On("UpsertBlockedIP", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		blocked = args.Get(1).(security.BlockedIP)
	}).Return(nil)
	notifier.On("SendAlert", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := NewService(store, blocks, notifier, nil, zap.NewNop())

	before := time.Now()
	require.NoError(t, svc.LogEvent(context.Background(), failedLoginEvent("10.0.0.1")))

	// Original event plus the derived detection event
	store.AssertNumberOfCalls(t, "Append", 2)

	detection := store.Calls[2].Arguments.Get(1).(*security.Event)
	assert.Equal(t, "THREAT_DETECTED_FAILED_LOGIN", detection.EventType)
	assert.Equal(t, security.SeverityCritical, detection.Severity)
	assert.Equal(t, "10.0.0.1", detection.IPAddress)
	require.NotNil(t, detection.Details.ThreatDetection)
	assert.Equal(t, 5, detection.Details.ThreatDetection.ActualCount)
	assert.Equal(t, 5, detection.Details.ThreatDetection.Threshold)
	assert.Equal(t, security.ActionBlock, detection.Details.ThreatDetection.Action)

	// Block expiry tracks the pattern window (15m for failed logins)
	assert.Equal(t, "10.0.0.1", blocked.IPAddress)
	assert.WithinDuration(t, before.Add(15*time.Minute), blocked.ExpiresAt, 2*time.Second)
	assert.Contains(t, blocked.Reason, "FAILED_LOGIN")

	notifier.AssertNumberOfCalls(t, "SendAlert", 1)
}

func TestLogEvent_AlertPatternAlertsWithoutBlocking(t *testing.T) {
	store := new(mockEventStore)
	blocks := new(mockBlockStore)
	notifier := new(mockNotifier)

	event := security.NewEvent(security.EventMFAFailure, security.SeverityMedium, security.EventDetails{}).
		WithOrigin("10.0.0.2", "")

	store.On("Append", mock.Anything, mock.Anything).Return(nil)
	store.On("CountEvents", mock.Anything, security.EventMFAFailure, "10.0.0.2", mock.Anything).Return(3, nil)
	notifier.On("SendAlert", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := NewService(store, blocks, notifier, nil, zap.NewNop())

	require.NoError(t, svc.LogEvent(context.Background(), event))

	blocks.AssertNotCalled(t, "UpsertBlockedIP", mock.Anything, mock.Anything)
	notifier.AssertNumberOfCalls(t, "SendAlert", 1)
}

func TestLogEvent_SubstringMatchTriggersBasePattern(t *testing.T) {
	store := new(mockEventStore)
	blocks := new(mockBlockStore)

	event := security.NewEvent("ADMIN_FAILED_LOGIN", security.SeverityMedium, security.EventDetails{}).
		WithOrigin("10.0.0.3", "")

	store.On("Append", mock.Anything, mock.Anything).Return(nil)
	// The counter key is the concrete event type, not the pattern key
	store.On("CountEvents", mock.Anything, "ADMIN_FAILED_LOGIN", "10.0.0.3", mock.Anything).Return(5, nil)
	blocks.On("UpsertBlockedIP", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(store, blocks, nil, nil, zap.NewNop())

	require.NoError(t, svc.LogEvent(context.Background(), event))

	blocks.AssertNumberOfCalls(t, "UpsertBlockedIP", 1)
	detection := store.Calls[2].Arguments.Get(1).(*security.Event)
	assert.True(t, strings.HasPrefix(detection.EventType, security.ThreatDetectedPrefix))
	assert.Equal(t, "ADMIN_FAILED_LOGIN", detection.Details.ThreatDetection.OriginalEventType)
}

func TestLogEvent_NoIPSkipsEvaluation(t *testing.T) {
	store := new(mockEventStore)

	store.On("Append", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(store, new(mockBlockStore), nil, nil, zap.NewNop())

	event := security.NewEvent(security.EventFailedLogin, security.SeverityMedium, security.EventDetails{})
	require.NoError(t, svc.LogEvent(context.Background(), event))

	store.AssertNotCalled(t, "CountEvents", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLogEvent_CountErrorDegradesToAppendOnly(t *testing.T) {
	store := new(mockEventStore)
	blocks := new(mockBlockStore)
	notifier := new(mockNotifier)

	store.On("Append", mock.Anything, mock.Anything).Return(nil)
	store.On("CountEvents", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(0, assert.AnError)

	svc := NewService(store, blocks, notifier, nil, zap.NewNop())

	require.NoError(t, svc.LogEvent(context.Background(), failedLoginEvent("10.0.0.4")))

	store.AssertNumberOfCalls(t, "Append", 1)
	blocks.AssertNotCalled(t, "UpsertBlockedIP", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "SendAlert", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogEvent_AppendFailurePropagates(t *testing.T) {
	store := new(mockEventStore)
	store.On("Append", mock.Anything, mock.Anything).Return(assert.AnError)

	svc := NewService(store, new(mockBlockStore), nil, nil, zap.NewNop())

	err := svc.LogEvent(context.Background(), failedLoginEvent("10.0.0.5"))
	require.Error(t, err)
	store.AssertNotCalled(t, "CountEvents", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLogEvent_BlockUpsertFailureStillAlerts(t *testing.T) {
	store := new(mockEventStore)
	blocks := new(mockBlockStore)
	notifier := new(mockNotifier)

	store.On("Append", mock.Anything, mock.Anything).Return(nil)
	store.On("CountEvents", mock.Anything, security.EventFailedLogin, "10.0.0.6", mock.Anything).Return(6, nil)
	blocks.On("UpsertBlockedIP", mock.Anything, mock.Anything).Return(assert.AnError)
	notifier.On("SendAlert", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := NewService(store, blocks, notifier, nil, zap.NewNop())

	require.NoError(t, svc.LogEvent(context.Background(), failedLoginEvent("10.0.0.6")))
	notifier.AssertNumberOfCalls(t, "SendAlert", 1)
}

func TestLogEvent_AlertFailureDoesNotFailLogging(t *testing.T) {
	store := new(mockEventStore)
	notifier := new(mockNotifier)

	event := security.NewEvent(security.EventDataExport, security.SeverityMedium, security.EventDetails{}).
		WithOrigin("10.0.0.7", "")

	store.On("Append", mock.Anything, mock.Anything).Return(nil)
	store.On("CountEvents", mock.Anything, security.EventDataExport, "10.0.0.7", mock.Anything).Return(5, nil)
	notifier.On("SendAlert", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

	svc := NewService(store, new(mockBlockStore), notifier, nil, zap.NewNop())

	require.NoError(t, svc.LogEvent(context.Background(), event))
}

func TestLogEvent_CustomCatalog(t *testing.T) {
	store := new(mockEventStore)
	blocks := new(mockBlockStore)

	catalog := []security.ThreatPattern{
		{Key: "PASSWORD_RESET", Threshold: 2, Window: 5 * time.Minute, Action: security.ActionBlock},
	}

	event := security.NewEvent("PASSWORD_RESET", security.SeverityLow, security.EventDetails{}).
		WithOrigin("10.0.0.8", "")

	store.On("Append", mock.Anything, mock.Anything).Return(nil)
	store.On("CountEvents", mock.Anything, "PASSWORD_RESET", "10.0.0.8", mock.Anything).Return(2, nil)
	blocks.On("UpsertBlockedIP", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(store, blocks, nil, catalog, zap.NewNop())

	require.NoError(t, svc.LogEvent(context.Background(), event))
	blocks.AssertNumberOfCalls(t, "UpsertBlockedIP", 1)
}

func TestIsIPBlocked(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		ip    string
		block *security.BlockedIP
		err   error
		want  bool
	}{
		{
			name: "active block",
			ip:   "10.0.0.9",
			block: &security.BlockedIP{
				IPAddress: "10.0.0.9",
				ExpiresAt: now.Add(10 * time.Minute),
			},
			want: true,
		},
		{
			name: "expired block",
			ip:   "10.0.0.9",
			block: &security.BlockedIP{
				IPAddress: "10.0.0.9",
				ExpiresAt: now.Add(-time.Minute),
			},
			want: false,
		},
		{
			name: "no block row",
			ip:   "10.0.0.10",
			want: false,
		},
		{
			name: "store error fails open",
			ip:   "10.0.0.11",
			err:  assert.AnError,
			want: false,
		},
		{
			name: "empty ip never blocked",
			ip:   "",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := new(mockBlockStore)
			if tt.ip != "" {
				blocks.On("GetBlockedIP", mock.Anything, tt.ip).Return(tt.block, tt.err)
			}

			svc := NewService(new(mockEventStore), blocks, nil, nil, zap.NewNop())

			assert.Equal(t, tt.want, svc.IsIPBlocked(context.Background(), tt.ip))
			if tt.ip == "" {
				blocks.AssertNotCalled(t, "GetBlockedIP", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestFraudAuditLogSeverityMapping(t *testing.T) {
	store := new(mockEventStore)
	store.On("Append", mock.Anything, mock.Anything).Return(nil)
	store.On("CountEvents", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(0, nil)

	svc := NewService(store, new(mockBlockStore), nil, nil, zap.NewNop())
	auditLog := NewFraudAuditLog(svc)

	actorID := uuid.New()
	txn := &fraud.TransactionContext{
		TransactionID: uuid.New(),
		ActorID:       actorID,
		Amount:        values.MustNewMoneyFromFloat(9500, values.USD),
		IPAddress:     "10.0.0.12",
	}
	result := &fraud.FraudCheckResult{
		ID:            uuid.New(),
		TransactionID: txn.TransactionID,
		ActorID:       actorID,
		RiskScore:     95,
		RiskLevel:     fraud.RiskLevelCritical,
		Flags:         []string{"large-transaction"},
		Blocked:       true,
	}

	require.NoError(t, auditLog.RecordFraudCheck(context.Background(), txn, result))

	logged := store.Calls[0].Arguments.Get(1).(*security.Event)
	assert.Equal(t, security.EventFraudCheck, logged.EventType)
	assert.Equal(t, security.SeverityCritical, logged.Severity)
	require.NotNil(t, logged.Details.FraudCheck)
	assert.Equal(t, 95, logged.Details.FraudCheck.RiskScore)
	assert.True(t, logged.Details.FraudCheck.Blocked)
}
