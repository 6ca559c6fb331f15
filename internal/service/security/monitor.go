package security

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stayloop/stayloop-backend/internal/domain/errors"
	"github.com/stayloop/stayloop-backend/internal/domain/security"
)

// Service is the security-event entry point: every sensitive action logs an
// event here, and logging triggers threat-pattern evaluation as a side
// effect.
type Service interface {
	// LogEvent durably appends the event, then evaluates the pattern catalog
	// against recent counts for the event's type and source IP
	LogEvent(ctx context.Context, event *security.Event) error

	// IsIPBlocked reports whether the IP has an unexpired block row. Advisory:
	// a store failure reads as not blocked.
	IsIPBlocked(ctx context.Context, ip string) bool
}

// EventStore is the append-only security event log
type EventStore interface {
	Append(ctx context.Context, event *security.Event) error

	// CountEvents counts events with the same type and IP at or after since
	CountEvents(ctx context.Context, eventType, ip string, since time.Time) (int, error)
}

// BlockStore holds the upsertable blocked-IP rows
type BlockStore interface {
	UpsertBlockedIP(ctx context.Context, block security.BlockedIP) error
	GetBlockedIP(ctx context.Context, ip string) (*security.BlockedIP, error)
}

// Notifier delivers out-of-band operator alerts
type Notifier interface {
	SendAlert(ctx context.Context, subject string, event *security.Event) error
}

type service struct {
	store    EventStore
	blocks   BlockStore
	notifier Notifier
	catalog  []security.ThreatPattern
	logger   *zap.Logger
	tracer   trace.Tracer

	lookupTimeout time.Duration
}

// NewService creates the security-event service with the given pattern
// catalog. A nil catalog falls back to the default.
func NewService(
	store EventStore,
	blocks BlockStore,
	notifier Notifier,
	catalog []security.ThreatPattern,
	logger *zap.Logger,
) Service {
	if catalog == nil {
		catalog = security.DefaultPatternCatalog()
	}

	return &service{
		store:         store,
		blocks:        blocks,
		notifier:      notifier,
		catalog:       catalog,
		logger:        logger,
		tracer:        otel.Tracer("service.security"),
		lookupTimeout: 2 * time.Second,
	}
}

// LogEvent appends the event and runs the threat monitor over it. Append
// failures propagate (an unrecorded event cannot be counted); monitor
// failures never do.
func (s *service) LogEvent(ctx context.Context, event *security.Event) error {
	ctx, span := s.tracer.Start(ctx, "security.log_event",
		trace.WithAttributes(attribute.String("event_type", event.EventType)))
	defer span.End()

	if err := s.store.Append(ctx, event); err != nil {
		span.RecordError(err)
		return errors.NewInternalError("failed to append security event").WithCause(err)
	}

	s.evaluatePatterns(ctx, event)
	return nil
}

// IsIPBlocked consults the block list for request-path short-circuiting.
// The threat monitor keeps re-evaluating blocked IPs regardless, so
// escalating severity is still recorded.
func (s *service) IsIPBlocked(ctx context.Context, ip string) bool {
	if ip == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	block, err := s.blocks.GetBlockedIP(ctx, ip)
	if err != nil {
		s.logger.Warn("block list lookup degraded", zap.String("ip", ip), zap.Error(err))
		return false
	}
	if block == nil {
		return false
	}

	return block.Active(time.Now())
}

// evaluatePatterns recounts recent events for every catalog entry matching
// the event type. The recount includes the event just appended. Because no
// per-window state is kept, an already-breached window re-triggers on every
// subsequent event; the cost is duplicate alerts, the benefit is that
// over-counting can only fire earlier, never miss.
func (s *service) evaluatePatterns(ctx context.Context, event *security.Event) {
	if event.IPAddress == "" {
		return
	}

	now := time.Now()
	for _, pattern := range s.catalog {
		if !pattern.Matches(event.EventType) {
			continue
		}

		countCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
		count, err := s.store.CountEvents(countCtx, event.EventType, event.IPAddress, now.Add(-pattern.Window))
		cancel()
		if err != nil {
			s.logger.Warn("threat pattern count degraded",
				zap.String("pattern", pattern.Key),
				zap.String("ip", event.IPAddress),
				zap.Error(err))
			continue
		}

		if count < pattern.Threshold {
			continue
		}

		s.triggerPattern(ctx, event, pattern, count, now)
	}
}

func (s *service) triggerPattern(ctx context.Context, event *security.Event, pattern security.ThreatPattern, count int, now time.Time) {
	s.logger.Warn("threat pattern triggered",
		zap.String("pattern", pattern.Key),
		zap.String("ip", event.IPAddress),
		zap.Int("count", count),
		zap.Int("threshold", pattern.Threshold),
		zap.String("action", string(pattern.Action)))

	detection := security.NewEvent(
		security.ThreatDetectedPrefix+pattern.Key,
		security.SeverityCritical,
		security.EventDetails{
			ThreatDetection: &security.ThreatDetectionDetails{
				OriginalEventID:   event.ID,
				OriginalEventType: event.EventType,
				PatternKey:        pattern.Key,
				Threshold:         pattern.Threshold,
				ActualCount:       count,
				Window:            pattern.Window,
				Action:            pattern.Action,
			},
		},
	).WithOrigin(event.IPAddress, event.UserAgent)
	if event.ActorID != nil {
		detection.WithActor(*event.ActorID)
	}

	// Appended directly, not via LogEvent: derived events never re-enter the
	// monitor (THREAT_DETECTED_FAILED_LOGIN would substring-match the
	// FAILED_LOGIN pattern and escalate forever)
	if err := s.store.Append(ctx, detection); err != nil {
		s.logger.Error("failed to append detection event",
			zap.String("pattern", pattern.Key),
			zap.Error(err))
	}

	switch pattern.Action {
	case security.ActionBlock:
		block := security.BlockedIP{
			IPAddress: event.IPAddress,
			Reason:    fmt.Sprintf("threat pattern %s: %d events in %s", pattern.Key, count, pattern.Window),
			ExpiresAt: now.Add(pattern.Window),
			CreatedAt: now,
		}
		if err := s.blocks.UpsertBlockedIP(ctx, block); err != nil {
			s.logger.Error("failed to block IP",
				zap.String("ip", event.IPAddress),
				zap.Error(err))
		}
		s.alert(ctx, pattern, detection)
	case security.ActionAlert:
		s.alert(ctx, pattern, detection)
	case security.ActionLog:
		// The detection event itself is the record
	}
}

// alert is best effort; delivery failure must not fail the caller
func (s *service) alert(ctx context.Context, pattern security.ThreatPattern, detection *security.Event) {
	if s.notifier == nil {
		return
	}

	subject := fmt.Sprintf("Threat detected: %s from %s", pattern.Key, detection.IPAddress)
	if err := s.notifier.SendAlert(ctx, subject, detection); err != nil {
		s.logger.Warn("alert delivery failed",
			zap.String("pattern", pattern.Key),
			zap.Error(err))
	}
}
