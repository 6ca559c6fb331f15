package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds the domain metrics for the risk core
type Registry struct {
	meter metric.Meter

	// Fraud metrics
	FraudCheckDuration  metric.Float64Histogram
	FraudRiskScore      metric.Int64Histogram
	FraudBlockedCounter metric.Int64Counter
	FraudErrorCounter   metric.Int64Counter

	// Security metrics
	SecurityEventCounter metric.Int64Counter

	// Rate limiter metrics
	RateLimitAllowed  metric.Int64Counter
	RateLimitDenied   metric.Int64Counter
	RateLimitDegraded metric.Int64Counter
}

// NewRegistry creates and registers all instruments
func NewRegistry() (*Registry, error) {
	meter := otel.Meter("stayloop.risk")
	r := &Registry{meter: meter}

	var err error

	if r.FraudCheckDuration, err = meter.Float64Histogram(
		"fraud.check.duration",
		metric.WithDescription("Fraud check latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("creating fraud.check.duration: %w", err)
	}

	if r.FraudRiskScore, err = meter.Int64Histogram(
		"fraud.check.risk_score",
		metric.WithDescription("Distribution of final risk scores"),
	); err != nil {
		return nil, fmt.Errorf("creating fraud.check.risk_score: %w", err)
	}

	if r.FraudBlockedCounter, err = meter.Int64Counter(
		"fraud.check.blocked",
		metric.WithDescription("Transactions blocked by the fraud scorer"),
	); err != nil {
		return nil, fmt.Errorf("creating fraud.check.blocked: %w", err)
	}

	if r.FraudErrorCounter, err = meter.Int64Counter(
		"fraud.check.errors",
		metric.WithDescription("Checks that fell back to the fail-safe result"),
	); err != nil {
		return nil, fmt.Errorf("creating fraud.check.errors: %w", err)
	}

	if r.SecurityEventCounter, err = meter.Int64Counter(
		"security.events",
		metric.WithDescription("Security events appended"),
	); err != nil {
		return nil, fmt.Errorf("creating security.events: %w", err)
	}

	if r.RateLimitAllowed, err = meter.Int64Counter(
		"ratelimit.allowed",
		metric.WithDescription("Requests allowed by the rate limiter"),
	); err != nil {
		return nil, fmt.Errorf("creating ratelimit.allowed: %w", err)
	}

	if r.RateLimitDenied, err = meter.Int64Counter(
		"ratelimit.denied",
		metric.WithDescription("Requests denied by the rate limiter"),
	); err != nil {
		return nil, fmt.Errorf("creating ratelimit.denied: %w", err)
	}

	if r.RateLimitDegraded, err = meter.Int64Counter(
		"ratelimit.degraded",
		metric.WithDescription("Fail-open decisions taken while the counter store was unreachable"),
	); err != nil {
		return nil, fmt.Errorf("creating ratelimit.degraded: %w", err)
	}

	return r, nil
}

// RecordFraudCheck records the outcome of one fraud check
func (r *Registry) RecordFraudCheck(ctx context.Context, durationMS float64, score int, level string, blocked, fallback bool) {
	attrs := metric.WithAttributes(attribute.String("risk_level", level))
	r.FraudCheckDuration.Record(ctx, durationMS, attrs)
	r.FraudRiskScore.Record(ctx, int64(score), attrs)
	if blocked {
		r.FraudBlockedCounter.Add(ctx, 1)
	}
	if fallback {
		r.FraudErrorCounter.Add(ctx, 1)
	}
}

// RecordSecurityEvent counts an appended security event
func (r *Registry) RecordSecurityEvent(ctx context.Context, eventType, severity string) {
	r.SecurityEventCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("severity", severity)))
}

// RecordRateLimit records a rate limit decision
func (r *Registry) RecordRateLimit(ctx context.Context, allowed, degraded bool) {
	switch {
	case degraded:
		r.RateLimitDegraded.Add(ctx, 1)
	case allowed:
		r.RateLimitAllowed.Add(ctx, 1)
	default:
		r.RateLimitDenied.Add(ctx, 1)
	}
}
