package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stayloop/stayloop-backend/internal/domain/security"
)

// SecurityEventRepository persists the append-only security event log and
// the blocked-IP table
type SecurityEventRepository struct {
	db *pgxpool.Pool
}

// NewSecurityEventRepository creates a new security event repository
func NewSecurityEventRepository(db *pgxpool.Pool) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

// Append inserts an event. Events are never updated or deleted afterwards.
func (r *SecurityEventRepository) Append(ctx context.Context, event *security.Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshaling event details: %w", err)
	}

	query := `
		INSERT INTO security_events (id, actor_id, event_type, severity, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)`

	_, err = r.db.Exec(ctx, query,
		event.ID, event.ActorID, event.EventType, event.Severity,
		details, event.IPAddress, event.UserAgent, event.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting security event: %w", err)
	}

	return nil
}

// CountEvents counts events with the given type and source IP at or after
// since. The just-appended event is included, which is what the threat
// monitor expects.
func (r *SecurityEventRepository) CountEvents(ctx context.Context, eventType, ip string, since time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM security_events
		WHERE event_type = $1 AND ip_address = $2 AND created_at >= $3`

	if err := r.db.QueryRow(ctx, query, eventType, ip, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting security events: %w", err)
	}

	return count, nil
}

// UpsertBlockedIP writes a block row, last write wins: a new block replaces
// the prior expiry rather than stacking.
func (r *SecurityEventRepository) UpsertBlockedIP(ctx context.Context, block security.BlockedIP) error {
	query := `
		INSERT INTO blocked_ips (ip_address, reason, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ip_address)
		DO UPDATE SET reason = EXCLUDED.reason, expires_at = EXCLUDED.expires_at`

	_, err := r.db.Exec(ctx, query, block.IPAddress, block.Reason, block.ExpiresAt, block.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting blocked ip: %w", err)
	}

	return nil
}

// GetBlockedIP fetches the block row for an IP, or nil if none exists.
// Expired rows are returned as-is; activity is decided by the caller via
// the expiry, no explicit flag exists.
func (r *SecurityEventRepository) GetBlockedIP(ctx context.Context, ip string) (*security.BlockedIP, error) {
	var block security.BlockedIP
	query := `
		SELECT ip_address, reason, expires_at, created_at
		FROM blocked_ips WHERE ip_address = $1`

	err := r.db.QueryRow(ctx, query, ip).Scan(
		&block.IPAddress, &block.Reason, &block.ExpiresAt, &block.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching blocked ip: %w", err)
	}

	return &block, nil
}
