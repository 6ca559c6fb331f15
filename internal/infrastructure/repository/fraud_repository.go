package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stayloop/stayloop-backend/internal/domain/errors"
	"github.com/stayloop/stayloop-backend/internal/domain/values"
	"github.com/stayloop/stayloop-backend/internal/service/fraud"
)

// FraudRepository serves the fraud scorer's read paths (actor history,
// payment instruments) and its feedback writes. The transaction and actor
// tables belong to the host application; this repository only reads them.
type FraudRepository struct {
	db *pgxpool.Pool
}

// NewFraudRepository creates a new fraud repository
func NewFraudRepository(db *pgxpool.Pool) *FraudRepository {
	return &FraudRepository{db: db}
}

// GetBehaviorSnapshot recomputes the actor's profile from stored history.
// The snapshot is derived on every call, never cached or mutated.
func (r *FraudRepository) GetBehaviorSnapshot(ctx context.Context, actorID uuid.UUID) (*fraud.ActorBehaviorProfile, error) {
	profile := &fraud.ActorBehaviorProfile{ActorID: actorID}

	var createdAt time.Time
	actorQuery := `
		SELECT created_at, email_verified, phone_verified, identity_verified
		FROM actors WHERE id = $1`

	err := r.db.QueryRow(ctx, actorQuery, actorID).Scan(
		&createdAt, &profile.EmailVerified, &profile.PhoneVerified, &profile.IdentityVerified)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrActorNotFound
		}
		return nil, fmt.Errorf("fetching actor: %w", err)
	}
	profile.AccountAgeDays = int(time.Since(createdAt).Hours() / 24)

	var (
		mean     decimal.Decimal
		currency string
		lastAt   *time.Time
	)
	historyQuery := `
		SELECT
			COUNT(*),
			COALESCE(AVG(amount), 0),
			COALESCE(MAX(currency), 'USD'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'charged_back'),
			MAX(created_at)
		FROM transactions WHERE actor_id = $1`

	err = r.db.QueryRow(ctx, historyQuery, actorID).Scan(
		&profile.TransactionCount, &mean, &currency,
		&profile.FailedCount, &profile.ChargebackCount, &lastAt)
	if err != nil {
		return nil, fmt.Errorf("aggregating transaction history: %w", err)
	}

	meanAmount, err := values.NewMoney(mean, currency)
	if err != nil {
		return nil, fmt.Errorf("invalid mean amount: %w", err)
	}
	profile.MeanAmount = meanAmount
	profile.LastTransactionAt = lastAt

	return profile, nil
}

// GetRecentActivity counts and sums the actor's transactions at or after
// the given instant
func (r *FraudRepository) GetRecentActivity(ctx context.Context, actorID uuid.UUID, since time.Time) (*fraud.RecentActivity, error) {
	var (
		count    int
		total    decimal.Decimal
		currency string
	)
	query := `
		SELECT COUNT(*), COALESCE(SUM(amount), 0), COALESCE(MAX(currency), 'USD')
		FROM transactions WHERE actor_id = $1 AND created_at >= $2`

	if err := r.db.QueryRow(ctx, query, actorID, since).Scan(&count, &total, &currency); err != nil {
		return nil, fmt.Errorf("counting recent transactions: %w", err)
	}

	totalAmount, err := values.NewMoney(total, currency)
	if err != nil {
		return nil, fmt.Errorf("invalid recent total: %w", err)
	}

	return &fraud.RecentActivity{Count: count, Total: totalAmount}, nil
}

// GetInstrument fetches a stored payment instrument by id
func (r *FraudRepository) GetInstrument(ctx context.Context, id uuid.UUID) (*fraud.PaymentInstrument, error) {
	var instrument fraud.PaymentInstrument
	query := `
		SELECT id, actor_id, created_at, verified
		FROM payment_instruments WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&instrument.ID, &instrument.ActorID, &instrument.CreatedAt, &instrument.Verified)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrInstrumentNotFound
		}
		return nil, fmt.Errorf("fetching payment instrument: %w", err)
	}

	return &instrument, nil
}

// SaveFeedback appends a feedback annotation. Feedback rows are never
// updated; repeated reports on the same transaction accumulate.
func (r *FraudRepository) SaveFeedback(ctx context.Context, fb *fraud.Feedback) error {
	query := `
		INSERT INTO fraud_feedback (id, transaction_id, kind, fraud_type, note, reported_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)`

	_, err := r.db.Exec(ctx, query, fb.ID, fb.TransactionID, fb.Kind, fb.FraudType, fb.Note, fb.ReportedAt)
	if err != nil {
		return fmt.Errorf("inserting fraud feedback: %w", err)
	}

	return nil
}
