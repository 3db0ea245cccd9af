package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/tradebot/internal/domain"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

// ReputationRepository persists per-user vouch aggregates.
type ReputationRepository interface {
	// Record atomically adds one vouch and returns the updated aggregate.
	Record(ctx context.Context, userID string, stars int, comment string, at time.Time) (*domain.ReputationRecord, error)
	Get(ctx context.Context, userID string) (*domain.ReputationRecord, error)
	// Top orders by average desc then count desc; comments are not loaded.
	Top(ctx context.Context, limit int) ([]domain.ReputationRecord, error)
}

type reputationRepository struct {
	pool *pgxpool.Pool
}

// NewReputationRepository instantiates the postgres repository.
func NewReputationRepository(pool *pgxpool.Pool) ReputationRepository {
	return &reputationRepository{pool: pool}
}

func (r *reputationRepository) Record(ctx context.Context, userID string, stars int, comment string, at time.Time) (*domain.ReputationRecord, error) {
	const query = `
        INSERT INTO reputation (user_id, total_stars, count, comments, updated_at)
        VALUES ($1, $2, 1, ARRAY[$3::text], $4)
        ON CONFLICT (user_id) DO UPDATE SET
            total_stars = reputation.total_stars + EXCLUDED.total_stars,
            count = reputation.count + 1,
            comments = array_append(reputation.comments, $3::text),
            updated_at = EXCLUDED.updated_at
        RETURNING user_id, total_stars, count, comments, updated_at`
	var rec domain.ReputationRecord
	if err := r.pool.QueryRow(ctx, query, userID, stars, comment, at).Scan(
		&rec.UserID,
		&rec.TotalStars,
		&rec.Count,
		&rec.Comments,
		&rec.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("reputation: record: %w", err)
	}
	return &rec, nil
}

func (r *reputationRepository) Get(ctx context.Context, userID string) (*domain.ReputationRecord, error) {
	const query = `
        SELECT user_id, total_stars, count, comments, updated_at
        FROM reputation WHERE user_id=$1`
	var rec domain.ReputationRecord
	if err := r.pool.QueryRow(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.TotalStars,
		&rec.Count,
		&rec.Comments,
		&rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("reputation", map[string]any{"user_id": userID})
		}
		return nil, fmt.Errorf("reputation: get: %w", err)
	}
	return &rec, nil
}

func (r *reputationRepository) Top(ctx context.Context, limit int) ([]domain.ReputationRecord, error) {
	const query = `
        SELECT user_id, total_stars, count, updated_at
        FROM reputation
        WHERE count > 0
        ORDER BY total_stars::float8 / count DESC, count DESC, user_id ASC
        LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("reputation: top: %w", err)
	}
	defer rows.Close()

	var out []domain.ReputationRecord
	for rows.Next() {
		var rec domain.ReputationRecord
		if err := rows.Scan(&rec.UserID, &rec.TotalStars, &rec.Count, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("reputation: top scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
