package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/tradebot/internal/domain"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

type sqliteReputationRepository struct {
	db *sql.DB
}

// NewSQLiteReputationRepository instantiates the embedded-store repository.
func NewSQLiteReputationRepository(db *sql.DB) ReputationRepository {
	return &sqliteReputationRepository{db: db}
}

func (r *sqliteReputationRepository) Record(ctx context.Context, userID string, stars int, comment string, at time.Time) (*domain.ReputationRecord, error) {
	const query = `
        INSERT INTO reputation (user_id, total_stars, count, comments, updated_at)
        VALUES (?1, ?2, 1, json_array(?3), ?4)
        ON CONFLICT(user_id) DO UPDATE SET
            total_stars = reputation.total_stars + excluded.total_stars,
            count = reputation.count + 1,
            comments = json_insert(reputation.comments, '$[#]', ?3),
            updated_at = excluded.updated_at
        RETURNING user_id, total_stars, count, comments, updated_at`
	rec, err := scanSQLiteReputation(r.db.QueryRowContext(ctx, query, userID, stars, comment, at.UTC().UnixNano()))
	if err != nil {
		return nil, fmt.Errorf("reputation: record: %w", err)
	}
	return rec, nil
}

func (r *sqliteReputationRepository) Get(ctx context.Context, userID string) (*domain.ReputationRecord, error) {
	const query = `
        SELECT user_id, total_stars, count, comments, updated_at
        FROM reputation WHERE user_id=?`
	rec, err := scanSQLiteReputation(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFound("reputation", map[string]any{"user_id": userID})
		}
		return nil, fmt.Errorf("reputation: get: %w", err)
	}
	return rec, nil
}

func (r *sqliteReputationRepository) Top(ctx context.Context, limit int) ([]domain.ReputationRecord, error) {
	const query = `
        SELECT user_id, total_stars, count, updated_at
        FROM reputation
        WHERE count > 0
        ORDER BY CAST(total_stars AS REAL) / count DESC, count DESC, user_id ASC
        LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("reputation: top: %w", err)
	}
	defer rows.Close()

	var out []domain.ReputationRecord
	for rows.Next() {
		var (
			rec     domain.ReputationRecord
			updated int64
		)
		if err := rows.Scan(&rec.UserID, &rec.TotalStars, &rec.Count, &updated); err != nil {
			return nil, fmt.Errorf("reputation: top scan: %w", err)
		}
		rec.UpdatedAt = fromNanos(updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSQLiteReputation(s scannable) (*domain.ReputationRecord, error) {
	var (
		rec      domain.ReputationRecord
		comments string
		updated  int64
	)
	if err := s.Scan(&rec.UserID, &rec.TotalStars, &rec.Count, &comments, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(comments), &rec.Comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	rec.UpdatedAt = fromNanos(updated)
	return &rec, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
