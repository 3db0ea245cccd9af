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

// ListingRepository persists listing records.
type ListingRepository interface {
	Create(ctx context.Context, listing *domain.Listing) error
	GetByID(ctx context.Context, id string) (*domain.Listing, error)
	ListByOwner(ctx context.Context, ownerID string, activeOnly bool) ([]domain.Listing, error)
	// Bump succeeds only for an active listing last bumped at or before notAfter.
	Bump(ctx context.Context, id string, now, notAfter time.Time) (*domain.Listing, error)
	Touch(ctx context.Context, id string, now time.Time) error
	UpdatePayload(ctx context.Context, id string, payload []byte, now time.Time) error
	Deactivate(ctx context.Context, id string) error
	// ListExpired returns active listings created and last touched before cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]domain.Listing, error)
}

type listingRepository struct {
	pool *pgxpool.Pool
}

// NewListingRepository instantiates the postgres repository.
func NewListingRepository(pool *pgxpool.Pool) ListingRepository {
	return &listingRepository{pool: pool}
}

const listingColumns = `id, owner_id, kind, channel_id, message_ids, created_at, last_bumped_at,
               last_interaction_at, payload, active`

func (r *listingRepository) Create(ctx context.Context, l *domain.Listing) error {
	const query = `
        INSERT INTO listings (id, owner_id, kind, channel_id, message_ids, created_at, last_bumped_at,
                              last_interaction_at, payload, active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.pool.Exec(ctx, query,
		l.ID,
		l.OwnerID,
		l.Kind,
		l.Location.ChannelID,
		domain.DedupeMessageIDs(l.Location.MessageIDs),
		l.CreatedAt,
		l.LastBumpedAt,
		l.LastInteractionAt,
		l.Payload,
		l.Active,
	)
	if err != nil {
		return fmt.Errorf("listing: create: %w", err)
	}
	return nil
}

func (r *listingRepository) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id=$1`
	l, err := scanListing(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, listingNotFound(id)
		}
		return nil, fmt.Errorf("listing: get: %w", err)
	}
	return l, nil
}

func (r *listingRepository) ListByOwner(ctx context.Context, ownerID string, activeOnly bool) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE owner_id=$1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY created_at DESC`
	return r.list(ctx, query, ownerID)
}

func (r *listingRepository) Bump(ctx context.Context, id string, now, notAfter time.Time) (*domain.Listing, error) {
	query := `
        UPDATE listings SET last_bumped_at=$2, last_interaction_at=GREATEST(last_interaction_at, $2)
        WHERE id=$1 AND active AND last_bumped_at <= $3
        RETURNING ` + listingColumns
	l, err := scanListing(r.pool.QueryRow(ctx, query, id, now, notAfter))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("listing: bump: %w", err)
	}
	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, bumpRejection(current)
}

func (r *listingRepository) Touch(ctx context.Context, id string, now time.Time) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE listings SET last_interaction_at=GREATEST(last_interaction_at, $2) WHERE id=$1`, id, now)
	if err != nil {
		return fmt.Errorf("listing: touch: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return listingNotFound(id)
	}
	return nil
}

func (r *listingRepository) UpdatePayload(ctx context.Context, id string, payload []byte, now time.Time) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE listings SET payload=$2, last_interaction_at=GREATEST(last_interaction_at, $3) WHERE id=$1 AND active`,
		id, payload, now)
	if err != nil {
		return fmt.Errorf("listing: update payload: %w", err)
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return apperrors.NewInvalidState("listing is no longer active", "INACTIVE")
}

func (r *listingRepository) Deactivate(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE listings SET active=FALSE WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("listing: deactivate: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return listingNotFound(id)
	}
	return nil
}

func (r *listingRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings
        WHERE active AND created_at < $1 AND last_interaction_at < $1
        ORDER BY created_at ASC`
	return r.list(ctx, query, cutoff)
}

func (r *listingRepository) list(ctx context.Context, query string, args ...any) ([]domain.Listing, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing: list: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("listing: list scan: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanListing(s scannable) (*domain.Listing, error) {
	var l domain.Listing
	if err := s.Scan(
		&l.ID,
		&l.OwnerID,
		&l.Kind,
		&l.Location.ChannelID,
		&l.Location.MessageIDs,
		&l.CreatedAt,
		&l.LastBumpedAt,
		&l.LastInteractionAt,
		&l.Payload,
		&l.Active,
	); err != nil {
		return nil, err
	}
	return &l, nil
}

func listingNotFound(id string) error {
	return apperrors.NewNotFound("listing", map[string]any{"listing_id": id})
}

// bumpRejection explains why a conditional bump matched no row.
func bumpRejection(current *domain.Listing) error {
	if !current.Active {
		return apperrors.NewInvalidState("listing is no longer active", "INACTIVE")
	}
	return apperrors.NewCooldownActive(current.BumpAvailableAt())
}
