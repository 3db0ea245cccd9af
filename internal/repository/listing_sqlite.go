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

type sqliteListingRepository struct {
	db *sql.DB
}

// NewSQLiteListingRepository instantiates the embedded-store repository.
func NewSQLiteListingRepository(db *sql.DB) ListingRepository {
	return &sqliteListingRepository{db: db}
}

func (r *sqliteListingRepository) Create(ctx context.Context, l *domain.Listing) error {
	ids, err := json.Marshal(domain.DedupeMessageIDs(l.Location.MessageIDs))
	if err != nil {
		return fmt.Errorf("listing: encode message ids: %w", err)
	}
	const query = `
        INSERT INTO listings (id, owner_id, kind, channel_id, message_ids, created_at, last_bumped_at,
                              last_interaction_at, payload, active)
        VALUES (?,?,?,?,?,?,?,?,?,?)`
	_, err = r.db.ExecContext(ctx, query,
		l.ID,
		l.OwnerID,
		string(l.Kind),
		l.Location.ChannelID,
		string(ids),
		l.CreatedAt.UTC().UnixNano(),
		l.LastBumpedAt.UTC().UnixNano(),
		l.LastInteractionAt.UTC().UnixNano(),
		l.Payload,
		boolToInt(l.Active),
	)
	if err != nil {
		return fmt.Errorf("listing: create: %w", err)
	}
	return nil
}

func (r *sqliteListingRepository) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id=?`
	l, err := scanSQLiteListing(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, listingNotFound(id)
		}
		return nil, fmt.Errorf("listing: get: %w", err)
	}
	return l, nil
}

func (r *sqliteListingRepository) ListByOwner(ctx context.Context, ownerID string, activeOnly bool) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE owner_id=?`
	if activeOnly {
		query += ` AND active=1`
	}
	query += ` ORDER BY created_at DESC`
	return r.list(ctx, query, ownerID)
}

func (r *sqliteListingRepository) Bump(ctx context.Context, id string, now, notAfter time.Time) (*domain.Listing, error) {
	query := `
        UPDATE listings SET last_bumped_at=?2, last_interaction_at=MAX(last_interaction_at, ?2)
        WHERE id=?1 AND active=1 AND last_bumped_at <= ?3
        RETURNING ` + listingColumns
	l, err := scanSQLiteListing(r.db.QueryRowContext(ctx, query, id, now.UTC().UnixNano(), notAfter.UTC().UnixNano()))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("listing: bump: %w", err)
	}
	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, bumpRejection(current)
}

func (r *sqliteListingRepository) Touch(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE listings SET last_interaction_at=MAX(last_interaction_at, ?2) WHERE id=?1`, id, now.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("listing: touch: %w", err)
	}
	return requireRow(res, id)
}

func (r *sqliteListingRepository) UpdatePayload(ctx context.Context, id string, payload []byte, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE listings SET payload=?2, last_interaction_at=MAX(last_interaction_at, ?3) WHERE id=?1 AND active=1`,
		id, payload, now.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("listing: update payload: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return apperrors.NewInvalidState("listing is no longer active", "INACTIVE")
}

func (r *sqliteListingRepository) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE listings SET active=0 WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("listing: deactivate: %w", err)
	}
	return requireRow(res, id)
}

func (r *sqliteListingRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings
        WHERE active=1 AND created_at < ?1 AND last_interaction_at < ?1
        ORDER BY created_at ASC`
	return r.list(ctx, query, cutoff.UTC().UnixNano())
}

func (r *sqliteListingRepository) list(ctx context.Context, query string, args ...any) ([]domain.Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing: list: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanSQLiteListing(rows)
		if err != nil {
			return nil, fmt.Errorf("listing: list scan: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func scanSQLiteListing(s scannable) (*domain.Listing, error) {
	var (
		l                           domain.Listing
		kind, ids                   string
		created, bumped, interacted int64
		active                      int
	)
	if err := s.Scan(
		&l.ID,
		&l.OwnerID,
		&kind,
		&l.Location.ChannelID,
		&ids,
		&created,
		&bumped,
		&interacted,
		&l.Payload,
		&active,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &l.Location.MessageIDs); err != nil {
		return nil, fmt.Errorf("decode message ids: %w", err)
	}
	l.Kind = domain.ListingKind(kind)
	l.CreatedAt = fromNanos(created)
	l.LastBumpedAt = fromNanos(bumped)
	l.LastInteractionAt = fromNanos(interacted)
	l.Active = active != 0
	return &l, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return listingNotFound(id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
