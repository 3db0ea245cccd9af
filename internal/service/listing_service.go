package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/tradebot/internal/domain"
	"github.com/spec-kit/tradebot/internal/events"
	"github.com/spec-kit/tradebot/internal/repository"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

// ListingService tracks posted listings for bump, edit and expiry.
type ListingService struct {
	repo       repository.ListingRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// ListingDependencies bundles collaborators for the listing service.
type ListingDependencies struct {
	Repo       repository.ListingRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// Clock overrides time.Now.
	Clock func() time.Time
}

// ListingCreateInput describes a freshly posted listing.
type ListingCreateInput struct {
	OwnerID  string
	Kind     domain.ListingKind
	Location domain.ListingLocation
	Payload  []byte
}

// NewListingService constructs the service.
func NewListingService(deps ListingDependencies) *ListingService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ListingService{
		repo:       deps.Repo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        clock,
	}
}

// Create registers a listing and returns it with its assigned id.
func (s *ListingService) Create(ctx context.Context, input ListingCreateInput) (*domain.Listing, error) {
	details := map[string]any{}
	if strings.TrimSpace(input.OwnerID) == "" {
		details["owner_id"] = "required"
	}
	if !input.Kind.Valid() {
		details["kind"] = "must be ACCOUNT or GOLD"
	}
	if strings.TrimSpace(input.Location.ChannelID) == "" {
		details["channel_id"] = "required"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid listing", details)
	}

	now := s.now().UTC()
	listing := &domain.Listing{
		ID:      uuid.NewString(),
		OwnerID: input.OwnerID,
		Kind:    input.Kind,
		Location: domain.ListingLocation{
			ChannelID:  input.Location.ChannelID,
			MessageIDs: domain.DedupeMessageIDs(input.Location.MessageIDs),
		},
		CreatedAt:         now,
		LastBumpedAt:      now,
		LastInteractionAt: now,
		Payload:           input.Payload,
		Active:            true,
	}
	if err := s.repo.Create(ctx, listing); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.New(events.EventListingCreated, listing.ID, listing.OwnerID, events.ListingPayload{
		OwnerID: listing.OwnerID,
		Kind:    listing.Kind,
	}))
	return listing, nil
}

// Get returns a listing by id.
func (s *ListingService) Get(ctx context.Context, id string) (*domain.Listing, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByOwner returns the owner's listings, newest first.
func (s *ListingService) ListByOwner(ctx context.Context, ownerID string, activeOnly bool) ([]domain.Listing, error) {
	return s.repo.ListByOwner(ctx, ownerID, activeOnly)
}

// Bump refreshes a listing's recency at most once per cooldown period.
func (s *ListingService) Bump(ctx context.Context, id string) (*domain.Listing, error) {
	now := s.now().UTC()
	listing, err := s.repo.Bump(ctx, id, now, now.Add(-domain.BumpCooldown))
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.New(events.EventListingBumped, listing.ID, listing.OwnerID, events.ListingPayload{
		OwnerID: listing.OwnerID,
		Kind:    listing.Kind,
	}))
	return listing, nil
}

// Touch records a user interaction without the bump cooldown.
func (s *ListingService) Touch(ctx context.Context, id string) error {
	return s.repo.Touch(ctx, id, s.now().UTC())
}

// UpdatePayload replaces the listing content; editing counts as an interaction.
func (s *ListingService) UpdatePayload(ctx context.Context, id string, payload []byte) error {
	return s.repo.UpdatePayload(ctx, id, payload, s.now().UTC())
}

// Deactivate retires a listing permanently. Repeated calls are no-ops.
func (s *ListingService) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.publishEvent(ctx, events.New(events.EventListingDeactivated, id, "", nil))
	return nil
}

// BumpAsOwner bumps on behalf of userID, who must own the listing.
func (s *ListingService) BumpAsOwner(ctx context.Context, id, userID string) (*domain.Listing, error) {
	if err := s.requireOwner(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.Bump(ctx, id)
}

// UpdatePayloadAsOwner edits the listing on behalf of its owner.
func (s *ListingService) UpdatePayloadAsOwner(ctx context.Context, id, userID string, payload []byte) error {
	if err := s.requireOwner(ctx, id, userID); err != nil {
		return err
	}
	return s.UpdatePayload(ctx, id, payload)
}

// DeactivateAsOwner retires the listing on behalf of its owner.
func (s *ListingService) DeactivateAsOwner(ctx context.Context, id, userID string) error {
	if err := s.requireOwner(ctx, id, userID); err != nil {
		return err
	}
	return s.Deactivate(ctx, id)
}

func (s *ListingService) requireOwner(ctx context.Context, id, userID string) error {
	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if userID == "" || listing.OwnerID != userID {
		return apperrors.NewNotOwner(userID)
	}
	return nil
}

// ScanExpired returns active listings neither created nor touched within window.
func (s *ListingService) ScanExpired(ctx context.Context, window time.Duration) ([]domain.Listing, error) {
	if window <= 0 {
		window = domain.DefaultRetention
	}
	return s.repo.ListExpired(ctx, s.now().UTC().Add(-window))
}

func (s *ListingService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}
