package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/tradebot/internal/config"
	"github.com/spec-kit/tradebot/internal/domain"
	"github.com/spec-kit/tradebot/internal/events"
	"github.com/spec-kit/tradebot/internal/gateway"
	"github.com/spec-kit/tradebot/internal/persistence"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

// SessionSettings parameterizes every ticket the registry opens.
type SessionSettings struct {
	ArchiveChannelID   string
	FeedChannelID      string
	Disposition        domain.ListingDisposition
	DispositionTimeout time.Duration
	ArchiveGuardTTL    time.Duration
}

// SettingsFromConfig derives session settings from runtime configuration.
func SettingsFromConfig(cfg *config.Config) SessionSettings {
	return SessionSettings{
		ArchiveChannelID:   cfg.Gateway.ArchiveChannelID,
		FeedChannelID:      cfg.Gateway.ReputationFeedChannel,
		Disposition:        domain.ParseListingDisposition(cfg.Ticket.ListingDisposition),
		DispositionTimeout: cfg.Ticket.DispositionTimeout(),
		ArchiveGuardTTL:    cfg.Ticket.ArchiveGuardTTL(),
	}
}

// SessionDependencies bundles collaborators shared by all ticket sessions.
type SessionDependencies struct {
	Gateway    gateway.Gateway
	Reputation ReputationRecorder
	Listings   *ListingService
	Guard      persistence.Guard
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Settings   SessionSettings
	// Clock overrides time.Now.
	Clock func() time.Time
}

// OpenTicketInput describes a trade ticket the gateway just created.
type OpenTicketInput struct {
	ChannelID    string
	Participants [2]string
	// ListerID defaults to the listing owner when a listing is attached.
	ListerID  string
	ListingID string
}

// SessionRegistry owns live ticket sessions keyed by channel id.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*TicketSession

	gw         gateway.Gateway
	reputation ReputationRecorder
	listings   *ListingService
	guard      persistence.Guard
	dispatcher events.Dispatcher
	logger     *zap.Logger
	settings   SessionSettings
	now        func() time.Time
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry(deps SessionDependencies) *SessionRegistry {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	guard := deps.Guard
	if guard == nil {
		guard = persistence.NewMemoryGuard()
	}
	settings := deps.Settings
	if settings.Disposition == "" {
		settings.Disposition = domain.DispositionRemove
	}
	if settings.DispositionTimeout <= 0 {
		settings.DispositionTimeout = 5 * time.Minute
	}
	if settings.ArchiveGuardTTL <= 0 {
		settings.ArchiveGuardTTL = 24 * time.Hour
	}
	return &SessionRegistry{
		sessions:   make(map[string]*TicketSession),
		gw:         deps.Gateway,
		reputation: deps.Reputation,
		listings:   deps.Listings,
		guard:      guard,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		settings:   settings,
		now:        clock,
	}
}

// Open creates the session for a freshly created ticket channel.
func (r *SessionRegistry) Open(ctx context.Context, input OpenTicketInput) (*TicketSession, error) {
	channelID := strings.TrimSpace(input.ChannelID)
	a, b := strings.TrimSpace(input.Participants[0]), strings.TrimSpace(input.Participants[1])
	if channelID == "" || a == "" || b == "" {
		return nil, apperrors.NewValidationError("channel id and two participants are required", nil)
	}
	if a == b {
		return nil, apperrors.NewInvalidState("a ticket needs two distinct participants", string(domain.TicketStateOpen))
	}

	ticket := domain.Ticket{
		ID:           uuid.NewString(),
		ChannelID:    channelID,
		Participants: [2]string{a, b},
		ListerID:     strings.TrimSpace(input.ListerID),
		State:        domain.TicketStateOpen,
		CreatedAt:    r.now().UTC(),
	}

	if input.ListingID != "" {
		if r.listings == nil {
			return nil, apperrors.NewInvalidState("listings are not available", string(domain.TicketStateOpen))
		}
		listing, err := r.listings.Get(ctx, input.ListingID)
		if err != nil {
			return nil, err
		}
		if !listing.Active {
			return nil, apperrors.NewInvalidState("listing is no longer active", "INACTIVE")
		}
		ticket.Listing = &domain.ListingRef{ListingID: listing.ID, Location: listing.Location}
		if ticket.ListerID == "" {
			ticket.ListerID = listing.OwnerID
		}
	}
	if ticket.ListerID != "" && ticket.ListerID != a && ticket.ListerID != b {
		return nil, apperrors.NewNotAParticipant(ticket.ListerID)
	}

	r.mu.Lock()
	if _, exists := r.sessions[channelID]; exists {
		r.mu.Unlock()
		return nil, apperrors.NewConflict("ticket already open for channel", map[string]any{"channel_id": channelID})
	}
	session := newTicketSession(r, ticket)
	r.sessions[channelID] = session
	r.mu.Unlock()

	if ticket.Listing != nil {
		if err := r.listings.Touch(ctx, ticket.Listing.ListingID); err != nil {
			r.logger.Warn("failed to touch listing", zap.String("listing_id", ticket.Listing.ListingID), zap.Error(err))
		}
	}

	payload := events.TicketOpenedPayload{ChannelID: channelID, Participants: ticket.Participants}
	if ticket.Listing != nil {
		payload.ListingID = ticket.Listing.ListingID
	}
	r.publish(ctx, events.New(events.EventTicketOpened, ticket.ID, a, payload))
	return session, nil
}

// Get resolves the session for a channel.
func (r *SessionRegistry) Get(channelID string) (*TicketSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[channelID]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"channel_id": channelID})
	}
	return session, nil
}

// Tickets snapshots every live session, oldest first.
func (r *SessionRegistry) Tickets() []domain.Ticket {
	r.mu.RLock()
	out := make([]domain.Ticket, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len reports the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// HandleParticipantAction routes a button press to the channel's session.
func (r *SessionRegistry) HandleParticipantAction(ctx context.Context, channelID, userID string, action domain.TicketAction) (domain.Ticket, error) {
	session, err := r.Get(channelID)
	if err != nil {
		return domain.Ticket{}, err
	}
	switch action {
	case domain.TicketActionComplete:
		err = session.MarkComplete(ctx, userID)
	case domain.TicketActionCancel:
		err = session.Cancel(ctx, userID)
	case domain.TicketActionResumeVouch:
		_, err = session.ResumeVouch(ctx, userID)
	case domain.TicketActionArchive:
		err = session.RequestArchive(ctx, userID)
	default:
		err = apperrors.NewValidationError(fmt.Sprintf("unknown action %q", action), nil)
	}
	return session.Snapshot(), err
}

// HandleRating routes a rating outcome to the channel's vouch session.
// A nil rating with a nil error means the prompt timed out.
func (r *SessionRegistry) HandleRating(ctx context.Context, channelID, userID string, outcome domain.RatingOutcome) (*domain.Rating, error) {
	session, err := r.Get(channelID)
	if err != nil {
		return nil, err
	}
	vouch, err := session.vouchFor(userID)
	if err != nil {
		return nil, err
	}
	return vouch.Resolve(ctx, userID, outcome)
}

// HandleListingDecision routes the lister's answer to the disposition prompt.
func (r *SessionRegistry) HandleListingDecision(ctx context.Context, channelID, userID string, remove bool) error {
	session, err := r.Get(channelID)
	if err != nil {
		return err
	}
	return session.DecideListing(ctx, userID, remove)
}

func (r *SessionRegistry) remove(channelID string, session *TicketSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[channelID]; ok && current == session {
		delete(r.sessions, channelID)
	}
}

// retireListing deletes every message of the listing once and deactivates it.
func (r *SessionRegistry) retireListing(ctx context.Context, ref *domain.ListingRef) {
	for _, msg := range gateway.Refs(ref.Location) {
		if err := r.gw.DeleteMessage(ctx, msg); err != nil {
			r.logger.Warn("failed to delete listing message",
				zap.String("listing_id", ref.ListingID),
				zap.String("message_id", msg.MessageID),
				zap.Error(err))
		}
	}
	if r.listings == nil {
		return
	}
	if err := r.listings.Deactivate(ctx, ref.ListingID); err != nil {
		r.logger.Warn("failed to deactivate listing", zap.String("listing_id", ref.ListingID), zap.Error(err))
	}
}

// notify posts a best-effort message into a channel.
func (r *SessionRegistry) notify(ctx context.Context, channelID, content string) {
	if channelID == "" {
		return
	}
	if err := r.gw.SendMessage(ctx, channelID, gateway.OutboundMessage{Content: content}); err != nil {
		r.logger.Warn("failed to send message", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (r *SessionRegistry) publish(ctx context.Context, event events.Event) {
	if r.dispatcher == nil {
		return
	}
	if err := r.dispatcher.Publish(ctx, event); err != nil {
		r.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}
