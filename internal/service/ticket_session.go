package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/tradebot/internal/domain"
	"github.com/spec-kit/tradebot/internal/events"
	"github.com/spec-kit/tradebot/internal/gateway"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

const archiveGuardPrefix = "ticket:archive:"

// TicketSession is the lifecycle of one trade ticket. All state changes happen
// under mu; gateway I/O happens outside it.
type TicketSession struct {
	registry *SessionRegistry

	mu        sync.Mutex
	ticket    domain.Ticket
	vouch     *VouchSession
	archiving bool

	awaitingDecision bool
	decided          bool
	removeListing    bool
	decisionTimer    *time.Timer
}

func newTicketSession(r *SessionRegistry, ticket domain.Ticket) *TicketSession {
	return &TicketSession{registry: r, ticket: ticket}
}

// Snapshot returns a copy of the ticket state.
func (s *TicketSession) Snapshot() domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *TicketSession) snapshotLocked() domain.Ticket {
	t := s.ticket
	t.Completions = append([]string(nil), s.ticket.Completions...)
	if s.ticket.Listing != nil {
		ref := *s.ticket.Listing
		ref.Location.MessageIDs = append([]string(nil), s.ticket.Listing.Location.MessageIDs...)
		t.Listing = &ref
	}
	if s.ticket.ArchivedAt != nil {
		at := *s.ticket.ArchivedAt
		t.ArchivedAt = &at
	}
	return t
}

// IsParticipant reports whether userID is one of the two traders.
func (s *TicketSession) IsParticipant(userID string) bool {
	return userID != "" && (s.ticket.Participants[0] == userID || s.ticket.Participants[1] == userID)
}

// Vouch returns the rating session, or nil before both sides completed.
func (s *TicketSession) Vouch() *VouchSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vouch
}

// MarkComplete acknowledges completion for userID. The second distinct
// acknowledgment moves the ticket to BothCompleted and starts vouching.
func (s *TicketSession) MarkComplete(ctx context.Context, userID string) error {
	s.mu.Lock()
	if !s.IsParticipant(userID) {
		s.mu.Unlock()
		return apperrors.NewNotAParticipant(userID)
	}
	if s.ticket.State.Terminal() {
		state := s.ticket.State
		s.mu.Unlock()
		return apperrors.NewInvalidState("ticket is closed", string(state))
	}
	for _, done := range s.ticket.Completions {
		if done == userID {
			s.mu.Unlock()
			return apperrors.NewAlreadyCompleted(userID)
		}
	}

	s.ticket.Completions = append(s.ticket.Completions, userID)
	var started *VouchSession
	if len(s.ticket.Completions) == len(s.ticket.Participants) {
		s.ticket.State = domain.TicketStateBothCompleted
		s.ticket.VouchStarted = true
		s.vouch = newVouchSession(s)
		started = s.vouch
	} else {
		s.ticket.State = domain.TicketStateAwaitingSecondCompletion
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	r := s.registry
	r.publish(ctx, events.New(events.EventTicketCompleted, snap.ID, userID, events.TicketStatePayload{
		ChannelID: snap.ChannelID,
		State:     snap.State,
	}))
	if started == nil {
		r.notify(ctx, snap.ChannelID, fmt.Sprintf("<@%s> marked the trade as complete. Waiting for the other participant.", userID))
		return nil
	}
	r.publish(ctx, events.New(events.EventVouchStarted, snap.ID, userID, events.TicketStatePayload{
		ChannelID: snap.ChannelID,
		State:     snap.State,
	}))
	r.notify(ctx, snap.ChannelID, fmt.Sprintf(
		"✅ Both <@%s> and <@%s> marked the trade as complete. Please rate each other from 1 to 5 stars.",
		snap.Participants[0], snap.Participants[1]))
	return nil
}

// Cancel aborts the trade before both sides completed and archives the ticket
// without vouching.
func (s *TicketSession) Cancel(ctx context.Context, userID string) error {
	s.mu.Lock()
	if !s.IsParticipant(userID) {
		s.mu.Unlock()
		return apperrors.NewNotAParticipant(userID)
	}
	if !s.ticket.State.Cancellable() {
		state := s.ticket.State
		s.mu.Unlock()
		return apperrors.NewInvalidState("ticket can no longer be cancelled", string(state))
	}
	s.ticket.State = domain.TicketStateCancelled
	snap := s.snapshotLocked()
	s.mu.Unlock()

	r := s.registry
	r.publish(ctx, events.New(events.EventTicketCancelled, snap.ID, userID, events.TicketStatePayload{
		ChannelID: snap.ChannelID,
		State:     snap.State,
	}))
	r.notify(ctx, snap.ChannelID, fmt.Sprintf("❌ Trade cancelled by <@%s>. Archiving this ticket.", userID))

	if err := s.Archive(ctx); err != nil {
		return fmt.Errorf("archive cancelled ticket: %w", err)
	}
	return nil
}

// ResumeVouch hands back the running vouch session so a participant who
// dismissed the rating prompt can reopen it.
func (s *TicketSession) ResumeVouch(_ context.Context, userID string) (*VouchSession, error) {
	vouch, err := s.vouchFor(userID)
	if err != nil {
		return nil, err
	}
	if vouch.Finished() {
		return nil, apperrors.NewInvalidState("vouching already finished", string(domain.TicketStateBothCompleted))
	}
	return vouch, nil
}

func (s *TicketSession) vouchFor(userID string) (*VouchSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.IsParticipant(userID) {
		return nil, apperrors.NewNotAParticipant(userID)
	}
	if s.vouch == nil {
		return nil, apperrors.NewInvalidState("vouching has not started", string(s.ticket.State))
	}
	return s.vouch, nil
}

// DecideListing records the lister's answer to the disposition prompt and
// proceeds to archival.
func (s *TicketSession) DecideListing(ctx context.Context, userID string, remove bool) error {
	s.mu.Lock()
	if userID == "" || userID != s.ticket.ListerID {
		s.mu.Unlock()
		return apperrors.NewNotAParticipant(userID)
	}
	if !s.awaitingDecision {
		state := s.ticket.State
		s.mu.Unlock()
		return apperrors.NewInvalidState("no listing decision pending", string(state))
	}
	s.resolveDecisionLocked(remove)
	s.mu.Unlock()

	return s.Archive(ctx)
}

func (s *TicketSession) resolveDecisionLocked(remove bool) {
	s.awaitingDecision = false
	s.decided = true
	s.removeListing = remove
	if s.decisionTimer != nil {
		s.decisionTimer.Stop()
		s.decisionTimer = nil
	}
}

// onVouchFinished moves a vouched ticket on to listing disposition and archival.
func (s *TicketSession) onVouchFinished(ctx context.Context) error {
	r := s.registry
	s.mu.Lock()
	if s.ticket.State != domain.TicketStateBothCompleted || s.archiving || s.awaitingDecision {
		s.mu.Unlock()
		return nil
	}
	if r.settings.Disposition == domain.DispositionAsk && s.ticket.Listing != nil && !s.decided {
		s.awaitingDecision = true
		s.decisionTimer = time.AfterFunc(r.settings.DispositionTimeout, s.decisionTimedOut)
		snap := s.snapshotLocked()
		s.mu.Unlock()

		r.notify(ctx, snap.ChannelID, fmt.Sprintf(
			"<@%s> the trade is complete. Would you like to remove your listing? Your listing is kept if you do not answer within %s.",
			snap.ListerID, r.settings.DispositionTimeout))
		return nil
	}
	s.mu.Unlock()
	return s.Archive(ctx)
}

func (s *TicketSession) decisionTimedOut() {
	s.mu.Lock()
	if !s.awaitingDecision {
		s.mu.Unlock()
		return
	}
	s.resolveDecisionLocked(false)
	id := s.ticket.ID
	s.mu.Unlock()

	r := s.registry
	r.logger.Info("listing decision timed out, keeping listing", zap.String("ticket_id", id))
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.Archive(ctx); err != nil {
		r.logger.Error("archive after decision timeout failed", zap.String("ticket_id", id), zap.Error(err))
	}
}

// shouldRemoveListingLocked applies the disposition policy.
func (s *TicketSession) shouldRemoveListingLocked() bool {
	if s.ticket.Listing == nil {
		return false
	}
	switch s.registry.settings.Disposition {
	case domain.DispositionKeep:
		return false
	case domain.DispositionAsk:
		return s.ticket.State == domain.TicketStateBothCompleted && s.decided && s.removeListing
	default:
		return true
	}
}

// RequestArchive is the participant archive action. A completed trade may
// only be archived once both ratings are in; the moderator route calls
// Archive directly.
func (s *TicketSession) RequestArchive(ctx context.Context, userID string) error {
	s.mu.Lock()
	if !s.IsParticipant(userID) {
		s.mu.Unlock()
		return apperrors.NewNotAParticipant(userID)
	}
	state := s.ticket.State
	vouch := s.vouch
	s.mu.Unlock()

	if state == domain.TicketStateBothCompleted && vouch != nil && !vouch.Finished() {
		return apperrors.NewInvalidState("ratings are still being collected", string(state))
	}
	return s.Archive(ctx)
}

// Archive exports the transcript, tears the channel down and closes the
// ticket. It runs at most once per ticket across instances; a failed
// transcript export or archive upload leaves the ticket retryable.
func (s *TicketSession) Archive(ctx context.Context) error {
	r := s.registry

	s.mu.Lock()
	state := s.ticket.State
	switch {
	case state == domain.TicketStateArchived:
		s.mu.Unlock()
		return apperrors.NewInvalidState("ticket already archived", string(state))
	case state != domain.TicketStateCancelled && state != domain.TicketStateBothCompleted:
		s.mu.Unlock()
		return apperrors.NewInvalidState("ticket must be completed or cancelled before archival", string(state))
	case s.archiving:
		s.mu.Unlock()
		return apperrors.NewInvalidState("archival already in progress", string(state))
	}
	s.archiving = true
	if s.awaitingDecision {
		s.resolveDecisionLocked(false)
	}
	removeListing := s.shouldRemoveListingLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logger := r.logger.With(zap.String("ticket_id", snap.ID), zap.String("channel_id", snap.ChannelID))
	guardKey := archiveGuardPrefix + snap.ID
	acquired, err := r.guard.Acquire(ctx, guardKey, r.settings.ArchiveGuardTTL)
	if err != nil {
		logger.Warn("archive guard unavailable, relying on local flag", zap.Error(err))
		acquired = true
	}
	if !acquired {
		s.finishArchive(snap)
		return apperrors.NewInvalidState("ticket already archived", string(domain.TicketStateArchived))
	}

	entries, err := r.gw.ExportTranscript(ctx, snap.ChannelID)
	if err != nil {
		s.abortArchive(guardKey)
		return fmt.Errorf("export transcript: %w", err)
	}
	transcript := gateway.File{
		Name: fmt.Sprintf("transcript-%s.txt", snap.ChannelID),
		Body: []byte(domain.RenderTranscript(entries)),
	}

	if r.settings.ArchiveChannelID != "" {
		msg := gateway.OutboundMessage{
			Content: fmt.Sprintf("Transcript for ticket <#%s> between <@%s> and <@%s> (%s).",
				snap.ChannelID, snap.Participants[0], snap.Participants[1], snap.State),
			Files: []gateway.File{transcript},
		}
		if err := r.gw.SendMessage(ctx, r.settings.ArchiveChannelID, msg); err != nil {
			s.abortArchive(guardKey)
			return fmt.Errorf("upload transcript: %w", err)
		}
	}

	for _, userID := range snap.Participants {
		dm := gateway.OutboundMessage{
			Content: fmt.Sprintf("Here is the transcript of your trade ticket <#%s>.", snap.ChannelID),
			Files:   []gateway.File{transcript},
		}
		if err := r.gw.SendDirect(ctx, userID, dm); err != nil {
			logger.Warn("failed to DM transcript", zap.String("user_id", userID), zap.Error(err))
			r.notify(ctx, snap.ChannelID, fmt.Sprintf("⚠️ Could not DM transcript to <@%s>.", userID))
		}
	}

	if removeListing {
		r.retireListing(ctx, snap.Listing)
	}

	if err := r.gw.DeleteChannel(ctx, snap.ChannelID); err != nil {
		logger.Warn("failed to delete ticket channel", zap.Error(err))
	}

	archived := s.finishArchive(snap)
	r.publish(ctx, events.New(events.EventTicketArchived, archived.ID, "", events.TicketStatePayload{
		ChannelID: archived.ChannelID,
		State:     archived.State,
	}))
	logger.Info("ticket archived", zap.Bool("listing_removed", removeListing))
	return nil
}

func (s *TicketSession) finishArchive(snap domain.Ticket) domain.Ticket {
	s.mu.Lock()
	now := s.registry.now().UTC()
	s.ticket.State = domain.TicketStateArchived
	s.ticket.ArchivedAt = &now
	s.archiving = false
	archived := s.snapshotLocked()
	s.mu.Unlock()

	s.registry.remove(snap.ChannelID, s)
	return archived
}

func (s *TicketSession) abortArchive(guardKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.registry.guard.Release(ctx, guardKey); err != nil {
		s.registry.logger.Warn("failed to release archive guard", zap.String("key", guardKey), zap.Error(err))
	}
	s.mu.Lock()
	s.archiving = false
	s.mu.Unlock()
}
