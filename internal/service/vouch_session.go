package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/tradebot/internal/domain"
	"github.com/spec-kit/tradebot/internal/events"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

// VouchSession collects one rating from each participant of a completed trade.
type VouchSession struct {
	ticket       *TicketSession
	ticketID     string
	channelID    string
	participants [2]string

	mu       sync.Mutex
	ratings  map[string]domain.Rating
	order    []string
	finished bool
}

func newVouchSession(t *TicketSession) *VouchSession {
	return &VouchSession{
		ticket:       t,
		ticketID:     t.ticket.ID,
		channelID:    t.ticket.ChannelID,
		participants: t.ticket.Participants,
		ratings:      make(map[string]domain.Rating, 2),
	}
}

func (v *VouchSession) partnerOf(userID string) (string, bool) {
	switch userID {
	case "":
		return "", false
	case v.participants[0]:
		return v.participants[1], true
	case v.participants[1]:
		return v.participants[0], true
	}
	return "", false
}

// Submit stores userID's rating of their trade partner and records it in the
// reputation store. A failed record leaves the session unchanged so the user
// may retry. The second rating finishes the session.
func (v *VouchSession) Submit(ctx context.Context, userID string, stars int, comment string) (*domain.Rating, error) {
	r := v.ticket.registry

	v.mu.Lock()
	recipient, ok := v.partnerOf(userID)
	if !ok {
		v.mu.Unlock()
		return nil, apperrors.NewNotAParticipant(userID)
	}
	if !domain.ValidStars(stars) {
		v.mu.Unlock()
		return nil, apperrors.NewInvalidRating(stars)
	}
	if _, dup := v.ratings[userID]; dup {
		v.mu.Unlock()
		return nil, apperrors.NewDuplicateSubmission(userID)
	}

	comment = domain.NormalizeComment(comment)
	if _, err := r.reputation.Record(ctx, recipient, stars, comment); err != nil {
		v.mu.Unlock()
		return nil, fmt.Errorf("record vouch: %w", err)
	}
	rating := domain.Rating{
		RaterID:     userID,
		RecipientID: recipient,
		Stars:       stars,
		Comment:     comment,
		SubmittedAt: r.now().UTC(),
	}
	v.ratings[userID] = rating
	v.order = append(v.order, userID)
	complete := len(v.ratings) == len(v.participants) && !v.finished
	if complete {
		v.finished = true
	}
	v.mu.Unlock()

	r.notify(ctx, v.channelID, fmt.Sprintf("✅ <@%s> submitted their vouch.", userID))
	if complete {
		v.finish(ctx)
	}
	return &rating, nil
}

// Resolve applies the outcome of a rating prompt. A timed out prompt leaves
// the session unresolved and returns a nil rating.
func (v *VouchSession) Resolve(ctx context.Context, userID string, outcome domain.RatingOutcome) (*domain.Rating, error) {
	switch outcome.Kind {
	case domain.RatingSubmitted:
		return v.Submit(ctx, userID, outcome.Stars, outcome.Comment)
	case domain.RatingTimedOut:
		if _, ok := v.partnerOf(userID); !ok {
			return nil, apperrors.NewNotAParticipant(userID)
		}
		v.ticket.registry.logger.Info("rating prompt timed out",
			zap.String("ticket_id", v.ticketID),
			zap.String("user_id", userID))
		return nil, nil
	default:
		return nil, apperrors.NewValidationError("unknown rating outcome", map[string]any{"kind": outcome.Kind})
	}
}

// Finished reports whether both ratings are in.
func (v *VouchSession) Finished() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.finished
}

// Ratings returns submitted ratings in submission order.
func (v *VouchSession) Ratings() []domain.Rating {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Rating, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.ratings[id])
	}
	return out
}

// Pending lists participants who have not rated yet.
func (v *VouchSession) Pending() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	for _, id := range v.participants {
		if _, ok := v.ratings[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// finish runs once, from the submission that completed the session.
func (v *VouchSession) finish(ctx context.Context) {
	r := v.ticket.registry
	summary := domain.VouchSummary{
		TicketID:   v.ticketID,
		ChannelID:  v.channelID,
		Ratings:    v.Ratings(),
		FinishedAt: r.now().UTC(),
	}

	r.notify(ctx, r.settings.FeedChannelID, summary.Render())
	r.notify(ctx, v.channelID, "✅ Both vouches received. Thank you for trading!")
	r.publish(ctx, events.New(events.EventVouchFinished, v.ticketID, "", events.VouchFinishedPayload{
		ChannelID: v.channelID,
		Ratings:   summary.Ratings,
	}))

	if err := v.ticket.onVouchFinished(ctx); err != nil {
		r.logger.Error("archive after vouching failed",
			zap.String("ticket_id", v.ticketID),
			zap.String("participants", strings.Join(v.participants[:], ",")),
			zap.Error(err))
	}
}
