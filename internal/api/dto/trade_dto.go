package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/tradebot/internal/domain"
)

// OpenTicketRequest payload.
type OpenTicketRequest struct {
	ChannelID    string    `json:"channel_id"`
	Participants [2]string `json:"participants"`
	ListerID     string    `json:"lister_id"`
	ListingID    string    `json:"listing_id"`
}

// TicketActionRequest payload.
type TicketActionRequest struct {
	UserID string              `json:"user_id"`
	Action domain.TicketAction `json:"action"`
}

// RatingRequest payload. Outcome is "submitted" (default) or "timed_out".
type RatingRequest struct {
	UserID  string `json:"user_id"`
	Outcome string `json:"outcome"`
	Stars   int    `json:"stars"`
	Comment string `json:"comment"`
}

// ListingDecisionRequest payload.
type ListingDecisionRequest struct {
	UserID string `json:"user_id"`
	Remove bool   `json:"remove"`
}

// TicketResponse response.
type TicketResponse struct {
	ID           string             `json:"id"`
	ChannelID    string             `json:"channel_id"`
	Participants [2]string          `json:"participants"`
	ListerID     string             `json:"lister_id,omitempty"`
	ListingID    string             `json:"listing_id,omitempty"`
	State        domain.TicketState `json:"state"`
	Completions  []string           `json:"completions"`
	VouchStarted bool               `json:"vouch_started"`
	CreatedAt    time.Time          `json:"created_at"`
	ArchivedAt   *time.Time         `json:"archived_at,omitempty"`
}

// RatingResponse response.
type RatingResponse struct {
	RaterID     string    `json:"rater_id"`
	RecipientID string    `json:"recipient_id"`
	Stars       int       `json:"stars"`
	Comment     string    `json:"comment"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ReputationResponse response.
type ReputationResponse struct {
	UserID     string    `json:"user_id"`
	TotalStars int       `json:"total_stars"`
	Count      int       `json:"count"`
	Average    float64   `json:"average"`
	Comments   []string  `json:"comments,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ManualVouchRequest payload.
type ManualVouchRequest struct {
	UserID  string `json:"user_id"`
	Stars   int    `json:"stars"`
	Comment string `json:"comment"`
}

// CreateListingRequest payload.
type CreateListingRequest struct {
	OwnerID    string             `json:"owner_id"`
	Kind       domain.ListingKind `json:"kind"`
	ChannelID  string             `json:"channel_id"`
	MessageIDs []string           `json:"message_ids"`
	Payload    json.RawMessage    `json:"payload"`
}

// UpdateListingRequest payload. UserID is required on the gateway route.
type UpdateListingRequest struct {
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// ListingActorRequest names the chat user acting on a listing.
type ListingActorRequest struct {
	UserID string `json:"user_id"`
}

// ListingResponse response.
type ListingResponse struct {
	ID                string             `json:"id"`
	OwnerID           string             `json:"owner_id"`
	Kind              domain.ListingKind `json:"kind"`
	ChannelID         string             `json:"channel_id"`
	MessageIDs        []string           `json:"message_ids"`
	CreatedAt         time.Time          `json:"created_at"`
	LastBumpedAt      time.Time          `json:"last_bumped_at"`
	LastInteractionAt time.Time          `json:"last_interaction_at"`
	BumpAvailableAt   time.Time          `json:"bump_available_at"`
	Payload           json.RawMessage    `json:"payload,omitempty"`
	Active            bool               `json:"active"`
}

// LoginRequest payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse response.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewTicketResponse maps a ticket snapshot.
func NewTicketResponse(t domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:           t.ID,
		ChannelID:    t.ChannelID,
		Participants: t.Participants,
		ListerID:     t.ListerID,
		State:        t.State,
		Completions:  t.Completions,
		VouchStarted: t.VouchStarted,
		CreatedAt:    t.CreatedAt,
		ArchivedAt:   t.ArchivedAt,
	}
	if resp.Completions == nil {
		resp.Completions = []string{}
	}
	if t.Listing != nil {
		resp.ListingID = t.Listing.ListingID
	}
	return resp
}

// NewRatingResponse maps a stored rating.
func NewRatingResponse(r domain.Rating) RatingResponse {
	return RatingResponse{
		RaterID:     r.RaterID,
		RecipientID: r.RecipientID,
		Stars:       r.Stars,
		Comment:     r.Comment,
		SubmittedAt: r.SubmittedAt,
	}
}

// NewReputationResponse maps a reputation aggregate.
func NewReputationResponse(r domain.ReputationRecord) ReputationResponse {
	avg, _ := r.Average()
	return ReputationResponse{
		UserID:     r.UserID,
		TotalStars: r.TotalStars,
		Count:      r.Count,
		Average:    avg,
		Comments:   r.Comments,
		UpdatedAt:  r.UpdatedAt,
	}
}

// NewListingResponse maps a listing record.
func NewListingResponse(l domain.Listing) ListingResponse {
	resp := ListingResponse{
		ID:                l.ID,
		OwnerID:           l.OwnerID,
		Kind:              l.Kind,
		ChannelID:         l.Location.ChannelID,
		MessageIDs:        l.Location.MessageIDs,
		CreatedAt:         l.CreatedAt,
		LastBumpedAt:      l.LastBumpedAt,
		LastInteractionAt: l.LastInteractionAt,
		BumpAvailableAt:   l.BumpAvailableAt(),
		Active:            l.Active,
	}
	if resp.MessageIDs == nil {
		resp.MessageIDs = []string{}
	}
	if len(l.Payload) > 0 && json.Valid(l.Payload) {
		resp.Payload = json.RawMessage(l.Payload)
	}
	return resp
}
