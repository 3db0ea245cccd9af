package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/tradebot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened        EventType = "ticket_opened"
	EventTicketCompleted     EventType = "ticket_completed"
	EventVouchStarted        EventType = "vouch_started"
	EventTicketCancelled     EventType = "ticket_cancelled"
	EventTicketArchived      EventType = "ticket_archived"
	EventReputationRecorded  EventType = "reputation_recorded"
	EventVouchFinished       EventType = "vouch_finished"
	EventListingCreated      EventType = "listing_created"
	EventListingBumped       EventType = "listing_bumped"
	EventListingExpired      EventType = "listing_expired"
	EventListingDeactivated  EventType = "listing_deactivated"
	EventExpirySweepFinished EventType = "expiry_sweep_finished"
)

// AllEventTypes lists every type the core publishes.
var AllEventTypes = []EventType{
	EventTicketOpened,
	EventTicketCompleted,
	EventVouchStarted,
	EventTicketCancelled,
	EventTicketArchived,
	EventReputationRecorded,
	EventVouchFinished,
	EventListingCreated,
	EventListingBumped,
	EventListingExpired,
	EventListingDeactivated,
	EventExpirySweepFinished,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SubjectID string      `json:"subject_id"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType EventType, subjectID, actorID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: subjectID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	ChannelID    string    `json:"channel_id"`
	Participants [2]string `json:"participants"`
	ListingID    string    `json:"listing_id,omitempty"`
}

// TicketStatePayload is shared by completion, cancellation and archival.
type TicketStatePayload struct {
	ChannelID string             `json:"channel_id"`
	State     domain.TicketState `json:"state"`
}

// ReputationRecordedPayload payload.
type ReputationRecordedPayload struct {
	RecipientID string  `json:"recipient_id"`
	Stars       int     `json:"stars"`
	Count       int     `json:"count"`
	Average     float64 `json:"average"`
}

// VouchFinishedPayload payload.
type VouchFinishedPayload struct {
	ChannelID string          `json:"channel_id"`
	Ratings   []domain.Rating `json:"ratings"`
}

// ListingPayload payload.
type ListingPayload struct {
	OwnerID string             `json:"owner_id"`
	Kind    domain.ListingKind `json:"kind"`
}

// ExpirySweepPayload payload.
type ExpirySweepPayload struct {
	Scanned     int `json:"scanned"`
	Deactivated int `json:"deactivated"`
	Failed      int `json:"failed"`
}
