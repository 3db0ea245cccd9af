package domain

import "time"

// TicketState enumerates lifecycle states for trade tickets.
type TicketState string

const (
	TicketStateOpen                     TicketState = "OPEN"
	TicketStateAwaitingSecondCompletion TicketState = "AWAITING_SECOND_COMPLETION"
	TicketStateBothCompleted            TicketState = "BOTH_COMPLETED"
	TicketStateCancelled                TicketState = "CANCELLED"
	TicketStateArchived                 TicketState = "ARCHIVED"
)

// Terminal reports whether no participant action may mutate the ticket anymore.
func (s TicketState) Terminal() bool {
	return s == TicketStateCancelled || s == TicketStateArchived
}

// Cancellable reports whether a participant may still cancel.
func (s TicketState) Cancellable() bool {
	return s == TicketStateOpen || s == TicketStateAwaitingSecondCompletion
}

// TicketAction is a participant action delivered by the messaging gateway.
type TicketAction string

const (
	TicketActionComplete    TicketAction = "complete"
	TicketActionCancel      TicketAction = "cancel"
	TicketActionResumeVouch TicketAction = "resume_vouch"
	TicketActionArchive     TicketAction = "archive"
)

// ListingDisposition decides what archival does with the originating listing.
type ListingDisposition string

const (
	DispositionRemove ListingDisposition = "remove"
	DispositionAsk    ListingDisposition = "ask"
	DispositionKeep   ListingDisposition = "keep"
)

// ParseListingDisposition falls back to remove for unknown values.
func ParseListingDisposition(v string) ListingDisposition {
	switch ListingDisposition(v) {
	case DispositionAsk, DispositionKeep:
		return ListingDisposition(v)
	default:
		return DispositionRemove
	}
}

// ListingRef ties a ticket to the listing it was opened from.
type ListingRef struct {
	ListingID string
	Location  ListingLocation
}

// Ticket is a point-in-time view of a trade ticket session.
type Ticket struct {
	ID           string
	ChannelID    string
	Participants [2]string
	ListerID     string
	Listing      *ListingRef
	State        TicketState
	Completions  []string
	VouchStarted bool
	CreatedAt    time.Time
	ArchivedAt   *time.Time
}
