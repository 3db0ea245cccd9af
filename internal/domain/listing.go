package domain

import "time"

const (
	BumpCooldown     = 48 * time.Hour
	DefaultRetention = 10 * 24 * time.Hour
)

// ListingKind separates account sales from in-game currency offers.
type ListingKind string

const (
	ListingKindAccount ListingKind = "ACCOUNT"
	ListingKindGold    ListingKind = "GOLD"
)

// Valid reports whether k is a known listing kind.
func (k ListingKind) Valid() bool {
	return k == ListingKindAccount || k == ListingKindGold
}

// ListingLocation points at the chat messages rendering a listing.
type ListingLocation struct {
	ChannelID  string
	MessageIDs []string
}

// Listing is a posted offer tracked for bump and expiry.
type Listing struct {
	ID                string
	OwnerID           string
	Kind              ListingKind
	Location          ListingLocation
	CreatedAt         time.Time
	LastBumpedAt      time.Time
	LastInteractionAt time.Time
	Payload           []byte
	Active            bool
}

// BumpAvailableAt is the earliest time the owner may bump again.
func (l Listing) BumpAvailableAt() time.Time {
	return l.LastBumpedAt.Add(BumpCooldown)
}

// Expired requires both the creation and the last interaction to predate the window.
func (l Listing) Expired(now time.Time, window time.Duration) bool {
	cutoff := now.Add(-window)
	return l.Active && l.CreatedAt.Before(cutoff) && l.LastInteractionAt.Before(cutoff)
}

// DedupeMessageIDs drops blanks and repeats while keeping order.
func DedupeMessageIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
