package gateway

import (
	"context"
	"errors"

	"github.com/spec-kit/tradebot/internal/domain"
)

// ErrForbidden is returned when the platform refuses delivery, e.g. closed DMs.
var ErrForbidden = errors.New("gateway: delivery forbidden")

// ErrGone is returned when the target message or channel no longer exists.
var ErrGone = errors.New("gateway: target gone")

// File is an attachment uploaded alongside a message.
type File struct {
	Name string `json:"name"`
	Body []byte `json:"body"`
}

// OutboundMessage is a message the core asks the platform to post.
type OutboundMessage struct {
	Content string `json:"content"`
	Files   []File `json:"files,omitempty"`
}

// MessageRef locates one posted message.
type MessageRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// Gateway is everything the trade core needs from the chat platform.
type Gateway interface {
	SendMessage(ctx context.Context, channelID string, msg OutboundMessage) error
	SendDirect(ctx context.Context, userID string, msg OutboundMessage) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	DeleteChannel(ctx context.Context, channelID string) error
	// ExportTranscript returns the channel history oldest first.
	ExportTranscript(ctx context.Context, channelID string) ([]domain.TranscriptEntry, error)
}

// Refs expands a listing location into one ref per message.
func Refs(loc domain.ListingLocation) []MessageRef {
	ids := domain.DedupeMessageIDs(loc.MessageIDs)
	refs := make([]MessageRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, MessageRef{ChannelID: loc.ChannelID, MessageID: id})
	}
	return refs
}
