package gateway

import (
	"context"
	"sync"

	"github.com/spec-kit/tradebot/internal/domain"
)

// Recorder is an in-memory Gateway for tests.
type Recorder struct {
	mu          sync.Mutex
	Messages    map[string][]OutboundMessage
	Directs     map[string][]OutboundMessage
	Deleted     []MessageRef
	Channels    []string
	Transcripts map[string][]domain.TranscriptEntry

	// Failure injection keyed by channel, user or message id.
	FailSend       map[string]error
	FailDirect     map[string]error
	FailDelete     map[string]error
	FailTranscript error
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		Messages:    map[string][]OutboundMessage{},
		Directs:     map[string][]OutboundMessage{},
		Transcripts: map[string][]domain.TranscriptEntry{},
		FailSend:    map[string]error{},
		FailDirect:  map[string]error{},
		FailDelete:  map[string]error{},
	}
}

func (r *Recorder) SendMessage(_ context.Context, channelID string, msg OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.FailSend[channelID]; err != nil {
		return err
	}
	r.Messages[channelID] = append(r.Messages[channelID], msg)
	return nil
}

func (r *Recorder) SendDirect(_ context.Context, userID string, msg OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.FailDirect[userID]; err != nil {
		return err
	}
	r.Directs[userID] = append(r.Directs[userID], msg)
	return nil
}

func (r *Recorder) DeleteMessage(_ context.Context, ref MessageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.FailDelete[ref.MessageID]; err != nil {
		return err
	}
	r.Deleted = append(r.Deleted, ref)
	return nil
}

func (r *Recorder) DeleteChannel(_ context.Context, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Channels = append(r.Channels, channelID)
	return nil
}

func (r *Recorder) ExportTranscript(_ context.Context, channelID string) ([]domain.TranscriptEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailTranscript != nil {
		return nil, r.FailTranscript
	}
	return append([]domain.TranscriptEntry(nil), r.Transcripts[channelID]...), nil
}

// Sent returns a copy of what was posted to channelID.
func (r *Recorder) Sent(channelID string) []OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]OutboundMessage(nil), r.Messages[channelID]...)
}

// DirectsTo returns a copy of what was DMed to userID.
func (r *Recorder) DirectsTo(userID string) []OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]OutboundMessage(nil), r.Directs[userID]...)
}

// DeletedRefs returns a copy of deleted message refs.
func (r *Recorder) DeletedRefs() []MessageRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MessageRef(nil), r.Deleted...)
}

// DeletedChannels returns a copy of torn-down channels.
func (r *Recorder) DeletedChannels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Channels...)
}
