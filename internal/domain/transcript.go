package domain

import (
	"fmt"
	"strings"
	"time"
)

const transcriptTimeLayout = "2006-01-02 15:04:05"

// TranscriptEntry is one message of a ticket channel's history.
type TranscriptEntry struct {
	Timestamp      time.Time
	Author         string
	Content        string
	AttachmentRefs []string
}

// RenderTranscript formats entries oldest first, one line per message and per attachment.
func RenderTranscript(entries []TranscriptEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		ts := e.Timestamp.UTC().Format(transcriptTimeLayout)
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", ts, e.Author, e.Content))
		for _, ref := range e.AttachmentRefs {
			lines = append(lines, fmt.Sprintf("[%s] %s sent an attachment: %s", ts, e.Author, ref))
		}
	}
	return strings.Join(lines, "\n")
}
