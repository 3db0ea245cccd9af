package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinStars         = 1
	MaxStars         = 5
	MaxCommentLength = 500
	DefaultComment   = "No comment provided"
)

// ValidStars reports whether stars is within the accepted rating range.
func ValidStars(stars int) bool {
	return stars >= MinStars && stars <= MaxStars
}

// NormalizeComment trims, caps and defaults a vouch comment.
func NormalizeComment(comment string) string {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return DefaultComment
	}
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		runes := []rune(comment)
		comment = string(runes[:MaxCommentLength])
	}
	return comment
}

// Rating is one participant's vouch for their trade partner.
type Rating struct {
	RaterID     string
	RecipientID string
	Stars       int
	Comment     string
	SubmittedAt time.Time
}

// RatingOutcomeKind distinguishes a submitted rating from an expired prompt.
type RatingOutcomeKind string

const (
	RatingSubmitted RatingOutcomeKind = "SUBMITTED"
	RatingTimedOut  RatingOutcomeKind = "TIMED_OUT"
)

// RatingOutcome is what the UI-waiting layer hands back after prompting a participant.
type RatingOutcome struct {
	Kind    RatingOutcomeKind
	Stars   int
	Comment string
}

func Submitted(stars int, comment string) RatingOutcome {
	return RatingOutcome{Kind: RatingSubmitted, Stars: stars, Comment: comment}
}

func TimedOut() RatingOutcome {
	return RatingOutcome{Kind: RatingTimedOut}
}

// VouchSummary is posted to the reputation feed once both ratings are in.
type VouchSummary struct {
	TicketID   string
	ChannelID  string
	Ratings    []Rating
	FinishedAt time.Time
}

// Render formats the summary for the reputation feed.
func (s VouchSummary) Render() string {
	var b strings.Builder
	b.WriteString("⭐ **Trade Completed** ⭐\n\n")
	if len(s.Ratings) == 2 {
		fmt.Fprintf(&b, "**Trade Participants:** <@%s> & <@%s>\n", s.Ratings[0].RaterID, s.Ratings[1].RaterID)
	}
	fmt.Fprintf(&b, "**Channel:** <#%s>\n\n", s.ChannelID)
	for _, r := range s.Ratings {
		fmt.Fprintf(&b, "<@%s> → <@%s>: %s (%d/5)\n", r.RaterID, r.RecipientID, strings.Repeat("⭐", r.Stars), r.Stars)
		if r.Comment != "" && r.Comment != DefaultComment {
			fmt.Fprintf(&b, "*Comment:* %s\n", r.Comment)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
