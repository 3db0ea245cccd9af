package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/tradebot/internal/config"
	"github.com/spec-kit/tradebot/internal/domain"
)

const relayTokenHeader = "X-Relay-Token"

// Relay forwards gateway calls to the chat-platform adapter over HTTP.
type Relay struct {
	baseURL string
	token   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRelay builds a relay client from configuration.
func NewRelay(cfg config.GatewayConfig, logger *zap.Logger) *Relay {
	return &Relay{
		baseURL: strings.TrimRight(cfg.RelayURL, "/"),
		token:   cfg.RelayToken,
		timeout: cfg.Timeout(),
		logger:  logger,
	}
}

// StatusError reports a non-2xx relay response.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway: %s: relay returned %d: %s", e.Op, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound, http.StatusGone:
		return ErrGone
	}
	return nil
}

type transcriptResponse struct {
	Entries []struct {
		Timestamp   time.Time `json:"timestamp"`
		Author      string    `json:"author"`
		Content     string    `json:"content"`
		Attachments []string  `json:"attachments"`
	} `json:"entries"`
}

func (r *Relay) SendMessage(ctx context.Context, channelID string, msg OutboundMessage) error {
	return r.do(ctx, "send_message", fiber.Post(r.url("channels", channelID, "messages")), msg, nil)
}

func (r *Relay) SendDirect(ctx context.Context, userID string, msg OutboundMessage) error {
	return r.do(ctx, "send_direct", fiber.Post(r.url("users", userID, "messages")), msg, nil)
}

func (r *Relay) DeleteMessage(ctx context.Context, ref MessageRef) error {
	return r.do(ctx, "delete_message", fiber.Delete(r.url("channels", ref.ChannelID, "messages", ref.MessageID)), nil, nil)
}

func (r *Relay) DeleteChannel(ctx context.Context, channelID string) error {
	return r.do(ctx, "delete_channel", fiber.Delete(r.url("channels", channelID)), nil, nil)
}

func (r *Relay) ExportTranscript(ctx context.Context, channelID string) ([]domain.TranscriptEntry, error) {
	var resp transcriptResponse
	if err := r.do(ctx, "export_transcript", fiber.Get(r.url("channels", channelID, "transcript")), nil, &resp); err != nil {
		return nil, err
	}
	entries := make([]domain.TranscriptEntry, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		entries = append(entries, domain.TranscriptEntry{
			Timestamp:      e.Timestamp,
			Author:         e.Author,
			Content:        e.Content,
			AttachmentRefs: e.Attachments,
		})
	}
	return entries, nil
}

func (r *Relay) url(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return r.baseURL + "/" + strings.Join(escaped, "/")
}

func (r *Relay) do(ctx context.Context, op string, agent *fiber.Agent, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	agent.Timeout(timeout)
	if r.token != "" {
		agent.Set(relayTokenHeader, r.token)
	}
	if body != nil {
		agent.JSON(body)
	}
	if err := agent.Parse(); err != nil {
		return fmt.Errorf("gateway: %s: %w", op, err)
	}

	var (
		status int
		resp   []byte
		errs   []error
	)
	if out != nil {
		status, resp, errs = agent.Struct(out)
	} else {
		status, resp, errs = agent.Bytes()
	}
	if status != 0 && (status < 200 || status >= 300) {
		return &StatusError{Op: op, Status: status, Body: string(resp)}
	}
	if len(errs) > 0 {
		return fmt.Errorf("gateway: %s: %w", op, errs[0])
	}
	r.logger.Debug("relay call", zap.String("op", op), zap.Int("status", status))
	return nil
}
