package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/tradebot/internal/domain"
	"github.com/spec-kit/tradebot/internal/events"
	"github.com/spec-kit/tradebot/internal/gateway"
	"github.com/spec-kit/tradebot/internal/persistence"
)

const expiryLockKey = "expiry:sweep"

// ExpiryReport summarizes one sweep.
type ExpiryReport struct {
	Scanned     int      `json:"scanned"`
	Deactivated int      `json:"deactivated"`
	Failed      int      `json:"failed"`
	Skipped     bool     `json:"skipped"`
	ExpiredIDs  []string `json:"expired_ids,omitempty"`
}

// ExpiryScanner retires listings nobody interacted with for the retention window.
type ExpiryScanner struct {
	listings   *ListingService
	gw         gateway.Gateway
	guard      persistence.Guard
	dispatcher events.Dispatcher
	logger     *zap.Logger
	retention  time.Duration
	lockTTL    time.Duration
}

// ExpiryDependencies bundles collaborators for the scanner.
type ExpiryDependencies struct {
	Listings   *ListingService
	Gateway    gateway.Gateway
	Guard      persistence.Guard
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Retention  time.Duration
	LockTTL    time.Duration
}

// NewExpiryScanner constructs the scanner.
func NewExpiryScanner(deps ExpiryDependencies) *ExpiryScanner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	guard := deps.Guard
	if guard == nil {
		guard = persistence.NewMemoryGuard()
	}
	retention := deps.Retention
	if retention <= 0 {
		retention = domain.DefaultRetention
	}
	lockTTL := deps.LockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	return &ExpiryScanner{
		listings:   deps.Listings,
		gw:         deps.Gateway,
		guard:      guard,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		retention:  retention,
		lockTTL:    lockTTL,
	}
}

// RunOnce performs a single sweep. Cleanup of each listing is independent:
// message deletion and owner notification are best-effort, and a failed
// deactivation is counted without stopping the batch.
func (s *ExpiryScanner) RunOnce(ctx context.Context) (ExpiryReport, error) {
	var report ExpiryReport

	acquired, err := s.guard.Acquire(ctx, expiryLockKey, s.lockTTL)
	if err != nil {
		s.logger.Warn("expiry lock unavailable, sweeping without it", zap.Error(err))
		acquired = true
	}
	if !acquired {
		s.logger.Info("expiry sweep already running elsewhere")
		report.Skipped = true
		return report, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.guard.Release(releaseCtx, expiryLockKey); err != nil {
			s.logger.Warn("failed to release expiry lock", zap.Error(err))
		}
	}()

	expired, err := s.listings.ScanExpired(ctx, s.retention)
	if err != nil {
		return report, fmt.Errorf("scan expired listings: %w", err)
	}
	report.Scanned = len(expired)

	for _, listing := range expired {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if s.retire(ctx, listing) {
			report.Deactivated++
			report.ExpiredIDs = append(report.ExpiredIDs, listing.ID)
		} else {
			report.Failed++
		}
	}

	s.publish(ctx, events.New(events.EventExpirySweepFinished, expiryLockKey, "", events.ExpirySweepPayload{
		Scanned:     report.Scanned,
		Deactivated: report.Deactivated,
		Failed:      report.Failed,
	}))
	s.logger.Info("expiry sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("deactivated", report.Deactivated),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (s *ExpiryScanner) retire(ctx context.Context, listing domain.Listing) bool {
	logger := s.logger.With(zap.String("listing_id", listing.ID), zap.String("owner_id", listing.OwnerID))

	for _, ref := range gateway.Refs(listing.Location) {
		if err := s.gw.DeleteMessage(ctx, ref); err != nil {
			if errors.Is(err, gateway.ErrGone) {
				logger.Debug("listing message already gone", zap.String("message_id", ref.MessageID))
				continue
			}
			logger.Warn("failed to delete listing message", zap.String("message_id", ref.MessageID), zap.Error(err))
		}
	}

	if err := s.listings.Deactivate(ctx, listing.ID); err != nil {
		logger.Error("failed to deactivate expired listing", zap.Error(err))
		return false
	}
	s.publish(ctx, events.New(events.EventListingExpired, listing.ID, listing.OwnerID, events.ListingPayload{
		OwnerID: listing.OwnerID,
		Kind:    listing.Kind,
	}))

	days := int(s.retention / (24 * time.Hour))
	notice := gateway.OutboundMessage{Content: fmt.Sprintf(
		"Your %s listing was removed after %d days without activity. Post a new listing to sell again.",
		kindLabel(listing.Kind), days)}
	if err := s.gw.SendDirect(ctx, listing.OwnerID, notice); err != nil {
		logger.Warn("failed to notify listing owner", zap.Error(err))
	}
	return true
}

func kindLabel(kind domain.ListingKind) string {
	if kind == domain.ListingKindGold {
		return "gold"
	}
	return "account"
}

func (s *ExpiryScanner) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}
