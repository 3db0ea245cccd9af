package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/tradebot/internal/config"
	"github.com/spec-kit/tradebot/internal/domain"
	"github.com/spec-kit/tradebot/internal/events"
	"github.com/spec-kit/tradebot/internal/gateway"
	"github.com/spec-kit/tradebot/internal/persistence"
	"github.com/spec-kit/tradebot/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventLog struct {
	mu     sync.Mutex
	counts map[events.EventType]int
}

func (l *eventLog) count(t events.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[t]
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	store, err := persistence.NewSQLite(context.Background(),
		config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(store.Close)
	return store.DB()
}

type harness struct {
	clock      *fakeClock
	gw         *gateway.Recorder
	dispatcher events.Dispatcher
	events     *eventLog
	reputation *ReputationService
	listings   *ListingService
	registry   *SessionRegistry
	guard      *persistence.MemoryGuard
}

func newHarness(t *testing.T, tweak ...func(*SessionDependencies)) *harness {
	t.Helper()
	db := newTestDB(t)
	h := &harness{
		clock:      newFakeClock(),
		gw:         gateway.NewRecorder(),
		dispatcher: events.NewInMemoryDispatcher(),
		events:     &eventLog{counts: map[events.EventType]int{}},
		guard:      persistence.NewMemoryGuard(),
	}
	for _, et := range events.AllEventTypes {
		h.dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			h.events.mu.Lock()
			h.events.counts[e.Type]++
			h.events.mu.Unlock()
			return nil
		})
	}

	h.reputation = NewReputationService(ReputationDependencies{
		Repo:       repository.NewSQLiteReputationRepository(db),
		Dispatcher: h.dispatcher,
	})
	h.listings = NewListingService(ListingDependencies{
		Repo:       repository.NewSQLiteListingRepository(db),
		Dispatcher: h.dispatcher,
		Clock:      h.clock.Now,
	})

	deps := SessionDependencies{
		Gateway:    h.gw,
		Reputation: h.reputation,
		Listings:   h.listings,
		Guard:      h.guard,
		Dispatcher: h.dispatcher,
		Settings: SessionSettings{
			ArchiveChannelID: "archive",
			FeedChannelID:    "feed",
			Disposition:      domain.DispositionRemove,
		},
		Clock: h.clock.Now,
	}
	for _, fn := range tweak {
		fn(&deps)
	}
	h.registry = NewSessionRegistry(deps)
	return h
}

func (h *harness) open(t *testing.T, channelID, a, b string) *TicketSession {
	t.Helper()
	session, err := h.registry.Open(context.Background(), OpenTicketInput{
		ChannelID:    channelID,
		Participants: [2]string{a, b},
	})
	if err != nil {
		t.Fatalf("open ticket: %v", err)
	}
	return session
}

func (h *harness) createListing(t *testing.T, owner string) *domain.Listing {
	t.Helper()
	listing, err := h.listings.Create(context.Background(), ListingCreateInput{
		OwnerID:  owner,
		Kind:     domain.ListingKindAccount,
		Location: domain.ListingLocation{ChannelID: "market", MessageIDs: []string{"img", "detail"}},
		Payload:  []byte(`{"rank":"diamond"}`),
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return listing
}

func (h *harness) openWithListing(t *testing.T, channelID, lister, buyer string) (*TicketSession, *domain.Listing) {
	t.Helper()
	listing := h.createListing(t, lister)
	session, err := h.registry.Open(context.Background(), OpenTicketInput{
		ChannelID:    channelID,
		Participants: [2]string{buyer, lister},
		ListingID:    listing.ID,
	})
	if err != nil {
		t.Fatalf("open ticket: %v", err)
	}
	return session, listing
}

// completeBoth drives a ticket to BothCompleted.
func completeBoth(t *testing.T, s *TicketSession) *VouchSession {
	t.Helper()
	ctx := context.Background()
	snap := s.Snapshot()
	for _, p := range snap.Participants {
		if err := s.MarkComplete(ctx, p); err != nil {
			t.Fatalf("mark complete %s: %v", p, err)
		}
	}
	v := s.Vouch()
	if v == nil {
		t.Fatal("expected vouch session after both completions")
	}
	return v
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
