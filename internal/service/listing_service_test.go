package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/tradebot/internal/domain"
	apperrors "github.com/spec-kit/tradebot/pkg/util/errorutil"
)

func TestListingCreateValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.listings.Create(context.Background(), ListingCreateInput{Kind: "HOUSE"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	de := apperrors.ToDomainError(err)
	if de.Code != apperrors.CodeValidation || len(de.Details) != 3 {
		t.Errorf("unexpected error %+v", de)
	}
}

func TestBumpCooldown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	listing := h.createListing(t, "seller")

	h.clock.Advance(domain.BumpCooldown)
	if _, err := h.listings.Bump(ctx, listing.ID); err != nil {
		t.Fatalf("first bump after 48h: %v", err)
	}

	h.clock.Advance(47 * time.Hour)
	_, err := h.listings.Bump(ctx, listing.ID)
	if !errors.Is(err, apperrors.ErrCooldownActive) {
		t.Fatalf("expected cooldown, got %v", err)
	}
	wantAvailable := h.clock.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	if got := apperrors.ToDomainError(err).Details["available_at"]; got != wantAvailable {
		t.Errorf("expected available_at %s, got %v", wantAvailable, got)
	}

	h.clock.Advance(time.Hour)
	bumped, err := h.listings.Bump(ctx, listing.ID)
	if err != nil {
		t.Fatalf("bump after cooldown: %v", err)
	}
	if !bumped.LastBumpedAt.Equal(h.clock.Now()) || !bumped.LastInteractionAt.Equal(h.clock.Now()) {
		t.Errorf("bump did not refresh timestamps: %+v", bumped)
	}
}

func TestScanExpiredRespectsInteraction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	stale := h.createListing(t, "a")
	touched := h.createListing(t, "b")

	h.clock.Advance(10 * 24 * time.Hour)
	if err := h.listings.Touch(ctx, touched.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	h.clock.Advance(24 * time.Hour)

	expired, err := h.listings.ScanExpired(ctx, domain.DefaultRetention)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != stale.ID {
		t.Fatalf("expected only the untouched listing, got %+v", expired)
	}
}

func TestUpdatePayloadCountsAsInteraction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	listing := h.createListing(t, "seller")
	h.clock.Advance(time.Hour)

	if err := h.listings.UpdatePayload(ctx, listing.ID, []byte(`{"rank":"master"}`)); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := h.listings.Get(ctx, listing.ID)
	if string(got.Payload) != `{"rank":"master"}` || !got.LastInteractionAt.Equal(h.clock.Now()) {
		t.Errorf("unexpected listing %+v", got)
	}
	if !got.LastBumpedAt.Equal(listing.LastBumpedAt) {
		t.Error("editing must not count as a bump")
	}

	if err := h.listings.Deactivate(ctx, listing.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := h.listings.Bump(ctx, listing.ID); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("bumping inactive listing: expected invalid state, got %v", err)
	}
}

func TestOwnerOnlyListingChanges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	listing := h.createListing(t, "seller")
	h.clock.Advance(domain.BumpCooldown)

	if _, err := h.listings.BumpAsOwner(ctx, listing.ID, "mallory"); !errors.Is(err, apperrors.ErrNotOwner) {
		t.Fatalf("bump by stranger: expected not owner, got %v", err)
	}
	if err := h.listings.UpdatePayloadAsOwner(ctx, listing.ID, "mallory", []byte(`{"price":1}`)); !errors.Is(err, apperrors.ErrNotOwner) {
		t.Fatalf("edit by stranger: expected not owner, got %v", err)
	}
	if err := h.listings.DeactivateAsOwner(ctx, listing.ID, ""); !errors.Is(err, apperrors.ErrNotOwner) {
		t.Fatalf("anonymous deactivate: expected not owner, got %v", err)
	}
	got, _ := h.listings.Get(ctx, listing.ID)
	if !got.Active || string(got.Payload) == `{"price":1}` || !got.LastBumpedAt.Equal(listing.LastBumpedAt) {
		t.Fatalf("rejected calls must not change the listing: %+v", got)
	}

	if _, err := h.listings.BumpAsOwner(ctx, listing.ID, "seller"); err != nil {
		t.Fatalf("owner bump: %v", err)
	}
	if err := h.listings.DeactivateAsOwner(ctx, listing.ID, "seller"); err != nil {
		t.Fatalf("owner deactivate: %v", err)
	}
	if _, err := h.listings.BumpAsOwner(ctx, "missing", "seller"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
