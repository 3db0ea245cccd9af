package events

import (
	"context"
	"errors"
	"testing"
)

func TestPublishInvokesAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	d.Subscribe(EventVouchFinished, func(_ context.Context, e Event) error {
		calls = append(calls, "first:"+e.SubjectID)
		return errors.New("boom")
	})
	d.Subscribe(EventVouchFinished, func(_ context.Context, e Event) error {
		calls = append(calls, "second:"+e.SubjectID)
		return nil
	})
	d.Subscribe(EventTicketOpened, func(context.Context, Event) error {
		t.Error("unrelated handler invoked")
		return nil
	})

	err := d.Publish(context.Background(), New(EventVouchFinished, "t1", "", nil))
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected joined handler error, got %v", err)
	}
	if len(calls) != 2 || calls[0] != "first:t1" || calls[1] != "second:t1" {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	if err := d.Publish(context.Background(), New(EventListingExpired, "l1", "", nil)); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestNewStampsEvent(t *testing.T) {
	e := New(EventTicketArchived, "t1", "u1", TicketStatePayload{ChannelID: "c"})
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Fatalf("event not stamped: %+v", e)
	}
	if e.ActorID != "u1" || e.Type != EventTicketArchived {
		t.Errorf("unexpected event %+v", e)
	}
}
