package registry

import (
	"context"
	"testing"
	"time"

	"chatserver/internal/protocol"
)

func TestBusDeliversInOrder(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		b.PublishMessage(protocol.Message{ID: "a", Msg: string(rune('0' + i))})
	}

	ctx := context.Background()
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		evt, ok := sub.Recv(ctx, done)
		if !ok {
			t.Fatalf("Recv %d: not ok", i)
		}
		if evt.Message.Msg != string(rune('0'+i)) {
			t.Fatalf("Recv %d: got %q, want %q", i, evt.Message.Msg, string(rune('0'+i)))
		}
	}
}

// TestBusDropsOldestOnLag exercises the spec's "drop-oldest" backpressure
// policy: a subscriber that never drains loses its oldest pending items
// once the backlog fills, but keeps receiving the most recent ones.
func TestBusDropsOldestOnLag(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	defer sub.Close()

	total := busCapacity + 10
	for i := 0; i < total; i++ {
		b.PublishMessage(protocol.Message{ID: "a", Msg: string(rune('a' + i))})
	}

	if got := sub.Lagged(); got != 10 {
		t.Fatalf("Lagged() = %d, want 10", got)
	}

	ctx := context.Background()
	done := make(chan struct{})
	for i := 0; i < busCapacity; i++ {
		evt, ok := sub.Recv(ctx, done)
		if !ok {
			t.Fatalf("Recv %d: not ok", i)
		}
		// The 10 oldest were dropped, so the backlog starts at item 10.
		if want := string(rune('a' + 10 + i)); evt.Message.Msg != want {
			t.Fatalf("Recv %d: got %q, want %q", i, evt.Message.Msg, want)
		}
	}
	// Backlog now empty: nothing further is pending.
	select {
	case evt := <-sub.ch:
		t.Fatalf("expected empty backlog, got %+v", evt)
	default:
	}
}

func TestSubscriptionClosedByDone(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()

	done := make(chan struct{})
	result := make(chan bool, 1)
	go func() {
		_, ok := sub.Recv(context.Background(), done)
		result <- ok
	}()

	close(done)
	select {
	case ok := <-result:
		if ok {
			t.Fatal("expected Recv to report not-ok after done fires")
		}
	case <-time.After(time.Second):
		t.Fatal("Recv did not return promptly after cancellation")
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	sub.Close()

	// Publishing after Close must not block or panic, and the closed
	// subscription must not receive it.
	b.PublishMessage(protocol.Message{ID: "a", Msg: "hi"})

	select {
	case <-sub.ch:
		t.Fatal("closed subscription should not receive further events")
	default:
	}
}
