package network

import (
	"testing"

	"pixsim-server/pkg/api"
)

func TestHub_PublishDelivers(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("s1")

	h.Publish("s1", api.Event{Type: "sessionUpdated", SessionID: "s1", Seq: 1})
	h.Publish("s2", api.Event{Type: "sessionUpdated", SessionID: "s2", Seq: 1})

	select {
	case ev := <-ch:
		if ev.SessionID != "s1" || ev.Seq != 1 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected event for s1")
	}
	select {
	case ev := <-ch:
		t.Fatalf("event for another session leaked: %+v", ev)
	default:
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("s1")

	// Переполняем буфер: Publish не должен блокироваться.
	for i := 0; i < 200; i++ {
		h.Publish("s1", api.Event{SessionID: "s1", Seq: uint64(i)})
	}
	if got := len(ch); got != cap(ch) {
		t.Fatalf("expected full channel (%d), got %d", cap(ch), got)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("s1")
	h.Unsubscribe("s1", ch)

	if h.HasSubscribers("s1") {
		t.Fatal("subscriber list should be empty")
	}
	if _, open := <-ch; open {
		t.Fatal("channel should be closed")
	}
}

func TestHub_SubscriberCount(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("s1")
	b := h.Subscribe("s1")

	if got := h.SubscriberCount("s1"); got != 2 {
		t.Fatalf("expected 2 subscribers, got %d", got)
	}
	h.Unsubscribe("s1", a)
	h.Unsubscribe("s1", b)
	if got := h.SubscriberCount("s1"); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
}
