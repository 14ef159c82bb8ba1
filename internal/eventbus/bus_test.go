package eventbus

import "testing"

func TestPublishFanOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeRelayOutcome, Data: "x"})

	for i, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeRelayOutcome || e.Time.IsZero() {
				t.Fatalf("subscriber %d got %+v", i, e)
			}
		default:
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"}) // buffer full; must not block

	if e := <-ch; e.Type != "a" {
		t.Fatalf("got %q, want a", e.Type)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	b.Publish(Event{Type: "after"}) // must not panic
}
