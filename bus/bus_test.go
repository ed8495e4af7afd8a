package bus

import "testing"

func recv(t *testing.T, sub *Subscription) *Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	default:
		t.Fatal("no message pending")
		return nil
	}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case m := <-sub.Channel():
		t.Fatalf("unexpected message on %q: %v", sub.Pattern(), m.Topic)
	default:
	}
}

func TestExactTopicDelivery(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")
	defer conn.Disconnect()

	sub := conn.Subscribe("report/log")
	conn.Publish(NewMessage("report/log", "hello"))
	conn.Publish(NewMessage("report/test", "other"))

	if m := recv(t, sub); m.Payload != "hello" {
		t.Fatalf("payload = %v, want hello", m.Payload)
	}
	assertEmpty(t, sub)
}

func TestPlusWildcardMatchesOneSegment(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")
	defer conn.Disconnect()

	sub := conn.Subscribe("report/+")
	conn.Publish(NewMessage("report/log", 1))
	conn.Publish(NewMessage("report/test", 2))
	conn.Publish(NewMessage("report/test/deep", 3))

	if m := recv(t, sub); m.Topic != "report/log" {
		t.Fatalf("first = %q", m.Topic)
	}
	if m := recv(t, sub); m.Topic != "report/test" {
		t.Fatalf("second = %q", m.Topic)
	}
	assertEmpty(t, sub) // "+" must not match two segments
}

func TestHashWildcardMatchesRemainder(t *testing.T) {
	b := New(8)
	conn := b.NewConnection("test")
	defer conn.Disconnect()

	sub := conn.Subscribe("report/#")
	conn.Publish(NewMessage("report/log", 1))
	conn.Publish(NewMessage("report/test/4/result", 2))
	conn.Publish(NewMessage("device/state", 3))

	if m := recv(t, sub); m.Topic != "report/log" {
		t.Fatalf("first = %q", m.Topic)
	}
	if m := recv(t, sub); m.Topic != "report/test/4/result" {
		t.Fatalf("second = %q", m.Topic)
	}
	assertEmpty(t, sub)
}

func TestRetainedReplayedToLateSubscriber(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")
	defer conn.Disconnect()

	conn.Publish(NewRetained("device/state", "normal"))

	sub := conn.Subscribe("device/state")
	if m := recv(t, sub); m.Payload != "normal" {
		t.Fatalf("retained payload = %v, want normal", m.Payload)
	}

	// Clearing the slot stops further replay.
	conn.Publish(NewRetained("device/state", nil))
	late := conn.Subscribe("device/state")
	assertEmpty(t, late)
}

func TestRetainedReplayedThroughWildcard(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")
	defer conn.Disconnect()

	conn.Publish(NewRetained("device/state", "low"))
	sub := conn.Subscribe("device/#")
	if m := recv(t, sub); m.Payload != "low" {
		t.Fatalf("retained payload via wildcard = %v, want low", m.Payload)
	}
}

func TestFullSubscriberDropsOldest(t *testing.T) {
	b := New(2)
	conn := b.NewConnection("test")
	defer conn.Disconnect()

	sub := conn.Subscribe("report/log")
	for i := 1; i <= 3; i++ {
		conn.Publish(NewMessage("report/log", i))
	}

	if m := recv(t, sub); m.Payload != 2 {
		t.Fatalf("first after overflow = %v, want 2 (1 evicted)", m.Payload)
	}
	if m := recv(t, sub); m.Payload != 3 {
		t.Fatalf("second after overflow = %v, want 3", m.Payload)
	}
}

func TestUnsubscribeStopsDeliveryAndPrunes(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe("report/log")
	sub.Unsubscribe()
	conn.Publish(NewMessage("report/log", 1))

	if _, ok := <-sub.Channel(); ok {
		t.Fatal("message delivered after unsubscribe")
	}
	if len(b.root.children) != 0 {
		t.Fatal("trie not pruned after last unsubscribe")
	}
}

func TestDisconnectClosesAllSubscriptions(t *testing.T) {
	b := New(4)
	conn := b.NewConnection("test")
	s1 := conn.Subscribe("report/log")
	s2 := conn.Subscribe("device/state")

	conn.Disconnect()
	if _, ok := <-s1.Channel(); ok {
		t.Fatal("s1 still open after disconnect")
	}
	if _, ok := <-s2.Channel(); ok {
		t.Fatal("s2 still open after disconnect")
	}
}
