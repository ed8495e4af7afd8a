package bootctl

import (
	"testing"

	"pulsecore-go/frame"
	"pulsecore-go/types"
	"pulsecore-go/x/msgring"
)

type fakeEntry struct{ entered bool }

func (e *fakeEntry) Enter() { e.entered = true }

type fixture struct {
	neg    *Negotiator
	entry  *fakeEntry
	halted bool
	safe   bool
	reason string
	sent   [][frame.Size]byte
}

func newFixture() *fixture {
	f := &fixture{entry: &fakeEntry{}, safe: true}
	ring := msgring.New(16)
	log := msgring.NewLogger(ring, func() uint32 { return 0 }, "bootctl", types.LevelDebug)
	f.neg = New(
		types.BootConfig{ConfirmDelayMs: 500},
		func() (bool, string) { return f.safe, f.reason },
		f.entry,
		func() { f.halted = true },
		func(buf [frame.Size]byte) bool { f.sent = append(f.sent, buf); return true },
		log,
	)
	return f
}

func (f *fixture) last() [frame.Size]byte {
	return f.sent[len(f.sent)-1]
}

func TestRejectedWhileUnsafe(t *testing.T) {
	f := newFixture()
	f.safe = false
	f.reason = "execution running"

	f.neg.Request(100, 1)
	if f.neg.State() != StateIdle {
		t.Fatalf("state = %v, want idle", f.neg.State())
	}
	if got := f.last(); got[0] != frame.RptError || got[2] != 0x06 {
		t.Fatalf("want rejection report with safety status 0x06, got type %#x status %#x", got[0], got[2])
	}

	// Retry once the context completed.
	f.safe = true
	f.neg.Request(200, 2)
	if f.neg.State() != StateArmed {
		t.Fatalf("state = %v, want armed", f.neg.State())
	}
	if got := f.last(); got[0] != frame.RptAck || got[3] != ackArmed {
		t.Fatalf("want armed ack, got type %#x detail %#x", got[0], got[3])
	}
}

func TestCommitAfterConfirmDelay(t *testing.T) {
	f := newFixture()
	f.neg.Request(1000, 5)

	f.neg.Tick(1499)
	if f.neg.State() != StateArmed || f.entry.entered {
		t.Fatal("committed before the confirmation window elapsed")
	}

	f.neg.Tick(1500)
	if f.neg.State() != StateCommitted {
		t.Fatalf("state = %v, want committed", f.neg.State())
	}
	if !f.halted {
		t.Fatal("scheduler not halted before entry")
	}
	if !f.entry.entered {
		t.Fatal("entry point not invoked")
	}
}

func TestCancelDuringWindow(t *testing.T) {
	f := newFixture()
	f.neg.Request(1000, 5)
	f.neg.Cancel(6)

	if f.neg.State() != StateIdle {
		t.Fatalf("state = %v, want idle after cancel", f.neg.State())
	}
	if got := f.last(); got[0] != frame.RptAck || got[3] != ackCancelled {
		t.Fatalf("want cancel ack, got type %#x detail %#x", got[0], got[3])
	}

	f.neg.Tick(2000)
	if f.entry.entered || f.halted {
		t.Fatal("cancelled negotiation still committed")
	}
}

func TestCancelWithoutArmIsError(t *testing.T) {
	f := newFixture()
	f.neg.Cancel(9)
	if got := f.last(); got[0] != frame.RptError || got[2] != 0x06 {
		t.Fatalf("want not-armed error with status 0x06, got type %#x status %#x", got[0], got[2])
	}
}

func TestUnsafeAtCommitAborts(t *testing.T) {
	f := newFixture()
	f.neg.Request(1000, 5)

	f.safe = false
	f.reason = "output asserted"
	f.neg.Tick(1500)

	if f.neg.State() != StateIdle {
		t.Fatalf("state = %v, want idle after aborted commit", f.neg.State())
	}
	if f.entry.entered || f.halted {
		t.Fatal("unsafe commit still entered update mode")
	}
}

func TestRepeatRequestKeepsCommitInstant(t *testing.T) {
	f := newFixture()
	f.neg.Request(1000, 5)
	f.neg.Request(1400, 5) // must not extend the window

	f.neg.Tick(1500)
	if f.neg.State() != StateCommitted {
		t.Fatalf("state = %v, want committed at the original instant", f.neg.State())
	}
}
