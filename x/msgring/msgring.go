// Package msgring provides a fixed-capacity, multi-producer single-consumer
// ring of log records with FIFO eviction on overflow.
//
// Producers may run at any interrupt priority, including above the consumer.
// Both operations are O(1), allocation-free, and bounded: a slot is claimed
// with one CAS on a monotonic counter, then written, then published via the
// slot's sequence word. Neither side ever blocks or spins unboundedly, so the
// ring is the only structure that may be shared across priority levels.
package msgring

import (
	"sync/atomic"

	"pulsecore-go/types"
)

type slot struct {
	seq atomic.Uint32
	msg types.LogMessage
}

// Ring is the cross-priority log queue. Capacity is fixed at construction.
type Ring struct {
	slots []slot
	mask  uint32

	enq atomic.Uint32 // next claim position (monotonic)
	deq atomic.Uint32 // next drain position (monotonic)

	// stats
	sent    atomic.Uint32
	dropped atomic.Uint32
	peak    atomic.Uint32
}

// New creates a ring with the given capacity (power of two >= 2).
func New(capacity int) *Ring {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		panic("msgring: capacity must be power of two >= 2")
	}
	r := &Ring{
		slots: make([]slot, capacity),
		mask:  uint32(capacity - 1),
	}
	for i := range r.slots {
		r.slots[i].seq.Store(uint32(i))
	}
	return r
}

func (r *Ring) Cap() int { return len(r.slots) }

// Len returns the number of records currently readable. The value is a
// snapshot; concurrent producers may change it immediately.
func (r *Ring) Len() int {
	d := r.deq.Load()
	e := r.enq.Load()
	n := int(int32(e - d))
	if n < 0 {
		n = 0
	}
	return n
}

// maxAttempts bounds the claim loop. Each retry means either another
// producer advanced the ring or an eviction freed a slot, so progress per
// iteration is guaranteed; the bound only guards against pathological
// contention from more producers than slots.
func (r *Ring) maxAttempts() int { return 2 * len(r.slots) }

// TryEnqueue appends msg. When the ring is full the oldest unread record is
// evicted rather than rejecting the new one; recency beats completeness for
// diagnostics. Returns false only if the bounded claim loop is exhausted.
func (r *Ring) TryEnqueue(msg types.LogMessage) bool {
	for attempt := 0; attempt < r.maxAttempts(); attempt++ {
		pos := r.enq.Load()
		s := &r.slots[pos&r.mask]
		seq := s.seq.Load()
		switch d := int32(seq - pos); {
		case d == 0:
			// Slot free at our position: claim it.
			if r.enq.CompareAndSwap(pos, pos+1) {
				s.msg = msg
				s.seq.Store(pos + 1) // publish
				r.sent.Add(1)
				r.notePeak()
				return true
			}
		case d < 0:
			// Ring full: evict the oldest record, then retry the claim.
			if _, ok := r.TryDequeue(); ok {
				r.dropped.Add(1)
			}
		default:
			// Another producer claimed pos first; reload and retry.
		}
	}
	return false
}

// TryDequeue removes and returns the oldest record. Called by the single
// drain task, and by producers performing eviction; both paths CAS the drain
// position so they cannot consume the same slot twice.
func (r *Ring) TryDequeue() (types.LogMessage, bool) {
	for attempt := 0; attempt < r.maxAttempts(); attempt++ {
		pos := r.deq.Load()
		s := &r.slots[pos&r.mask]
		seq := s.seq.Load()
		switch d := int32(seq - (pos + 1)); {
		case d == 0:
			if r.deq.CompareAndSwap(pos, pos+1) {
				msg := s.msg
				// Mark the slot reusable one lap later.
				s.seq.Store(pos + r.mask + 1)
				return msg, true
			}
		case d < 0:
			// Empty (or the slot at pos is still being written).
			return types.LogMessage{}, false
		default:
			// Another consumer (evicting producer) took pos; retry.
		}
	}
	return types.LogMessage{}, false
}

func (r *Ring) notePeak() {
	n := uint32(r.Len())
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// Stats is a point-in-time snapshot of ring accounting.
type Stats struct {
	Sent    uint32 // records accepted
	Dropped uint32 // records evicted before being read
	Peak    uint32 // deepest observed occupancy
	Depth   uint32 // current occupancy
}

func (r *Ring) Stats() Stats {
	return Stats{
		Sent:    r.sent.Load(),
		Dropped: r.dropped.Load(),
		Peak:    r.peak.Load(),
		Depth:   uint32(r.Len()),
	}
}
