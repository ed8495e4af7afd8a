// Package command implements the validated-command queue and the
// execution engine that dispatches commands to the fixed set of operation
// handlers under per-execution time and memory budgets.
//
// Everything here runs at level 1 only; the scheduler's cooperative
// discipline at that level is the sole synchronization required.
package command

import (
	"pulsecore-go/frame"
	"pulsecore-go/x/timex"
)

// QueuedCommand is one accepted frame awaiting execution.
type QueuedCommand struct {
	Frame        frame.CommandFrame
	Seq          uint32 // monotonic accept counter, for log correlation
	EnqueuedAtMs uint32
	DeadlineMs   uint32 // past this instant the command is dropped, not run
}

// Expired reports whether the command may no longer run. The deadline must
// be strictly in the future: a command whose deadline equals now is already
// expired. Wraparound-safe.
func (c *QueuedCommand) Expired(nowMs uint32) bool {
	return !timex.After(c.DeadlineMs, nowMs)
}

// Queue is a fixed-capacity FIFO of queued commands.
type Queue struct {
	slots []QueuedCommand
	head  int
	count int
	seq   uint32
}

func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{slots: make([]QueuedCommand, capacity)}
}

func (q *Queue) Len() int { return q.count }
func (q *Queue) Cap() int { return len(q.slots) }

// Push accepts a validated frame. Returns the assigned sequence number, or
// false when the queue is full: unlike the log ring, commands are rejected
// rather than evicted so the host sees deterministic backpressure.
func (q *Queue) Push(f frame.CommandFrame, nowMs, deadlineMs uint32) (uint32, bool) {
	if q.count == len(q.slots) {
		return 0, false
	}
	q.seq++
	idx := (q.head + q.count) % len(q.slots)
	q.slots[idx] = QueuedCommand{Frame: f, Seq: q.seq, EnqueuedAtMs: nowMs, DeadlineMs: deadlineMs}
	q.count++
	return q.seq, true
}

// Pop removes the oldest command in arrival order.
func (q *Queue) Pop() (QueuedCommand, bool) {
	if q.count == 0 {
		return QueuedCommand{}, false
	}
	c := q.slots[q.head]
	q.slots[q.head] = QueuedCommand{}
	q.head = (q.head + 1) % len(q.slots)
	q.count--
	return c, true
}
