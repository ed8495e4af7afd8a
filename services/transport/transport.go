// Package transport owns the level-0 frame pump: one inbound frame decoded
// and routed per pass, and the single outbound path every report takes. A
// disconnected host stops the drain but never the producers; outbound
// frames are dropped and counted.
package transport

import (
	"pulsecore-go/errcode"
	"pulsecore-go/frame"
	"pulsecore-go/sched"
	"pulsecore-go/services/command"
	"pulsecore-go/x/msgring"
)

// Link is the packet transport collaborator. All methods are non-blocking;
// PollFrame reports false when no complete frame is pending.
type Link interface {
	PollFrame(buf []byte) bool
	SendFrame(buf [frame.Size]byte) bool
	Connected() bool
}

// BootRouter receives the two commands that bypass the execution engine.
type BootRouter interface {
	Request(nowMs uint32, cmdID uint8)
	Cancel(cmdID uint8)
}

// Stats counts frame traffic for the perf report and tests.
type Stats struct {
	Accepted  uint32 // valid commands queued or routed
	Rejected  uint32 // malformed frames and queue-full drops
	TxSent    uint32
	TxDropped uint32 // host absent or link refused the frame
}

type Task struct {
	link       Link
	q          *command.Queue
	boot       BootRouter
	log        *msgring.Logger
	deadlineMs uint32

	stats Stats
	rx    [frame.Size]byte
}

func New(link Link, q *command.Queue, boot BootRouter, deadlineMs uint32, log *msgring.Logger) *Task {
	return &Task{link: link, q: q, boot: boot, deadlineMs: deadlineMs, log: log}
}

func (t *Task) Name() string                   { return "transport" }
func (t *Task) Level() sched.Level             { return sched.LevelTransport }
func (t *Task) NextDeadlineMs() (uint32, bool) { return 0, false }

// RunOnce handles at most one inbound frame. Malformed frames are dropped
// and never answered; the host notices only through its own timeout.
func (t *Task) RunOnce(nowMs uint32) {
	if !t.link.PollFrame(t.rx[:]) {
		return
	}
	f, err := frame.Decode(t.rx[:])
	if err != nil {
		t.stats.Rejected++
		t.log.Warn("frame dropped: " + string(errcode.Of(err)))
		return
	}

	switch f.Type {
	case frame.CmdEnterBootloader:
		t.stats.Accepted++
		t.boot.Request(nowMs, f.ID)
	case frame.CmdCancelBootloader:
		t.stats.Accepted++
		t.boot.Cancel(f.ID)
	default:
		if _, ok := t.q.Push(f, nowMs, nowMs+t.deadlineMs); !ok {
			t.stats.Rejected++
			t.Send(frame.EncodeError(f.ID, errcode.WireStatus(errcode.QueueFull), "command queue full"))
			t.log.Warn("command dropped: queue full")
			return
		}
		t.stats.Accepted++
	}
}

// Send is the outbound path shared by the control task, the engine, and the
// negotiator. Disconnect means drop, not block.
func (t *Task) Send(buf [frame.Size]byte) bool {
	if !t.link.Connected() || !t.link.SendFrame(buf) {
		t.stats.TxDropped++
		return false
	}
	t.stats.TxSent++
	return true
}

func (t *Task) Stats() Stats { return t.stats }
