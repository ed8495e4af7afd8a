// Package bootctl gates the irreversible handoff to firmware-update mode.
// Entry is a negotiation: the request is checked against a synchronous
// hardware-safety predicate, then held Armed for a confirmation window in
// which the host may still cancel. Commit never returns control to the
// running image.
package bootctl

import (
	"pulsecore-go/errcode"
	"pulsecore-go/frame"
	"pulsecore-go/types"
	"pulsecore-go/x/msgring"
	"pulsecore-go/x/timex"
)

// EntryMagic is the scratch-register value the update-mode entry point
// checks on reset to distinguish a requested handoff from a crash.
const EntryMagic uint32 = 0xB007C0DE

type State uint8

const (
	StateIdle State = iota
	StateSafetyCheckPending
	StateArmed
	StateCommitted // terminal; control never returns
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSafetyCheckPending:
		return "safety_check"
	case StateArmed:
		return "armed"
	case StateCommitted:
		return "committed"
	}
	return "?"
}

// EntryPoint transfers control to the update mode. Enter must not return;
// on hardware it writes EntryMagic to a watchdog scratch register and
// resets the core.
type EntryPoint interface {
	Enter()
}

// SafetyPredicate is queried synchronously at arm time and again at commit.
// reason is host-facing and only read when ok is false.
type SafetyPredicate func() (ok bool, reason string)

type Negotiator struct {
	cfg   types.BootConfig
	safe  SafetyPredicate
	entry EntryPoint
	halt  func()
	send  func(buf [frame.Size]byte) bool
	log   *msgring.Logger

	state    State
	commitAt uint32
	cmdID    uint8
}

// New wires the negotiator. halt stops the scheduler just before Enter so
// no further task step can race the handoff.
func New(cfg types.BootConfig, safe SafetyPredicate, entry EntryPoint, halt func(), send func([frame.Size]byte) bool, log *msgring.Logger) *Negotiator {
	return &Negotiator{cfg: cfg, safe: safe, entry: entry, halt: halt, send: send, log: log}
}

func (n *Negotiator) State() State { return n.state }

// Request handles an enter-bootloader command. The safety check runs
// synchronously inside the call; on failure the negotiator reverts to Idle
// and the host gets a rejection report.
func (n *Negotiator) Request(nowMs uint32, cmdID uint8) {
	switch n.state {
	case StateArmed:
		// Repeat request during the window: restate the ack, keep the
		// original commit instant so the host cannot extend it.
		n.ack(cmdID, ackArmed)
		return
	case StateCommitted:
		return
	}

	n.state = StateSafetyCheckPending
	if ok, reason := n.safe(); !ok {
		n.state = StateIdle
		n.send(frame.EncodeError(cmdID, errcode.WireStatus(errcode.SafetyCheckFailed), reason))
		n.log.Warn("entry refused: " + reason)
		return
	}

	n.state = StateArmed
	n.cmdID = cmdID
	n.commitAt = nowMs + n.cfg.ConfirmDelayMs
	n.ack(cmdID, ackArmed)
	n.log.Info("armed for update entry")
}

// Cancel aborts an Armed negotiation. Cancelling when nothing is armed is
// an error the host asked for.
func (n *Negotiator) Cancel(cmdID uint8) {
	if n.state != StateArmed {
		n.send(frame.EncodeError(cmdID, errcode.WireStatus(errcode.NotArmed), "not armed"))
		return
	}
	n.state = StateIdle
	n.ack(cmdID, ackCancelled)
	n.log.Info("entry cancelled")
}

// Tick advances the confirmation window. The safety predicate is evaluated
// once more at the commit instant; a command that started Running during
// the window aborts the handoff rather than being cut off mid-execution.
func (n *Negotiator) Tick(nowMs uint32) {
	if n.state != StateArmed {
		return
	}
	if timex.After(n.commitAt, nowMs) {
		return
	}
	if ok, reason := n.safe(); !ok {
		n.state = StateIdle
		n.send(frame.EncodeError(n.cmdID, errcode.WireStatus(errcode.SafetyCheckFailed), reason))
		n.log.Warn("entry aborted at commit: " + reason)
		return
	}

	n.state = StateCommitted
	n.log.Info("committing to update entry")
	n.halt()
	n.entry.Enter()
}

// Ack detail byte (byte [3] of an 0x90 report for bootloader traffic).
const (
	ackArmed     = 0x01
	ackCancelled = 0x02
)

func (n *Negotiator) ack(cmdID, detail uint8) {
	var buf [frame.Size]byte
	buf[0] = frame.RptAck
	buf[1] = cmdID
	buf[3] = detail
	n.send(buf)
}
