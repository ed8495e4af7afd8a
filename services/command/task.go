package command

import (
	"pulsecore-go/frame"
	"pulsecore-go/sched"
	"pulsecore-go/x/msgring"
)

// drainBudget bounds how many log records one control pass forwards, so a
// full ring cannot hold off a due battery sample for more than one pass.
const drainBudget = 4

// Task is the level-1 control task. One pass is one bounded step: forward a
// few queued log records as report frames, advance the engine by one step,
// refresh the LED pattern, then let the bootloader negotiator tick.
type Task struct {
	eng  *Engine
	ring *msgring.Ring
	send func(buf [frame.Size]byte) bool
	tick func(nowMs uint32)
}

// NewTask wires the control pass. tick is the negotiator hook and may be nil.
func NewTask(eng *Engine, ring *msgring.Ring, send func([frame.Size]byte) bool, tick func(uint32)) *Task {
	return &Task{eng: eng, ring: ring, send: send, tick: tick}
}

func (t *Task) Name() string                   { return "control" }
func (t *Task) Level() sched.Level             { return sched.LevelControl }
func (t *Task) NextDeadlineMs() (uint32, bool) { return 0, false }

// Idle lets the host-loop runner sleep when there is nothing to drain, no
// queued command, and no in-flight execution.
func (t *Task) Idle() bool {
	return t.ring.Len() == 0 && !t.eng.HasWork()
}

func (t *Task) RunOnce(nowMs uint32) {
	for n := 0; n < drainBudget; n++ {
		m, ok := t.ring.TryDequeue()
		if !ok {
			break
		}
		// A disconnected host drops the frame here; the record has already
		// left the ring, which is what keeps producers non-blocking.
		t.send(frame.EncodeLog(&m))
	}

	t.eng.Pump(nowMs)
	t.eng.env.Ind.Update(nowMs)
	if t.tick != nil {
		t.tick(nowMs)
	}
}
