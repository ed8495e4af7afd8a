// Package sched implements the fixed-priority execution model: four levels,
// preemptive across levels, run-to-completion within a level. The task set is
// fixed at boot; there is no dynamic task creation and no blocking wait
// anywhere in the core.
package sched

import "pulsecore-go/x/timex"

// Level is one of the four fixed scheduling classes. Higher always runs
// before lower; a task can never be delayed by a lower level.
type Level uint8

const (
	LevelTransport Level = iota // frame poll
	LevelControl                // log drain + command execution
	LevelSample                 // battery sampling
	LevelPulse                  // waveform generation
)

const numLevels = 4

func (l Level) String() string {
	switch l {
	case LevelTransport:
		return "transport"
	case LevelControl:
		return "control"
	case LevelSample:
		return "sample"
	case LevelPulse:
		return "pulse"
	}
	return "?"
}

// Task is one schedulable unit. RunOnce must be a bounded step: levels 3/2
// re-arm via NextDeadlineMs, levels 1/0 run opportunistically and must
// return between discrete steps so higher levels are never held off for
// longer than one step.
type Task interface {
	Name() string
	Level() Level
	// NextDeadlineMs returns the absolute ms tick at which the task must
	// next run. ok=false means the task is opportunistic (levels 1/0) and
	// runs whenever no deadline work is pending.
	NextDeadlineMs() (deadline uint32, ok bool)
	RunOnce(nowMs uint32)
}

// Clock supplies the ms-since-boot timebase.
type Clock interface {
	NowMs() uint32
}

// WallClock is the production timebase.
type WallClock struct{}

func (WallClock) NowMs() uint32 { return timex.NowMs() }

// ManualClock is a test timebase advanced explicitly.
type ManualClock struct{ ms uint32 }

func NewManualClock(startMs uint32) *ManualClock { return &ManualClock{ms: startMs} }
func (c *ManualClock) NowMs() uint32             { return c.ms }
func (c *ManualClock) Advance(dMs uint32)        { c.ms += dMs }
func (c *ManualClock) Set(ms uint32)             { c.ms = ms }

// Scheduler binds the fixed task hierarchy to a clock.
type Scheduler struct {
	clock   Clock
	tasks   [numLevels]Task
	sealed  bool
	halted  bool
	steps   [numLevels]uint32
	rrLower uint8 // alternates levels 1/0 when both are idle-eligible
}

func New(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Register installs one task per level. Registration after Seal, a duplicate
// level, or a nil task is a configuration bug and panics.
func (s *Scheduler) Register(t Task) {
	if s.sealed {
		panic("sched: register after seal")
	}
	if t == nil {
		panic("sched: nil task")
	}
	l := t.Level()
	if l >= numLevels {
		panic("sched: level out of range")
	}
	if s.tasks[l] != nil {
		panic("sched: duplicate task for level " + l.String())
	}
	s.tasks[l] = t
}

// Seal freezes the task set. All four levels must be populated.
func (s *Scheduler) Seal() {
	for l := 0; l < numLevels; l++ {
		if s.tasks[l] == nil {
			panic("sched: no task for level " + Level(l).String())
		}
	}
	s.sealed = true
}

// Halt stops dispatch permanently. Used by the bootloader negotiator just
// before transferring control to the update entry point.
func (s *Scheduler) Halt() { s.halted = true }

func (s *Scheduler) Halted() bool { return s.halted }

// due reports whether a deadline task must run at now.
func due(now, deadline uint32) bool {
	return now == deadline || timex.After(now, deadline)
}

// Step dispatches at most one task step: the highest level whose deadline
// has arrived, else one opportunistic step alternating between levels 1 and
// 0. Returns false when nothing ran (halted, or purely deadline tasks with
// none due).
func (s *Scheduler) Step() bool {
	if s.halted || !s.sealed {
		return false
	}
	now := s.clock.NowMs()

	// Deadline levels, highest first.
	for l := numLevels - 1; l >= 0; l-- {
		t := s.tasks[l]
		if dl, ok := t.NextDeadlineMs(); ok && due(now, dl) {
			t.RunOnce(now)
			s.steps[l]++
			return true
		}
	}

	// Opportunistic levels: control before transport, but alternate so the
	// transport poll is not starved by a perpetually-busy control task.
	order := [2]Level{LevelControl, LevelTransport}
	if s.rrLower&1 == 1 {
		order = [2]Level{LevelTransport, LevelControl}
	}
	s.rrLower++
	for _, l := range order {
		t := s.tasks[l]
		if _, deadline := t.NextDeadlineMs(); deadline {
			continue
		}
		t.RunOnce(now)
		s.steps[l]++
		return true
	}
	return false
}

// NextDeadline returns the earliest pending deadline across levels, if any.
func (s *Scheduler) NextDeadline() (uint32, bool) {
	var best uint32
	found := false
	for l := 0; l < numLevels; l++ {
		if dl, ok := s.tasks[l].NextDeadlineMs(); ok {
			if !found || timex.After(best, dl) {
				best = dl
				found = true
			}
		}
	}
	return best, found
}

// StepCount returns how many steps have run at the given level.
func (s *Scheduler) StepCount(l Level) uint32 { return s.steps[l] }
