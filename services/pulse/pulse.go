// Package pulse drives the therapy output waveform. This is the level-3
// task: it owns the output pin, re-arms its own deadline as a pure function
// of the current phase, and touches no shared state except a non-blocking
// log append. Any missed phase deadline beyond tolerance is fatal: a timing
// violation has already broken the device's primary guarantee.
package pulse

import (
	"pulsecore-go/sched"
	"pulsecore-go/types"
	"pulsecore-go/x/conv"
	"pulsecore-go/x/mathx"
	"pulsecore-go/x/msgring"
)

// OutputPin is the actuator collaborator. Set must be non-blocking.
type OutputPin interface {
	Set(asserted bool)
}

type Phase uint8

const (
	PhaseLow Phase = iota
	PhaseHigh
)

func (p Phase) String() string {
	if p == PhaseHigh {
		return "high"
	}
	return "low"
}

// Stats accumulates timing bookkeeping for the perf-metrics report.
type Stats struct {
	Cycles       uint32 // completed LOW->HIGH periods
	MaxHighDevMs uint32 // worst lateness ending a HIGH phase
	MaxLowDevMs  uint32 // worst lateness ending a LOW phase
	Violations   uint32 // deviations beyond tolerance (fatal unless hook overrides)
}

// statsLogCycles matches the legacy cadence: one stats line a minute at 2 Hz.
const statsLogCycles = 120

type Task struct {
	cfg   types.PulseConfig
	pin   OutputPin
	log   *msgring.Logger
	fatal func(string)

	started  bool
	phase    Phase
	deadline uint32 // absolute ms of the next phase transition
	stats    Stats
}

// New builds the pulse task. fatal is invoked on a tolerance violation and
// must not return control to normal scheduling (halt or reset).
func New(cfg types.PulseConfig, pin OutputPin, log *msgring.Logger, fatal func(string)) *Task {
	if fatal == nil {
		fatal = func(msg string) { panic("pulse: " + msg) }
	}
	return &Task{cfg: cfg, pin: pin, log: log, fatal: fatal}
}

func (t *Task) Name() string       { return "pulse" }
func (t *Task) Level() sched.Level { return sched.LevelPulse }

// NextDeadlineMs exposes the re-arm value; before Start the task is not
// scheduled.
func (t *Task) NextDeadlineMs() (uint32, bool) {
	if !t.started {
		return 0, false
	}
	return t.deadline, true
}

// Start asserts the output and arms the first HIGH->LOW transition.
func (t *Task) Start(nowMs uint32) {
	t.started = true
	t.phase = PhaseHigh
	t.pin.Set(true)
	t.deadline = nowMs + t.cfg.HighMs
	t.log.Info("waveform started")
}

// Stop de-asserts the output and disarms the task. Used on halt paths; the
// negotiator requires the pin de-asserted before bootloader entry.
func (t *Task) Stop() {
	t.started = false
	t.pin.Set(false)
	t.phase = PhaseLow
}

// RunOnce performs exactly one phase transition. The next deadline advances
// from the previous deadline, not from now, so lateness never accumulates
// into drift.
func (t *Task) RunOnce(nowMs uint32) {
	if !t.started {
		return
	}
	devMs := nowMs - t.deadline // scheduler never runs us early
	endedPhaseMs := t.cfg.HighMs

	switch t.phase {
	case PhaseHigh:
		t.pin.Set(false)
		t.phase = PhaseLow
		t.deadline += t.cfg.LowMs
		t.stats.MaxHighDevMs = mathx.Max(t.stats.MaxHighDevMs, devMs)
	case PhaseLow:
		t.pin.Set(true)
		t.phase = PhaseHigh
		t.deadline += t.cfg.HighMs
		t.stats.MaxLowDevMs = mathx.Max(t.stats.MaxLowDevMs, devMs)
		endedPhaseMs = t.cfg.LowMs
		t.stats.Cycles++
		if t.stats.Cycles%statsLogCycles == 0 {
			t.logStats()
		}
	}

	if devMs > 0 && mathx.Permille(devMs, endedPhaseMs) > t.cfg.TolerancePermille {
		t.stats.Violations++
		t.fatal("phase deadline missed by " + msString(devMs))
	}
}

// Asserted reports the current output level; the bootloader safety predicate
// reads this synchronously.
func (t *Task) Asserted() bool { return t.started && t.phase == PhaseHigh }

func (t *Task) Snapshot() Stats { return t.stats }

func (t *Task) logStats() {
	buf := make([]byte, 0, types.LogTextLen)
	buf = append(buf, "cycles="...)
	buf = conv.AppendUint(buf, uint64(t.stats.Cycles))
	buf = append(buf, " devHi="...)
	buf = conv.AppendUint(buf, uint64(t.stats.MaxHighDevMs))
	buf = append(buf, " devLo="...)
	buf = conv.AppendUint(buf, uint64(t.stats.MaxLowDevMs))
	t.log.Debug(string(buf))
}

func msString(ms uint32) string {
	return string(conv.AppendUint(nil, uint64(ms))) + "ms"
}
