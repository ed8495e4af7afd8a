// Package battery owns the level-2 sampling task and the battery state
// machine. State is a pure function of the latest ADC reading against four
// ordered thresholds; every state change is logged exactly once, at the
// moment of change.
package battery

import (
	"sync/atomic"

	"pulsecore-go/sched"
	"pulsecore-go/types"
	"pulsecore-go/x/conv"
	"pulsecore-go/x/msgring"
)

// SampleSource is the ADC collaborator, polled once per tick. LatestSample
// must be non-blocking and may return the previous conversion.
type SampleSource interface {
	LatestSample() uint16
}

// StateFromSample derives the battery state from a raw ADC count. Fault is
// reserved for readings above the maximum the divider can produce on a
// healthy board.
func StateFromSample(cfg types.BatteryConfig, adc uint16) types.BatteryState {
	switch {
	case adc <= cfg.LowMax:
		return types.BatteryLow
	case adc < cfg.NormalMax:
		return types.BatteryNormal
	case adc < cfg.ChargingMax:
		return types.BatteryCharging
	case adc < cfg.FullMax:
		return types.BatteryFull
	default:
		return types.BatteryFault
	}
}

// Snapshot is the read-only view exposed to the log/report path.
type Snapshot struct {
	State  types.BatteryState
	Sample uint16
}

type Task struct {
	cfg    types.BatteryConfig
	src    SampleSource
	log    *msgring.Logger
	fatal  func(string)
	state  types.BatteryState
	primed bool

	deadline uint32
	started  bool
	samples  uint32

	// Packed state<<16|sample. Level 1 reads this across the priority
	// boundary; a single word keeps the read coherent without a lock.
	snap atomic.Uint32
}

func New(cfg types.BatteryConfig, src SampleSource, log *msgring.Logger, fatal func(string)) *Task {
	if fatal == nil {
		fatal = func(msg string) { panic("battery: " + msg) }
	}
	t := &Task{cfg: cfg, src: src, log: log, fatal: fatal, state: types.BatteryNormal}
	return t
}

func (t *Task) Name() string       { return "battery" }
func (t *Task) Level() sched.Level { return sched.LevelSample }

func (t *Task) NextDeadlineMs() (uint32, bool) {
	if !t.started {
		return 0, false
	}
	return t.deadline, true
}

// Start arms the first sampling deadline.
func (t *Task) Start(nowMs uint32) {
	t.started = true
	t.deadline = nowMs + t.cfg.SampleIntervalMs
}

func (t *Task) Stop() { t.started = false }

// RunOnce samples once and evaluates the state machine. Re-evaluating on an
// unchanged state is a no-op: no log record, no snapshot churn beyond the
// sample value.
func (t *Task) RunOnce(nowMs uint32) {
	if !t.started {
		return
	}
	if late := nowMs - t.deadline; late > t.cfg.SampleIntervalMs {
		// A whole sampling period was lost; the 10 Hz guarantee is gone.
		t.fatal("sampling deadline missed")
	}
	t.deadline += t.cfg.SampleIntervalMs
	adc := t.src.LatestSample()
	t.samples++

	next := StateFromSample(t.cfg, adc)
	changed := next != t.state || !t.primed
	prev := t.state
	t.state = next
	t.primed = true
	t.snap.Store(uint32(next)<<16 | uint32(adc))

	if changed {
		t.logChange(prev, next, adc)
	}
}

// Observe evaluates one sample without scheduling. Test hook and the path
// the ADC-calibration self-test reuses.
func (t *Task) Observe(adc uint16) types.BatteryState {
	next := StateFromSample(t.cfg, adc)
	changed := next != t.state || !t.primed
	prev := t.state
	t.state = next
	t.primed = true
	t.snap.Store(uint32(next)<<16 | uint32(adc))
	if changed {
		t.logChange(prev, next, adc)
	}
	return next
}

// Snapshot returns the last published state and sample. Safe from level <= 1.
func (t *Task) Snapshot() Snapshot {
	v := t.snap.Load()
	return Snapshot{State: types.BatteryState(v >> 16), Sample: uint16(v)}
}

func (t *Task) SampleCount() uint32 { return t.samples }

func (t *Task) logChange(prev, next types.BatteryState, adc uint16) {
	buf := make([]byte, 0, types.LogTextLen)
	buf = append(buf, prev.String()...)
	buf = append(buf, " -> "...)
	buf = append(buf, next.String()...)
	buf = append(buf, " adc="...)
	buf = conv.AppendUint(buf, uint64(adc))
	if next == types.BatteryFault {
		t.log.Error(string(buf))
		return
	}
	t.log.Info(string(buf))
}
