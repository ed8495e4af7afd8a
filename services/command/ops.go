package command

import (
	"encoding/binary"

	"pulsecore-go/frame"
	"pulsecore-go/services/battery"
	"pulsecore-go/services/indicator"
	"pulsecore-go/services/pulse"
	"pulsecore-go/types"
	"pulsecore-go/x/mathx"
	"pulsecore-go/x/msgring"
)

// OpKind is the closed set of operations the engine can run. The set is
// fixed at build time; dispatch is a single match at Dispatched, not virtual
// dispatch.
type OpKind uint8

const (
	OpNone OpKind = iota
	// Self-tests, addressed by test id in the ExecuteTest payload.
	OpPulseTiming  // 0x01 on the wire
	OpBatteryCalib // 0x02
	OpLED          // 0x03
	OpStress       // 0x04
	OpCommEcho     // 0x05
	// Host queries, addressed by command type.
	OpStateQuery
	OpConfigQuery
	OpPerfMetrics
	OpSuite
	OpGetResults
	OpClearResults
)

func (k OpKind) String() string {
	switch k {
	case OpPulseTiming:
		return "pulse_timing_validation"
	case OpBatteryCalib:
		return "battery_adc_calibration"
	case OpLED:
		return "led_functionality"
	case OpStress:
		return "system_stress_test"
	case OpCommEcho:
		return "comm_echo_test"
	case OpStateQuery:
		return "state_query"
	case OpConfigQuery:
		return "config_query"
	case OpPerfMetrics:
		return "perf_metrics"
	case OpSuite:
		return "suite"
	case OpGetResults:
		return "get_results"
	case OpClearResults:
		return "clear_results"
	}
	return "none"
}

// testID is the wire id reported in 0x92 frames for a self-test op.
func (k OpKind) testID() uint8 {
	switch k {
	case OpPulseTiming:
		return 0x01
	case OpBatteryCalib:
		return 0x02
	case OpLED:
		return 0x03
	case OpStress:
		return 0x04
	case OpCommEcho:
		return 0x05
	}
	return 0
}

func opForTestID(id uint8) OpKind {
	switch id {
	case 0x01:
		return OpPulseTiming
	case 0x02:
		return OpBatteryCalib
	case 0x03:
		return OpLED
	case 0x04:
		return OpStress
	case 0x05:
		return OpCommEcho
	}
	return OpNone
}

// suiteOrder is the fixed sequence RunSuite executes.
var suiteOrder = [...]OpKind{OpPulseTiming, OpBatteryCalib, OpLED, OpStress, OpCommEcho}

// Env bundles the collaborators handlers may consult. All access is
// read-only snapshots or level-1-owned state; handlers never block and must
// be abandonable at any step boundary without leaving hardware state
// uncommitted.
type Env struct {
	Cfg      types.DeviceConfig
	Battery  *battery.Task
	Pulse    *pulse.Task
	Ind      *indicator.Indicator
	LogStats func() msgring.Stats
	Send     func(buf [frame.Size]byte) bool
	NowMs    func() uint32
}

// opParams are drawn from the command payload, with per-op defaults.
type opParams struct {
	durationMs uint32
}

func defaultDuration(k OpKind) uint32 {
	switch k {
	case OpPulseTiming:
		return 1500 // three full waveform periods
	case OpBatteryCalib:
		return 500 // five samples at 10 Hz
	case OpLED:
		return 200
	case OpStress:
		return 1000
	}
	return 0
}

// stepOutcome is what one handler step reports back to the engine.
type stepOutcome struct {
	done    bool
	failMsg string // non-empty => Failed
}

func running() stepOutcome          { return stepOutcome{} }
func finished() stepOutcome         { return stepOutcome{done: true} }
func failed(msg string) stepOutcome { return stepOutcome{done: true, failMsg: msg} }

// --- Self-test handlers -------------------------------------------------
//
// Each handler is a bounded step function; the engine re-invokes it every
// level-1 pass until it reports done or a budget trips. Handlers keep their
// cursor in the ExecContext and their working memory in its scratch buffer.

type pulseTimingState struct {
	startStats pulse.Stats
	startedAt  uint32
}

func (e *Engine) stepPulseTiming(ctx *ExecContext, nowMs uint32) stepOutcome {
	if ctx.step == 0 {
		ctx.step++
		e.ptState = pulseTimingState{startStats: e.env.Pulse.Snapshot(), startedAt: nowMs}
		ctx.TrackAlloc(uint32(len("window")) + 16)
		return running()
	}
	if nowMs-e.ptState.startedAt < e.params.durationMs {
		return running()
	}
	end := e.env.Pulse.Snapshot()
	if end.Violations > e.ptState.startStats.Violations {
		return failed("tolerance violated during window")
	}
	if end.Cycles == e.ptState.startStats.Cycles && e.params.durationMs >= e.env.Cfg.Pulse.PeriodMs() {
		return failed("waveform not advancing")
	}
	devHi := end.MaxHighDevMs
	if mathx.Permille(devHi, e.env.Cfg.Pulse.HighMs) > e.env.Cfg.Pulse.TolerancePermille && devHi > 0 {
		return failed("high phase out of tolerance")
	}
	return finished()
}

type batteryCalibState struct {
	samples  uint32
	min, max uint16
	nextAt   uint32
}

func (e *Engine) stepBatteryCalib(ctx *ExecContext, nowMs uint32) stepOutcome {
	interval := e.env.Cfg.Battery.SampleIntervalMs
	if ctx.step == 0 {
		ctx.step++
		e.bcState = batteryCalibState{min: 0xFFFF, nextAt: nowMs}
		ctx.TrackAlloc(16)
		return running()
	}
	if !uintAfterOrEqual(nowMs, e.bcState.nextAt) {
		return running()
	}
	snap := e.env.Battery.Snapshot()
	e.bcState.min = mathx.Min(e.bcState.min, snap.Sample)
	e.bcState.max = mathx.Max(e.bcState.max, snap.Sample)
	e.bcState.samples++
	e.bcState.nextAt = nowMs + interval
	if e.bcState.samples*interval < e.params.durationMs {
		return running()
	}
	if e.bcState.max >= e.env.Cfg.Battery.FullMax {
		return failed("adc reading above safe maximum")
	}
	// A dead ADC reads a flat 0 across the whole window.
	if e.bcState.max == 0 && e.bcState.samples > 1 {
		return failed("adc stuck at zero")
	}
	return finished()
}

func (e *Engine) stepLED(ctx *ExecContext, nowMs uint32) stepOutcome {
	// Four bounded steps: on, verify, off, verify. The indicator resumes
	// its battery pattern on the next level-1 pass, so abandonment at any
	// step leaves no state uncommitted.
	switch ctx.step {
	case 0:
		e.env.Ind.Override(true)
	case 1:
		if !e.env.Ind.On() {
			e.env.Ind.ClearOverride()
			return failed("led did not assert")
		}
	case 2:
		e.env.Ind.Override(false)
	case 3:
		if e.env.Ind.On() {
			e.env.Ind.ClearOverride()
			return failed("led did not release")
		}
		e.env.Ind.ClearOverride()
		return finished()
	}
	ctx.step++
	return running()
}

// stressWorkingSet caps the stress test's scratch growth; past it the
// handler churns the same slab instead of allocating more.
const stressWorkingSet = 2048

func (e *Engine) stepStress(ctx *ExecContext, nowMs uint32) stepOutcome {
	if ctx.step == 0 {
		ctx.step++
		e.stressStart = nowMs
		return running()
	}
	// One bounded slab of work per pass, tracked against the memory budget.
	if ctx.BytesUsed < stressWorkingSet {
		_ = ctx.Grow(256)
	}
	var acc uint32
	for i := uint32(0); i < 4096; i++ {
		acc = acc*1664525 + 1013904223
	}
	e.stressAcc = acc
	if nowMs-e.stressStart < e.params.durationMs {
		return running()
	}
	return finished()
}

func (e *Engine) stepCommEcho(ctx *ExecContext, nowMs uint32) stepOutcome {
	// The transport already round-tripped the command frame for us to be
	// here; emit a status report carrying the payload echo.
	var echo [frame.Size]byte
	echo[0] = frame.RptStatus
	echo[1] = ctx.CommandID
	echo[2] = uint8(len(e.echoPayload))
	copy(echo[3:], e.echoPayload)
	if !e.env.Send(echo) {
		return failed("echo send rejected")
	}
	return finished()
}

// --- Query handlers -----------------------------------------------------

func (e *Engine) stepStateQuery(ctx *ExecContext, nowMs uint32) stepOutcome {
	snap := e.env.Battery.Snapshot()
	ps := e.env.Pulse.Snapshot()
	ls := e.env.LogStats()

	var rpt [frame.Size]byte
	rpt[0] = frame.RptStatus
	rpt[1] = ctx.CommandID
	rpt[2] = statusKindState
	binary.LittleEndian.PutUint32(rpt[4:8], nowMs)
	rpt[8] = uint8(snap.State)
	binary.LittleEndian.PutUint16(rpt[9:11], snap.Sample)
	binary.LittleEndian.PutUint32(rpt[11:15], ps.Cycles)
	binary.LittleEndian.PutUint32(rpt[15:19], ps.MaxHighDevMs)
	binary.LittleEndian.PutUint32(rpt[19:23], ps.MaxLowDevMs)
	binary.LittleEndian.PutUint32(rpt[23:27], ls.Sent)
	binary.LittleEndian.PutUint32(rpt[27:31], ls.Dropped)
	binary.LittleEndian.PutUint32(rpt[31:35], ls.Peak)
	if asserted := e.env.Pulse.Asserted(); asserted {
		rpt[35] = 1
	}
	e.env.Send(rpt)
	return finished()
}

func (e *Engine) stepConfigQuery(ctx *ExecContext, nowMs uint32) stepOutcome {
	cfg := e.env.Cfg
	var rpt [frame.Size]byte
	rpt[0] = frame.RptStatus
	rpt[1] = ctx.CommandID
	rpt[2] = statusKindConfig
	binary.LittleEndian.PutUint32(rpt[4:8], cfg.Pulse.HighMs)
	binary.LittleEndian.PutUint32(rpt[8:12], cfg.Pulse.LowMs)
	binary.LittleEndian.PutUint32(rpt[12:16], cfg.Battery.SampleIntervalMs)
	binary.LittleEndian.PutUint16(rpt[16:18], cfg.Battery.LowMax)
	binary.LittleEndian.PutUint16(rpt[18:20], cfg.Battery.NormalMax)
	binary.LittleEndian.PutUint16(rpt[20:22], cfg.Battery.ChargingMax)
	binary.LittleEndian.PutUint16(rpt[22:24], cfg.Battery.FullMax)
	rpt[24] = uint8(cfg.Queues.LogSlots)
	rpt[25] = uint8(cfg.Queues.CommandSlots)
	binary.LittleEndian.PutUint32(rpt[26:30], cfg.Exec.TimeBudgetMs)
	binary.LittleEndian.PutUint32(rpt[30:34], cfg.Exec.MemoryBudgetBytes)
	e.env.Send(rpt)
	return finished()
}

func (e *Engine) stepPerfMetrics(ctx *ExecContext, nowMs uint32) stepOutcome {
	ps := e.env.Pulse.Snapshot()
	ls := e.env.LogStats()
	var rpt [frame.Size]byte
	rpt[0] = frame.RptStatus
	rpt[1] = ctx.CommandID
	rpt[2] = statusKindPerf
	binary.LittleEndian.PutUint32(rpt[4:8], ps.Cycles)
	binary.LittleEndian.PutUint32(rpt[8:12], ps.MaxHighDevMs)
	binary.LittleEndian.PutUint32(rpt[12:16], ps.MaxLowDevMs)
	binary.LittleEndian.PutUint32(rpt[16:20], ps.Violations)
	binary.LittleEndian.PutUint32(rpt[20:24], ls.Sent)
	binary.LittleEndian.PutUint32(rpt[24:28], ls.Dropped)
	binary.LittleEndian.PutUint32(rpt[28:32], ls.Peak)
	binary.LittleEndian.PutUint32(rpt[32:36], ls.Depth)
	binary.LittleEndian.PutUint32(rpt[36:40], e.env.Battery.SampleCount())
	e.env.Send(rpt)
	return finished()
}

func (e *Engine) stepGetResults(ctx *ExecContext, nowMs uint32) stepOutcome {
	// One stored result per step keeps each pass bounded.
	if int(ctx.step) >= len(e.results) {
		return finished()
	}
	buf := frame.EncodeTestResult(e.results[ctx.step])
	e.env.Send(buf)
	ctx.step++
	if int(ctx.step) >= len(e.results) {
		return finished()
	}
	return running()
}

func (e *Engine) stepClearResults(ctx *ExecContext, nowMs uint32) stepOutcome {
	e.results = e.results[:0]
	return finished()
}

// Status report sub-kinds (byte [2] of an 0x95 report).
const (
	statusKindState  = 0x01
	statusKindConfig = 0x02
	statusKindPerf   = 0x03
)

func uintAfterOrEqual(a, b uint32) bool { return int32(a-b) >= 0 }
