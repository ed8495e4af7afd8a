package command

import (
	"encoding/binary"

	"pulsecore-go/errcode"
	"pulsecore-go/frame"
	"pulsecore-go/types"
	"pulsecore-go/x/conv"
	"pulsecore-go/x/mathx"
	"pulsecore-go/x/msgring"
)

type engineState uint8

const (
	engIdle engineState = iota
	engDispatched
	engRunning
)

// resultHistory bounds the buffer served by the get-results command.
const resultHistory = 8

// Engine dequeues validated commands in arrival order and runs them through
// the fixed operation set under time and memory budgets. At most one
// execution context exists at any instant; a command arriving while one is
// running stays queued, which bounds worst-case interference with the
// timing-critical levels to a single execution's budget.
type Engine struct {
	env Env
	q   *Queue
	log *msgring.Logger

	state engineState
	ctx   ExecContext

	params      opParams
	ptState     pulseTimingState
	bcState     batteryCalibState
	stressStart uint32
	stressAcc   uint32
	echoPayload []byte

	suite          bool
	suiteIdx       int
	suiteSummary   frame.SuiteSummary
	suiteSubOp     OpKind
	suiteStartedMs uint32
	subTestStartMs uint32

	results []frame.TestResult
}

func NewEngine(env Env, q *Queue, log *msgring.Logger) *Engine {
	return &Engine{env: env, q: q, log: log}
}

// Busy reports whether an execution context currently exists. The
// bootloader safety predicate consults this.
func (e *Engine) Busy() bool { return e.state != engIdle }

// HasWork reports queued or in-flight commands; the control task uses it to
// tell the host-loop runner whether it may sleep.
func (e *Engine) HasWork() bool { return e.state != engIdle || e.q.Len() > 0 }

// Context returns the live execution context (zero value when idle).
func (e *Engine) Context() ExecContext { return e.ctx }

// Pump advances the engine by exactly one bounded step. Each scheduler pass
// re-checks the budgets before letting the handler run again, so a handler
// can never outlive its budget by more than one step.
func (e *Engine) Pump(nowMs uint32) bool {
	switch e.state {
	case engIdle:
		return e.dispatch(nowMs)
	case engDispatched:
		e.begin(nowMs)
		return true
	case engRunning:
		e.runStep(nowMs)
		return true
	}
	return false
}

// dispatch pops the next command. Commands whose deadline has passed are
// dropped with a timeout report and never enter Running.
func (e *Engine) dispatch(nowMs uint32) bool {
	cmd, ok := e.q.Pop()
	if !ok {
		return false
	}
	if cmd.Expired(nowMs) {
		e.logExpired(cmd, nowMs)
		e.env.Send(frame.EncodeError(cmd.Frame.ID, errcode.WireStatus(errcode.CommandExpired), "expired before dispatch"))
		return true
	}

	op := opForCommand(&cmd.Frame)
	if op == OpNone {
		e.env.Send(frame.EncodeError(cmd.Frame.ID, errcode.WireStatus(errcode.UnknownCommand), "unknown operation"))
		return true
	}

	timeBudget, memBudget := e.budgets(&cmd.Frame)
	e.ctx = ExecContext{
		CommandID:         cmd.Frame.ID,
		Op:                op,
		Seq:               cmd.Seq,
		TimeBudgetMs:      timeBudget,
		MemoryBudgetBytes: memBudget,
		Status:            StatusPending,
	}
	e.params = opParams{durationMs: paramDuration(&cmd.Frame, op)}
	e.echoPayload = append(e.echoPayload[:0], cmd.Frame.PayloadBytes()...)
	e.state = engDispatched
	return true
}

// begin moves Dispatched -> Running and initializes per-op bookkeeping.
func (e *Engine) begin(nowMs uint32) {
	e.ctx.Status = StatusRunning
	e.ctx.StartedAtMs = nowMs
	e.ctx.step = 0
	e.ctx.scratch = e.ctx.scratch[:0]

	if e.ctx.Op == OpSuite {
		e.suite = true
		e.suiteIdx = 0
		e.suiteSubOp = suiteOrder[0]
		e.suiteStartedMs = nowMs
		e.subTestStartMs = nowMs
		e.params.durationMs = defaultDuration(suiteOrder[0])
		e.suiteSummary = frame.SuiteSummary{
			SuiteID: e.ctx.CommandID,
			Total:   uint16(len(suiteOrder)),
			Name:    "pulseloop_selftest",
		}
	} else {
		e.suite = false
	}
	e.state = engRunning
}

func (e *Engine) runStep(nowMs uint32) {
	// Budget enforcement happens before the handler sees another step.
	if e.ctx.OverTime(nowMs) {
		e.finalize(nowMs, StatusTimedOut, "time budget exhausted")
		return
	}
	if e.ctx.OverMemory() {
		e.finalize(nowMs, StatusResourceExceeded, "memory budget exhausted")
		return
	}

	op := e.ctx.Op
	if e.suite {
		op = e.suiteSubOp
	}
	out := e.step(op, nowMs)
	if !out.done {
		return
	}
	if e.suite {
		e.advanceSuite(nowMs, out)
		return
	}
	if out.failMsg != "" {
		e.finalize(nowMs, StatusFailed, out.failMsg)
		return
	}
	e.finalize(nowMs, StatusCompleted, "")
}

// step performs the single closed-union match of operation kinds.
func (e *Engine) step(op OpKind, nowMs uint32) stepOutcome {
	switch op {
	case OpPulseTiming:
		return e.stepPulseTiming(&e.ctx, nowMs)
	case OpBatteryCalib:
		return e.stepBatteryCalib(&e.ctx, nowMs)
	case OpLED:
		return e.stepLED(&e.ctx, nowMs)
	case OpStress:
		return e.stepStress(&e.ctx, nowMs)
	case OpCommEcho:
		return e.stepCommEcho(&e.ctx, nowMs)
	case OpStateQuery:
		return e.stepStateQuery(&e.ctx, nowMs)
	case OpConfigQuery:
		return e.stepConfigQuery(&e.ctx, nowMs)
	case OpPerfMetrics:
		return e.stepPerfMetrics(&e.ctx, nowMs)
	case OpGetResults:
		return e.stepGetResults(&e.ctx, nowMs)
	case OpClearResults:
		return e.stepClearResults(&e.ctx, nowMs)
	}
	return failed("unhandled operation")
}

// advanceSuite records one sub-test outcome and moves to the next, or emits
// the suite summary as the command's single terminal report.
func (e *Engine) advanceSuite(nowMs uint32, out stepOutcome) {
	sub := e.suiteSubOp
	res := frame.TestResult{
		TestID:    sub.testID(),
		Name:      sub.String(),
		Message:   out.failMsg,
		ElapsedMs: nowMs - e.subTestStartMs,
	}
	if out.failMsg == "" {
		res.Status = errcode.WireStatus(errcode.OK)
		e.suiteSummary.Passed++
	} else {
		res.Status = errcode.WireStatus(errcode.Error)
		e.suiteSummary.Failed++
	}
	e.storeResult(res)
	e.env.Send(frame.EncodeTestResult(res))

	e.suiteIdx++
	if e.suiteIdx < len(suiteOrder) {
		e.suiteSubOp = suiteOrder[e.suiteIdx]
		e.ctx.step = 0
		e.subTestStartMs = nowMs
		e.params.durationMs = defaultDuration(e.suiteSubOp)
		return
	}
	e.suiteSummary.ElapsedMs = nowMs - e.suiteStartedMs
	e.env.Send(frame.EncodeSuiteSummary(e.suiteSummary))
	e.teardown()
}

// finalize emits the command's single terminal report and returns to Idle.
func (e *Engine) finalize(nowMs uint32, status Status, msg string) {
	e.ctx.Status = status

	// Abandonment must leave no hardware state uncommitted.
	if e.ctx.Op == OpLED || (e.suite && e.suiteSubOp == OpLED) {
		e.env.Ind.ClearOverride()
	}

	if e.suite {
		// Budget tripped mid-suite: summary still goes out, with the
		// remaining tests counted as skipped.
		done := e.suiteSummary.Passed + e.suiteSummary.Failed
		e.suiteSummary.Skipped = e.suiteSummary.Total - done
		e.suiteSummary.ElapsedMs = nowMs - e.suiteStartedMs
		e.env.Send(frame.EncodeSuiteSummary(e.suiteSummary))
		e.logTerminal(status)
		e.teardown()
		return
	}

	if id := e.ctx.Op.testID(); id != 0 {
		res := frame.TestResult{
			TestID:    id,
			Status:    wireStatusFor(status),
			Name:      e.ctx.Op.String(),
			Message:   msg,
			ElapsedMs: e.ctx.ElapsedMs(nowMs),
		}
		e.storeResult(res)
		e.env.Send(frame.EncodeTestResult(res))
	} else if status == StatusCompleted {
		switch e.ctx.Op {
		case OpGetResults, OpClearResults:
			// Replay and clear have no data report of their own; the ack
			// carries how many stored results remain.
			var ack [frame.Size]byte
			ack[0] = frame.RptAck
			ack[1] = e.ctx.CommandID
			ack[3] = uint8(len(e.results))
			e.env.Send(ack)
		}
	} else {
		// Query handlers emit their own data report on success; failure
		// paths still owe the host exactly one report.
		e.env.Send(frame.EncodeError(e.ctx.CommandID, wireStatusFor(status), msg))
	}
	e.logTerminal(status)
	e.teardown()
}

func (e *Engine) teardown() {
	e.state = engIdle
	e.suite = false
	e.ctx = ExecContext{}
}

func (e *Engine) storeResult(r frame.TestResult) {
	if len(e.results) == resultHistory {
		copy(e.results, e.results[1:])
		e.results = e.results[:resultHistory-1]
	}
	e.results = append(e.results, r)
}

func wireStatusFor(s Status) uint8 {
	switch s {
	case StatusCompleted:
		return errcode.WireStatus(errcode.OK)
	case StatusTimedOut:
		return errcode.WireStatus(errcode.TimedOut)
	case StatusResourceExceeded:
		return errcode.WireStatus(errcode.ResourceExceeded)
	}
	return errcode.WireStatus(errcode.Error)
}

// opForCommand maps an accepted frame to an operation kind. Bootloader
// commands are routed to the negotiator before the engine ever sees them.
func opForCommand(f *frame.CommandFrame) OpKind {
	switch f.Type {
	case frame.CmdExecuteTest:
		if f.PayloadLen < 1 {
			return OpNone
		}
		return opForTestID(f.Payload[0])
	case frame.CmdStateQuery:
		return OpStateQuery
	case frame.CmdConfigQuery:
		return OpConfigQuery
	case frame.CmdPerfMetrics:
		return OpPerfMetrics
	case frame.CmdRunSuite:
		return OpSuite
	case frame.CmdGetResults:
		return OpGetResults
	case frame.CmdClearResults:
		return OpClearResults
	}
	return OpNone
}

// budgets draws the execution budgets from the payload when present,
// clamped to the configured hard caps; zero selects the defaults.
func (e *Engine) budgets(f *frame.CommandFrame) (timeMs, memBytes uint32) {
	exec := e.env.Cfg.Exec
	timeMs = exec.TimeBudgetMs
	memBytes = exec.MemoryBudgetBytes
	if f.Type == frame.CmdExecuteTest && f.PayloadLen >= 9 {
		if v := binary.LittleEndian.Uint32(f.Payload[1:5]); v != 0 {
			timeMs = v
		}
		if v := binary.LittleEndian.Uint32(f.Payload[5:9]); v != 0 {
			memBytes = v
		}
	}
	timeMs = mathx.Clamp(timeMs, 1, exec.MaxTimeBudgetMs)
	memBytes = mathx.Clamp(memBytes, 1, exec.MaxMemoryBudgetBytes)
	return timeMs, memBytes
}

func paramDuration(f *frame.CommandFrame, op OpKind) uint32 {
	if f.Type == frame.CmdExecuteTest && f.PayloadLen >= 13 {
		if v := binary.LittleEndian.Uint32(f.Payload[9:13]); v != 0 {
			return v
		}
	}
	if op == OpSuite {
		return 0
	}
	return defaultDuration(op)
}

func (e *Engine) logExpired(cmd QueuedCommand, nowMs uint32) {
	buf := make([]byte, 0, types.LogTextLen)
	buf = append(buf, "cmd seq="...)
	buf = conv.AppendUint(buf, uint64(cmd.Seq))
	buf = append(buf, " expired "...)
	buf = conv.AppendUint(buf, uint64(nowMs-cmd.DeadlineMs))
	buf = append(buf, "ms before dispatch"...)
	e.log.Warn(string(buf))
}

func (e *Engine) logTerminal(status Status) {
	if status == StatusCompleted {
		return
	}
	buf := make([]byte, 0, types.LogTextLen)
	buf = append(buf, e.ctx.Op.String()...)
	buf = append(buf, ": "...)
	buf = append(buf, status.String()...)
	e.log.Warn(string(buf))
}
