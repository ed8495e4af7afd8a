package command

import (
	"encoding/binary"
	"testing"

	"pulsecore-go/frame"
	"pulsecore-go/services/battery"
	"pulsecore-go/services/indicator"
	"pulsecore-go/services/pulse"
	"pulsecore-go/types"
	"pulsecore-go/x/msgring"
)

type fakePin struct{ level bool }

func (p *fakePin) Set(on bool) { p.level = on }

type fakeADC struct{ v uint16 }

func (a *fakeADC) LatestSample() uint16 { return a.v }

// harness wires a real engine against real pulse/battery/indicator tasks on
// a manual timebase, collecting every outbound report frame.
type harness struct {
	cfg  types.DeviceConfig
	now  uint32
	ring *msgring.Ring
	q    *Queue
	eng  *Engine
	pul  *pulse.Task
	batt *battery.Task
	ind  *indicator.Indicator
	adc  *fakeADC
	sent [][frame.Size]byte
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{cfg: types.DefaultConfig(), adc: &fakeADC{v: 1500}}
	h.ring = msgring.New(h.cfg.Queues.LogSlots)
	nowFn := func() uint32 { return h.now }
	log := msgring.NewLogger(h.ring, nowFn, "test", types.LevelDebug)
	fatal := func(msg string) { t.Fatalf("fatal: %s", msg) }

	h.pul = pulse.New(h.cfg.Pulse, &fakePin{}, log.Sub("pulse"), fatal)
	h.batt = battery.New(h.cfg.Battery, h.adc, log.Sub("battery"), fatal)
	h.ind = indicator.New(&fakePin{}, h.batt)
	h.q = NewQueue(h.cfg.Queues.CommandSlots)

	env := Env{
		Cfg:      h.cfg,
		Battery:  h.batt,
		Pulse:    h.pul,
		Ind:      h.ind,
		LogStats: h.ring.Stats,
		Send: func(buf [frame.Size]byte) bool {
			h.sent = append(h.sent, buf)
			return true
		},
		NowMs: nowFn,
	}
	h.eng = NewEngine(env, h.q, log.Sub("command"))
	return h
}

func (h *harness) push(t *testing.T, f frame.CommandFrame) uint32 {
	t.Helper()
	seq, ok := h.q.Push(f, h.now, h.now+h.cfg.Exec.CommandDeadlineMs)
	if !ok {
		t.Fatal("queue rejected command")
	}
	return seq
}

// service runs one simulated scheduler pass: due deadline tasks first, then
// one engine step, then 1 ms of simulated time.
func (h *harness) service() {
	if dl, ok := h.pul.NextDeadlineMs(); ok && int32(h.now-dl) >= 0 {
		h.pul.RunOnce(h.now)
		return
	}
	if dl, ok := h.batt.NextDeadlineMs(); ok && int32(h.now-dl) >= 0 {
		h.batt.RunOnce(h.now)
		return
	}
	h.eng.Pump(h.now)
	h.now++
}

func (h *harness) runUntilIdle(t *testing.T, maxMs uint32) {
	t.Helper()
	limit := h.now + maxMs
	for h.eng.HasWork() {
		if h.now >= limit {
			t.Fatalf("engine still busy after %d ms", maxMs)
		}
		h.service()
	}
}

func (h *harness) reports(typ uint8) [][frame.Size]byte {
	var out [][frame.Size]byte
	for _, buf := range h.sent {
		if buf[0] == typ {
			out = append(out, buf)
		}
	}
	return out
}

func TestStateQueryRunsToCompletion(t *testing.T) {
	h := newHarness(t)
	h.push(t, frame.New(frame.CmdStateQuery, 7, nil))
	h.runUntilIdle(t, 100)

	got := h.reports(frame.RptStatus)
	if len(got) != 1 {
		t.Fatalf("status reports = %d, want 1", len(got))
	}
	if got[0][1] != 7 {
		t.Fatalf("command id = %d, want 7", got[0][1])
	}
	if got[0][2] != statusKindState {
		t.Fatalf("status kind = %#x, want %#x", got[0][2], statusKindState)
	}
	if h.eng.Busy() {
		t.Fatal("engine still busy after terminal status")
	}
}

func TestCommandsRunInArrivalOrder(t *testing.T) {
	h := newHarness(t)
	h.push(t, frame.New(frame.CmdStateQuery, 1, nil))
	h.push(t, frame.New(frame.CmdConfigQuery, 2, nil))
	h.runUntilIdle(t, 100)

	got := h.reports(frame.RptStatus)
	if len(got) != 2 {
		t.Fatalf("status reports = %d, want 2", len(got))
	}
	if got[0][1] != 1 || got[1][1] != 2 {
		t.Fatalf("report order = %d,%d, want 1,2", got[0][1], got[1][1])
	}
}

func TestDeadlineEqualNowIsExpired(t *testing.T) {
	h := newHarness(t)
	h.now = 500
	if _, ok := h.q.Push(frame.New(frame.CmdStateQuery, 3, nil), h.now, h.now); !ok {
		t.Fatal("push rejected")
	}
	h.eng.Pump(h.now)

	if h.eng.Busy() {
		t.Fatal("expired command entered the engine")
	}
	errs := h.reports(frame.RptError)
	if len(errs) != 1 {
		t.Fatalf("error reports = %d, want 1", len(errs))
	}
	if errs[0][2] != 0x03 {
		t.Fatalf("error status = %#x, want timeout 0x03", errs[0][2])
	}
	if len(h.sent) != 1 {
		t.Fatalf("total reports = %d, want exactly 1", len(h.sent))
	}
}

func TestDeadlineStrictlyFutureIsRunnable(t *testing.T) {
	h := newHarness(t)
	h.now = 500
	if _, ok := h.q.Push(frame.New(frame.CmdStateQuery, 4, nil), h.now, h.now+1); !ok {
		t.Fatal("push rejected")
	}
	h.eng.Pump(h.now)
	if !h.eng.Busy() {
		t.Fatal("runnable command was dropped")
	}
}

// execPayload builds an ExecuteTest payload with explicit budgets.
func execPayload(testID uint8, timeMs, memBytes, durationMs uint32) []byte {
	p := make([]byte, 13)
	p[0] = testID
	binary.LittleEndian.PutUint32(p[1:5], timeMs)
	binary.LittleEndian.PutUint32(p[5:9], memBytes)
	binary.LittleEndian.PutUint32(p[9:13], durationMs)
	return p
}

func TestTimeBudgetAbandonsHandler(t *testing.T) {
	h := newHarness(t)
	// Stress test with a 50 ms budget while the handler wants 1000 ms.
	h.push(t, frame.New(frame.CmdExecuteTest, 9, execPayload(0x04, 50, 0, 0)))

	h.eng.Pump(h.now) // dispatch
	h.eng.Pump(h.now) // begin running
	h.now += 80
	h.eng.Pump(h.now) // budget check fires before the handler steps again

	if h.eng.Busy() {
		t.Fatal("engine not idle after budget exhaustion")
	}
	res := h.reports(frame.RptTestResult)
	if len(res) != 1 {
		t.Fatalf("test results = %d, want exactly 1", len(res))
	}
	if res[0][2] != 0x03 {
		t.Fatalf("result status = %#x, want timeout 0x03", res[0][2])
	}
	// No second report after the terminal one.
	before := len(h.sent)
	h.eng.Pump(h.now)
	if len(h.sent) != before {
		t.Fatal("engine emitted a report while idle")
	}
}

func TestMemoryBudgetAbandonsHandler(t *testing.T) {
	h := newHarness(t)
	// 300-byte budget; the stress handler allocates 256 per step.
	h.push(t, frame.New(frame.CmdExecuteTest, 10, execPayload(0x04, 0, 300, 0)))
	h.runUntilIdle(t, 200)

	res := h.reports(frame.RptTestResult)
	if len(res) != 1 {
		t.Fatalf("test results = %d, want 1", len(res))
	}
	if res[0][2] != 0x05 {
		t.Fatalf("result status = %#x, want resource 0x05", res[0][2])
	}
}

func TestBudgetsClampedToHardCaps(t *testing.T) {
	h := newHarness(t)
	h.push(t, frame.New(frame.CmdExecuteTest, 11, execPayload(0x05, 9_000_000, 9_000_000, 0)))
	h.eng.Pump(h.now) // dispatch
	ctx := h.eng.Context()
	if ctx.TimeBudgetMs != h.cfg.Exec.MaxTimeBudgetMs {
		t.Fatalf("time budget = %d, want cap %d", ctx.TimeBudgetMs, h.cfg.Exec.MaxTimeBudgetMs)
	}
	if ctx.MemoryBudgetBytes != h.cfg.Exec.MaxMemoryBudgetBytes {
		t.Fatalf("memory budget = %d, want cap %d", ctx.MemoryBudgetBytes, h.cfg.Exec.MaxMemoryBudgetBytes)
	}
}

func TestUnknownTestIDRejected(t *testing.T) {
	h := newHarness(t)
	h.push(t, frame.New(frame.CmdExecuteTest, 12, []byte{0x7F}))
	h.eng.Pump(h.now)

	if h.eng.Busy() {
		t.Fatal("unknown test id entered the engine")
	}
	errs := h.reports(frame.RptError)
	if len(errs) != 1 || errs[0][2] != 0x01 {
		t.Fatalf("want one error report with status 0x01, got %d reports", len(errs))
	}
}

func TestEchoReturnsCommandPayload(t *testing.T) {
	h := newHarness(t)
	payload := execPayload(0x05, 0, 0, 0)
	h.push(t, frame.New(frame.CmdExecuteTest, 13, payload))
	h.runUntilIdle(t, 100)

	status := h.reports(frame.RptStatus)
	if len(status) != 1 {
		t.Fatalf("echo reports = %d, want 1", len(status))
	}
	if got := int(status[0][2]); got != len(payload) {
		t.Fatalf("echo length = %d, want %d", got, len(payload))
	}
	for i, b := range payload {
		if status[0][3+i] != b {
			t.Fatalf("echo byte %d = %#x, want %#x", i, status[0][3+i], b)
		}
	}
	res := h.reports(frame.RptTestResult)
	if len(res) != 1 || res[0][2] != 0x00 {
		t.Fatal("echo test did not complete cleanly")
	}
}

func TestSuiteEmitsPerTestResultsAndSummary(t *testing.T) {
	h := newHarness(t)
	h.pul.Start(h.now)
	h.batt.Start(h.now)
	h.push(t, frame.New(frame.CmdRunSuite, 20, nil))
	h.runUntilIdle(t, 10_000)

	res := h.reports(frame.RptTestResult)
	if len(res) != len(suiteOrder) {
		t.Fatalf("per-test results = %d, want %d", len(res), len(suiteOrder))
	}
	for i, r := range res {
		if want := suiteOrder[i].testID(); r[1] != want {
			t.Fatalf("result %d test id = %#x, want %#x", i, r[1], want)
		}
		if r[2] != 0x00 {
			t.Fatalf("suite test %#x failed with status %#x", r[1], r[2])
		}
	}

	sums := h.reports(frame.RptSuiteSummary)
	if len(sums) != 1 {
		t.Fatalf("suite summaries = %d, want 1", len(sums))
	}
	s, ok := frame.DecodeSuiteSummary(sums[0][:])
	if !ok {
		t.Fatal("summary frame did not decode")
	}
	if s.Total != uint16(len(suiteOrder)) || s.Passed != uint16(len(suiteOrder)) || s.Failed != 0 {
		t.Fatalf("summary = %+v, want all %d passed", s, len(suiteOrder))
	}
}

func TestGetResultsReplaysHistory(t *testing.T) {
	h := newHarness(t)
	h.push(t, frame.New(frame.CmdExecuteTest, 30, execPayload(0x05, 0, 0, 0)))
	h.runUntilIdle(t, 100)
	h.sent = nil

	h.push(t, frame.New(frame.CmdGetResults, 31, nil))
	h.runUntilIdle(t, 100)

	res := h.reports(frame.RptTestResult)
	if len(res) != 1 {
		t.Fatalf("replayed results = %d, want 1", len(res))
	}
	if res[0][1] != 0x05 {
		t.Fatalf("replayed test id = %#x, want 0x05", res[0][1])
	}
	acks := h.reports(frame.RptAck)
	if len(acks) != 1 || acks[0][3] != 1 {
		t.Fatalf("want one ack carrying count 1, got %d acks", len(acks))
	}

	h.sent = nil
	h.push(t, frame.New(frame.CmdClearResults, 32, nil))
	h.runUntilIdle(t, 100)
	h.push(t, frame.New(frame.CmdGetResults, 33, nil))
	h.runUntilIdle(t, 100)
	if got := h.reports(frame.RptTestResult); len(got) != 0 {
		t.Fatalf("results after clear = %d, want 0", len(got))
	}
	if acks := h.reports(frame.RptAck); len(acks) != 2 || acks[1][3] != 0 {
		t.Fatalf("want clear+replay acks with final count 0, got %d acks", len(acks))
	}
}

func TestQueueRejectsWhenFull(t *testing.T) {
	q := NewQueue(2)
	f := frame.New(frame.CmdStateQuery, 1, nil)
	if _, ok := q.Push(f, 0, 100); !ok {
		t.Fatal("first push rejected")
	}
	if _, ok := q.Push(f, 0, 100); !ok {
		t.Fatal("second push rejected")
	}
	if _, ok := q.Push(f, 0, 100); ok {
		t.Fatal("push beyond capacity accepted")
	}
	if _, ok := q.Pop(); !ok {
		t.Fatal("pop from non-empty queue failed")
	}
	if _, ok := q.Push(f, 0, 100); !ok {
		t.Fatal("push after pop rejected")
	}
}
