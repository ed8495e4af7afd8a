package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pulsecore-go/bus"
	"pulsecore-go/frame"
	"pulsecore-go/sched"
	"pulsecore-go/services/battery"
	"pulsecore-go/services/bootctl"
	"pulsecore-go/services/command"
	"pulsecore-go/services/indicator"
	"pulsecore-go/services/pulse"
	"pulsecore-go/services/transport"
	"pulsecore-go/types"
	"pulsecore-go/x/msgring"
	"pulsecore-go/x/timex"
)

// Bus topics the monitor publishes decoded reports on.
const (
	topicLog    = "report/log"
	topicTest   = "report/test"
	topicSuite  = "report/suite"
	topicError  = "report/error"
	topicAck    = "report/ack"
	topicStatus = "report/status"
	topicState  = "device/state"
)

// ErrorReport is the decoded form of an 0x94 frame.
type ErrorReport struct {
	CommandID uint8
	Status    uint8
	Detail    string
}

// AckReport is the decoded form of an 0x90 frame.
type AckReport struct {
	CommandID uint8
	Detail    uint8
}

// StatusReport carries a raw 0x95 payload plus its sub-kind.
type StatusReport struct {
	CommandID uint8
	Kind      uint8
	Raw       [frame.Size]byte
}

var errTimeout = errors.New("timed out waiting for device report")

// Monitor runs the device core in-process behind a loopback link and fans
// the decoded report stream out on the bus, where the REPL, the script
// runner and the MQTT bridge consume it independently.
type Monitor struct {
	cfg     types.DeviceConfig
	link    *transport.Loopback
	sched   *sched.Scheduler
	pulse   *pulse.Task
	batt    *battery.Task
	adc     *monADC
	bus     *bus.Bus
	log     *zap.Logger
	session string

	mu     sync.Mutex
	nextID uint8

	cancel context.CancelFunc
	done   chan struct{}
}

type monEntry struct{ log *zap.Logger }

func (e monEntry) Enter() {
	e.log.Info("simulated update entry reached", zap.Uint32("magic", bootctl.EntryMagic))
}

// monADC is the simulated cell reading, adjustable from the REPL while the
// sampling task reads it from the scheduler goroutine.
type monADC struct{ v atomic.Uint32 }

func (a *monADC) LatestSample() uint16 { return uint16(a.v.Load()) }
func (a *monADC) Set(count uint16)     { a.v.Store(uint32(count)) }

type monPin struct{ level bool }

func (p *monPin) Set(on bool) { p.level = on }

func newMonitor(cfg types.DeviceConfig, adcCount uint16, session string, zl *zap.Logger) *Monitor {
	m := &Monitor{
		cfg:     cfg,
		link:    transport.NewLoopback(),
		bus:     bus.New(64),
		log:     zl,
		session: session,
		adc:     &monADC{},
	}
	m.adc.Set(adcCount)

	ring := msgring.New(cfg.Queues.LogSlots)
	log := msgring.NewLogger(ring, timex.NowMs, "main", types.LevelDebug)
	s := sched.New(sched.WallClock{})

	var pulseTask *pulse.Task
	fatal := func(msg string) {
		zl.Error("device fatal", zap.String("reason", msg))
		pulseTask.Stop()
		s.Halt()
	}

	pulseTask = pulse.New(cfg.Pulse, &monPin{}, log.Sub("pulse"), fatal)
	battTask := battery.New(cfg.Battery, m.adc, log.Sub("battery"), fatal)
	ind := indicator.New(&monPin{}, battTask)
	q := command.NewQueue(cfg.Queues.CommandSlots)

	var tr *transport.Task
	send := func(buf [frame.Size]byte) bool { return tr.Send(buf) }

	eng := command.NewEngine(command.Env{
		Cfg:      cfg,
		Battery:  battTask,
		Pulse:    pulseTask,
		Ind:      ind,
		LogStats: ring.Stats,
		Send:     send,
		NowMs:    timex.NowMs,
	}, q, log.Sub("command"))

	boot := bootctl.New(cfg.Boot, func() (bool, string) {
		if pulseTask.Asserted() {
			return false, "output asserted"
		}
		if eng.Busy() {
			return false, "execution running"
		}
		return true, ""
	}, monEntry{zl}, s.Halt, send, log.Sub("bootctl"))

	tr = transport.New(m.link, q, boot, cfg.Exec.CommandDeadlineMs, log.Sub("transport"))

	s.Register(pulseTask)
	s.Register(battTask)
	s.Register(command.NewTask(eng, ring, send, boot.Tick))
	s.Register(tr)
	s.Seal()

	m.sched = s
	m.pulse = pulseTask
	m.batt = battTask
	return m
}

// Start launches the device loop and the report pump.
func (m *Monitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	now := timex.NowMs()
	m.pulse.Start(now)
	m.batt.Start(now)

	go m.sched.Run(ctx)
	go m.pump(ctx)
	m.log.Info("device core running", zap.String("session", m.session))
}

func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.pulse.Stop()
	m.log.Info("device core stopped")
}

// pump drains reports off the link and publishes their decoded forms.
func (m *Monitor) pump(ctx context.Context) {
	defer close(m.done)
	tick := time.NewTicker(2 * time.Millisecond)
	defer tick.Stop()
	conn := m.bus.NewConnection("pump")

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		for {
			buf, ok := m.link.HostRecv()
			if !ok {
				break
			}
			m.publish(conn, buf)
		}
	}
}

func (m *Monitor) publish(conn *bus.Connection, buf [frame.Size]byte) {
	switch buf[0] {
	case frame.RptLog:
		if rec, ok := frame.DecodeLog(buf[:]); ok {
			conn.Publish(bus.NewMessage(topicLog, rec))
		}
	case frame.RptTestResult:
		if res, ok := frame.DecodeTestResult(buf[:]); ok {
			conn.Publish(bus.NewMessage(fmt.Sprintf("%s/%d", topicTest, res.TestID), res))
		}
	case frame.RptSuiteSummary:
		if sum, ok := frame.DecodeSuiteSummary(buf[:]); ok {
			conn.Publish(bus.NewMessage(topicSuite, sum))
		}
	case frame.RptError:
		conn.Publish(bus.NewMessage(topicError, ErrorReport{
			CommandID: buf[1],
			Status:    buf[2],
			Detail:    trimZeroBytes(buf[3:]),
		}))
	case frame.RptAck:
		conn.Publish(bus.NewMessage(topicAck, AckReport{CommandID: buf[1], Detail: buf[3]}))
	case frame.RptStatus:
		rpt := StatusReport{CommandID: buf[1], Kind: buf[2], Raw: buf}
		conn.Publish(bus.NewMessage(topicStatus, rpt))
		if rpt.Kind == 0x01 {
			// Battery state lives at byte 8 of a state report; retain it so
			// late subscribers see the current state immediately.
			conn.Publish(bus.NewRetained(topicState, types.BatteryState(buf[8]).String()))
		}
	default:
		m.log.Warn("unknown report type", zap.Uint8("type", buf[0]))
	}
}

func trimZeroBytes(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}

// Send frames a command toward the device, returning its command id.
func (m *Monitor) Send(typ uint8, payload []byte) uint8 {
	m.mu.Lock()
	m.nextID++
	if m.nextID == 0 {
		m.nextID = 1
	}
	id := m.nextID
	m.mu.Unlock()

	m.link.HostSend(frame.Encode(frame.New(typ, id, payload)))
	return id
}

// Await blocks for the first bus message on pattern accepted by match.
func (m *Monitor) Await(pattern string, timeout time.Duration, match func(*bus.Message) bool) (*bus.Message, error) {
	conn := m.bus.NewConnection("await")
	defer conn.Disconnect()
	sub := conn.Subscribe(pattern)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case msg := <-sub.Channel():
			if match == nil || match(msg) {
				return msg, nil
			}
		case <-deadline.C:
			return nil, errTimeout
		}
	}
}

// Request sends a command and waits for the matching report on pattern.
func (m *Monitor) Request(typ uint8, payload []byte, pattern string, timeout time.Duration) (*bus.Message, error) {
	// Subscribe before sending so a fast reply cannot be missed.
	conn := m.bus.NewConnection("request")
	defer conn.Disconnect()
	sub := conn.Subscribe(pattern)

	id := m.Send(typ, payload)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case msg := <-sub.Channel():
			if reportMatchesID(msg, id) {
				return msg, nil
			}
		case <-deadline.C:
			return nil, errTimeout
		}
	}
}

func reportMatchesID(msg *bus.Message, id uint8) bool {
	switch p := msg.Payload.(type) {
	case StatusReport:
		return p.CommandID == id
	case ErrorReport:
		return p.CommandID == id
	case AckReport:
		return p.CommandID == id
	case frame.SuiteSummary:
		return p.SuiteID == id
	case frame.TestResult:
		return true // test results carry the test id, not the command id
	}
	return true
}
