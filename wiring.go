package main

import (
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

// core is the assembled task hierarchy, identical on device and host; only
// the collaborators differ.
type core struct {
	sched *sched.Scheduler
	ring  *msgring.Ring
	pulse *pulse.Task
	batt  *battery.Task
}

func buildCore(cfg types.DeviceConfig, link transport.Link, out pulse.OutputPin, led indicator.LED, adc battery.SampleSource, entry bootctl.EntryPoint) *core {
	ring := msgring.New(cfg.Queues.LogSlots)
	log := msgring.NewLogger(ring, timex.NowMs, "main", types.LevelDebug)
	s := sched.New(sched.WallClock{})

	var pulseTask *pulse.Task
	fatal := func(msg string) {
		println("fatal:", msg)
		pulseTask.Stop()
		s.Halt()
	}

	pulseTask = pulse.New(cfg.Pulse, out, log.Sub("pulse"), fatal)
	battTask := battery.New(cfg.Battery, adc, log.Sub("battery"), fatal)
	ind := indicator.New(led, battTask)
	q := command.NewQueue(cfg.Queues.CommandSlots)

	// The outbound path is the transport task, created last; the closure
	// defers the binding.
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
	}, entry, s.Halt, send, log.Sub("bootctl"))

	tr = transport.New(link, q, boot, cfg.Exec.CommandDeadlineMs, log.Sub("transport"))

	s.Register(pulseTask)
	s.Register(battTask)
	s.Register(command.NewTask(eng, ring, send, boot.Tick))
	s.Register(tr)
	s.Seal()

	return &core{sched: s, ring: ring, pulse: pulseTask, batt: battTask}
}

func (c *core) start() {
	now := timex.NowMs()
	c.pulse.Start(now)
	c.batt.Start(now)
}
