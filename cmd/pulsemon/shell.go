package main

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"pulsecore-go/frame"
	"pulsecore-go/types"
)

const replyTimeout = 3 * time.Second

// testNames maps REPL names to wire test ids.
var testNames = map[string]uint8{
	"pulse":   0x01,
	"battery": 0x02,
	"led":     0x03,
	"stress":  0x04,
	"echo":    0x05,
}

func newShell(m *Monitor) *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt("pulsemon> ")

	sh.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "query device state (battery, waveform, queue stats)",
		Func: func(c *ishell.Context) { cmdStatus(c, m) },
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "config",
		Help: "query the device's active configuration",
		Func: func(c *ishell.Context) { cmdConfig(c, m) },
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "perf",
		Help: "query performance counters",
		Func: func(c *ishell.Context) { cmdPerf(c, m) },
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "test",
		Help: "test <pulse|battery|led|stress|echo> [time_budget_ms] [mem_budget_bytes]",
		Func: func(c *ishell.Context) { cmdTest(c, m) },
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "suite",
		Help: "run the full self-test suite",
		Func: func(c *ishell.Context) { cmdSuite(c, m) },
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "results",
		Help: "replay stored test results",
		Func: func(c *ishell.Context) { cmdResults(c, m) },
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "clear",
		Help: "clear stored test results",
		Func: func(c *ishell.Context) { cmdClear(c, m) },
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "boot",
		Help: "boot [cancel]: negotiate bootloader entry",
		Func: func(c *ishell.Context) { cmdBoot(c, m) },
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "logs",
		Help: "logs [seconds]: tail the device log stream",
		Func: func(c *ishell.Context) { cmdLogs(c, m) },
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "adc",
		Help: "adc <count>: set the simulated battery reading",
		Func: func(c *ishell.Context) { cmdADC(c, m) },
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "script",
		Help: "script <file>: run commands from a file",
		Func: func(c *ishell.Context) { cmdScript(c, sh) },
	})
	return sh
}

func cmdStatus(c *ishell.Context, m *Monitor) {
	msg, err := m.Request(frame.CmdStateQuery, nil, topicStatus, replyTimeout)
	if err != nil {
		c.Err(err)
		return
	}
	raw := msg.Payload.(StatusReport).Raw
	c.Printf("uptime     %d ms\n", binary.LittleEndian.Uint32(raw[4:8]))
	c.Printf("battery    %s (adc %d)\n",
		types.BatteryState(raw[8]), binary.LittleEndian.Uint16(raw[9:11]))
	c.Printf("cycles     %d\n", binary.LittleEndian.Uint32(raw[11:15]))
	c.Printf("dev hi/lo  %d/%d ms\n",
		binary.LittleEndian.Uint32(raw[15:19]), binary.LittleEndian.Uint32(raw[19:23]))
	c.Printf("log q      sent %d dropped %d peak %d\n",
		binary.LittleEndian.Uint32(raw[23:27]),
		binary.LittleEndian.Uint32(raw[27:31]),
		binary.LittleEndian.Uint32(raw[31:35]))
	c.Printf("output     asserted=%v\n", raw[35] == 1)
}

func cmdConfig(c *ishell.Context, m *Monitor) {
	msg, err := m.Request(frame.CmdConfigQuery, nil, topicStatus, replyTimeout)
	if err != nil {
		c.Err(err)
		return
	}
	raw := msg.Payload.(StatusReport).Raw
	c.Printf("pulse      %d ms high / %d ms low\n",
		binary.LittleEndian.Uint32(raw[4:8]), binary.LittleEndian.Uint32(raw[8:12]))
	c.Printf("sampling   every %d ms\n", binary.LittleEndian.Uint32(raw[12:16]))
	c.Printf("thresholds low<=%d normal<%d charging<%d full<%d\n",
		binary.LittleEndian.Uint16(raw[16:18]), binary.LittleEndian.Uint16(raw[18:20]),
		binary.LittleEndian.Uint16(raw[20:22]), binary.LittleEndian.Uint16(raw[22:24]))
	c.Printf("queues     log %d, command %d\n", raw[24], raw[25])
	c.Printf("budgets    %d ms / %d bytes\n",
		binary.LittleEndian.Uint32(raw[26:30]), binary.LittleEndian.Uint32(raw[30:34]))
}

func cmdPerf(c *ishell.Context, m *Monitor) {
	msg, err := m.Request(frame.CmdPerfMetrics, nil, topicStatus, replyTimeout)
	if err != nil {
		c.Err(err)
		return
	}
	raw := msg.Payload.(StatusReport).Raw
	c.Printf("cycles     %d\n", binary.LittleEndian.Uint32(raw[4:8]))
	c.Printf("dev hi/lo  %d/%d ms, violations %d\n",
		binary.LittleEndian.Uint32(raw[8:12]),
		binary.LittleEndian.Uint32(raw[12:16]),
		binary.LittleEndian.Uint32(raw[16:20]))
	c.Printf("log q      sent %d dropped %d peak %d depth %d\n",
		binary.LittleEndian.Uint32(raw[20:24]),
		binary.LittleEndian.Uint32(raw[24:28]),
		binary.LittleEndian.Uint32(raw[28:32]),
		binary.LittleEndian.Uint32(raw[32:36]))
	c.Printf("samples    %d\n", binary.LittleEndian.Uint32(raw[36:40]))
}

func cmdTest(c *ishell.Context, m *Monitor) {
	if len(c.Args) < 1 {
		c.Err(fmt.Errorf("usage: %s", c.Cmd.Help))
		return
	}
	id, ok := testNames[c.Args[0]]
	if !ok {
		c.Err(fmt.Errorf("unknown test %q", c.Args[0]))
		return
	}

	payload := make([]byte, 13)
	payload[0] = id
	timeout := 10 * time.Second
	if len(c.Args) > 1 {
		ms, err := strconv.ParseUint(c.Args[1], 10, 32)
		if err != nil {
			c.Err(err)
			return
		}
		binary.LittleEndian.PutUint32(payload[1:5], uint32(ms))
		timeout = time.Duration(ms)*time.Millisecond + replyTimeout
	}
	if len(c.Args) > 2 {
		b, err := strconv.ParseUint(c.Args[2], 10, 32)
		if err != nil {
			c.Err(err)
			return
		}
		binary.LittleEndian.PutUint32(payload[5:9], uint32(b))
	}

	msg, err := m.Request(frame.CmdExecuteTest, payload, fmt.Sprintf("%s/%d", topicTest, id), timeout)
	if err != nil {
		c.Err(err)
		return
	}
	printResult(c, msg.Payload.(frame.TestResult))
}

func cmdSuite(c *ishell.Context, m *Monitor) {
	conn := m.bus.NewConnection("suite")
	defer conn.Disconnect()
	results := conn.Subscribe(topicTest + "/+")
	summary := conn.Subscribe(topicSuite)

	m.Send(frame.CmdRunSuite, nil)

	deadline := time.NewTimer(60 * time.Second)
	defer deadline.Stop()
	for {
		select {
		case msg := <-results.Channel():
			printResult(c, msg.Payload.(frame.TestResult))
		case msg := <-summary.Channel():
			s := msg.Payload.(frame.SuiteSummary)
			c.Printf("suite %q: %d/%d passed, %d failed, %d skipped in %d ms\n",
				s.Name, s.Passed, s.Total, s.Failed, s.Skipped, s.ElapsedMs)
			return
		case <-deadline.C:
			c.Err(errTimeout)
			return
		}
	}
}

func cmdResults(c *ishell.Context, m *Monitor) {
	conn := m.bus.NewConnection("results")
	defer conn.Disconnect()
	results := conn.Subscribe(topicTest + "/+")
	acks := conn.Subscribe(topicAck)

	id := m.Send(frame.CmdGetResults, nil)

	deadline := time.NewTimer(replyTimeout)
	defer deadline.Stop()
	for {
		select {
		case msg := <-results.Channel():
			printResult(c, msg.Payload.(frame.TestResult))
		case msg := <-acks.Channel():
			if ack := msg.Payload.(AckReport); ack.CommandID == id {
				c.Printf("%d stored result(s)\n", ack.Detail)
				return
			}
		case <-deadline.C:
			c.Err(errTimeout)
			return
		}
	}
}

func cmdClear(c *ishell.Context, m *Monitor) {
	if _, err := m.Request(frame.CmdClearResults, nil, topicAck, replyTimeout); err != nil {
		c.Err(err)
		return
	}
	c.Println("results cleared")
}

func cmdBoot(c *ishell.Context, m *Monitor) {
	typ := uint8(frame.CmdEnterBootloader)
	if len(c.Args) > 0 && c.Args[0] == "cancel" {
		typ = frame.CmdCancelBootloader
	}

	conn := m.bus.NewConnection("boot")
	defer conn.Disconnect()
	acks := conn.Subscribe(topicAck)
	errs := conn.Subscribe(topicError)

	id := m.Send(typ, nil)

	deadline := time.NewTimer(replyTimeout)
	defer deadline.Stop()
	for {
		select {
		case msg := <-acks.Channel():
			if ack := msg.Payload.(AckReport); ack.CommandID == id {
				switch ack.Detail {
				case 0x01:
					c.Println("armed: committing after the confirmation delay unless cancelled")
				case 0x02:
					c.Println("cancelled")
				}
				return
			}
		case msg := <-errs.Channel():
			if rpt := msg.Payload.(ErrorReport); rpt.CommandID == id {
				c.Printf("refused (status %#02x): %s\n", rpt.Status, rpt.Detail)
				return
			}
		case <-deadline.C:
			c.Err(errTimeout)
			return
		}
	}
}

func cmdLogs(c *ishell.Context, m *Monitor) {
	secs := 2
	if len(c.Args) > 0 {
		n, err := strconv.Atoi(c.Args[0])
		if err != nil {
			c.Err(err)
			return
		}
		secs = n
	}

	conn := m.bus.NewConnection("logs")
	defer conn.Disconnect()
	sub := conn.Subscribe(topicLog)

	stop := time.NewTimer(time.Duration(secs) * time.Second)
	defer stop.Stop()
	for {
		select {
		case msg := <-sub.Channel():
			rec := msg.Payload.(types.LogMessage)
			c.Printf("[%8d] %-5s %-8s %s\n",
				rec.Timestamp, rec.Level, rec.ModuleString(), rec.TextString())
		case <-stop.C:
			return
		}
	}
}

func cmdADC(c *ishell.Context, m *Monitor) {
	if len(c.Args) != 1 {
		c.Err(fmt.Errorf("usage: %s", c.Cmd.Help))
		return
	}
	count, err := strconv.ParseUint(c.Args[0], 10, 16)
	if err != nil {
		c.Err(err)
		return
	}
	m.adc.Set(uint16(count))
	c.Printf("simulated cell reading set to %d\n", count)
}

func printResult(c *ishell.Context, r frame.TestResult) {
	verdict := "PASS"
	if r.Status != 0 {
		verdict = fmt.Sprintf("FAIL (%#02x)", r.Status)
	}
	line := fmt.Sprintf("%-26s %s in %d ms", r.Name, verdict, r.ElapsedMs)
	if r.Message != "" {
		line += ": " + r.Message
	}
	c.Println(line)
}
