//go:build !rp2040 && !rp2350

package main

import (
	"context"
	"os"
	"os/signal"

	"pulsecore-go/services/transport"
	"pulsecore-go/types"
)

// Host-simulation collaborators: the waveform drives a variable, the ADC
// reads a fixed mid-range cell, and update entry terminates the process.

type simPin struct{ level bool }

func (p *simPin) Set(on bool) { p.level = on }

type simADC struct{ v uint16 }

func (a *simADC) LatestSample() uint16 { return a.v }

type simEntry struct{}

func (simEntry) Enter() {
	println("update entry: handing off")
	os.Exit(0)
}

func main() {
	cfg := types.DefaultConfig()
	// OS timer jitter dwarfs the 2 ms high phase; on the host the tolerance
	// covers a whole missed phase rather than the device-grade permille.
	cfg.Pulse.TolerancePermille = 1000
	link := transport.NewLoopback()
	c := buildCore(cfg, link, &simPin{}, &simPin{}, &simADC{v: 1500}, simEntry{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c.start()
	println("pulsecore: waveform running, ^C to halt")
	c.sched.Run(ctx)
	c.pulse.Stop()
	println("pulsecore: halted")
}
