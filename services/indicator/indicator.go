// Package indicator maps battery state to LED patterns. It is evaluated
// during level-1 passes: read-only access to the battery snapshot,
// synchronous evaluation, no queue access at all.
package indicator

import (
	"pulsecore-go/services/battery"
	"pulsecore-go/types"
)

// LED is the status output collaborator.
type LED interface {
	Set(on bool)
}

const (
	lowFlashMs   = 250
	faultFlashMs = 100
)

type Indicator struct {
	led  LED
	batt *battery.Task

	lastToggle uint32
	on         bool
	lastState  types.BatteryState
	primed     bool
	overridden bool
}

func New(led LED, batt *battery.Task) *Indicator {
	return &Indicator{led: led, batt: batt}
}

// Update applies the pattern for the current battery state:
// Normal off, Low slow flash, Charging/Full solid, Fault fast flash.
func (i *Indicator) Update(nowMs uint32) {
	if i.overridden {
		return
	}
	snap := i.batt.Snapshot()
	if !i.primed || snap.State != i.lastState {
		i.primed = true
		i.lastState = snap.State
		i.lastToggle = nowMs
		i.apply(initialLevel(snap.State))
	}

	switch snap.State {
	case types.BatteryLow:
		i.flash(nowMs, lowFlashMs)
	case types.BatteryFault:
		i.flash(nowMs, faultFlashMs)
	}
}

func initialLevel(s types.BatteryState) bool {
	switch s {
	case types.BatteryCharging, types.BatteryFull, types.BatteryLow, types.BatteryFault:
		return true
	}
	return false
}

func (i *Indicator) flash(nowMs, periodMs uint32) {
	if nowMs-i.lastToggle >= periodMs {
		i.lastToggle = nowMs
		i.apply(!i.on)
	}
}

func (i *Indicator) apply(on bool) {
	i.on = on
	i.led.Set(on)
}

// On reports the current LED level (used by the LED self-test).
func (i *Indicator) On() bool { return i.on }

// Override pins the LED to a fixed level for the LED self-test. The battery
// pattern is suspended until ClearOverride.
func (i *Indicator) Override(on bool) {
	i.overridden = true
	i.apply(on)
}

// ClearOverride releases an Override; the next Update re-applies the
// battery pattern from scratch.
func (i *Indicator) ClearOverride() {
	i.overridden = false
	i.primed = false
}
