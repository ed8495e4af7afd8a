package indicator

import (
	"testing"

	"pulsecore-go/services/battery"
	"pulsecore-go/types"
	"pulsecore-go/x/msgring"
)

type stubLED struct {
	on     bool
	writes int
}

func (l *stubLED) Set(on bool) {
	l.on = on
	l.writes++
}

type stubADC struct{ v uint16 }

func (s *stubADC) LatestSample() uint16 { return s.v }

func fixture(t *testing.T, adc uint16) (*Indicator, *stubLED, *stubADC, *battery.Task) {
	t.Helper()
	src := &stubADC{v: adc}
	ring := msgring.New(32)
	log := msgring.NewLogger(ring, func() uint32 { return 0 }, "battery", types.LevelDebug)
	batt := battery.New(types.DefaultConfig().Battery, src, log, func(msg string) { t.Fatalf("fatal: %s", msg) })
	led := &stubLED{}
	return New(led, batt), led, src, batt
}

func TestNormalStateKeepsLEDOff(t *testing.T) {
	ind, led, _, batt := fixture(t, 1500)
	batt.Observe(1500)

	ind.Update(0)
	ind.Update(1000)
	if led.on {
		t.Fatal("LED on in Normal state")
	}
}

func TestChargingAndFullAreSolid(t *testing.T) {
	ind, led, _, batt := fixture(t, 1700)
	batt.Observe(1700) // Charging

	ind.Update(0)
	if !led.on {
		t.Fatal("LED off in Charging state")
	}
	writes := led.writes
	ind.Update(5000) // no flashing: no further writes while stable
	if led.writes != writes {
		t.Fatal("solid pattern toggled")
	}

	batt.Observe(2000) // Full
	ind.Update(6000)
	if !led.on {
		t.Fatal("LED off in Full state")
	}
}

func TestLowStateFlashesSlowly(t *testing.T) {
	ind, led, _, batt := fixture(t, 1200)
	batt.Observe(1200)

	ind.Update(0)
	if !led.on {
		t.Fatal("flash must start asserted")
	}
	ind.Update(249)
	if !led.on {
		t.Fatal("toggled before the 250 ms half-period")
	}
	ind.Update(250)
	if led.on {
		t.Fatal("did not toggle at the 250 ms half-period")
	}
	ind.Update(500)
	if !led.on {
		t.Fatal("did not toggle back")
	}
}

func TestFaultFlashesFast(t *testing.T) {
	ind, led, _, batt := fixture(t, 3000)
	batt.Observe(3000)

	ind.Update(0)
	on := led.on
	ind.Update(100)
	if led.on == on {
		t.Fatal("fault pattern did not toggle at 100 ms")
	}
}

func TestOverrideSuspendsPattern(t *testing.T) {
	ind, led, _, batt := fixture(t, 1200)
	batt.Observe(1200) // Low: would flash

	ind.Override(true)
	ind.Update(250)
	ind.Update(500)
	if !led.on {
		t.Fatal("override level lost to the battery pattern")
	}

	ind.ClearOverride()
	ind.Update(501)
	if !led.on {
		t.Fatal("pattern did not resume after ClearOverride")
	}
}
