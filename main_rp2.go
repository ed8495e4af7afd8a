//go:build rp2040 || rp2350

package main

import (
	"context"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"pulsecore-go/drivers/max17048"
	"pulsecore-go/services/battery"
	"pulsecore-go/services/transport"
	"pulsecore-go/types"
)

const (
	pulsePin = machine.GPIO15
	battPin  = machine.GPIO26 // ADC0, cell through the /2 divider
	uartBaud = 115200
)

type gpioPin struct{ p machine.Pin }

func (g gpioPin) Set(on bool) { g.p.Set(on) }

type rp2ADC struct{ a machine.ADC }

// LatestSample narrows the left-aligned 16-bit reading to 12-bit counts.
func (r rp2ADC) LatestSample() uint16 { return r.a.Get() >> 4 }

// batterySource prefers the MAX17048 fuel gauge when one answers on I2C0;
// boards without the gauge fall back to the divided-ADC reading.
func batterySource(fallback battery.SampleSource) battery.SampleSource {
	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{}); err != nil {
		return fallback
	}
	gauge := max17048.New(i2c, max17048.AddressDefault)
	if err := gauge.Configure(); err != nil {
		println("fuel gauge absent, using ADC")
		return fallback
	}
	println("fuel gauge present")
	return max17048.NewSource(gauge)
}

type rp2Entry struct{}

func (rp2Entry) Enter() {
	machine.EnterBootloader()
	for {
	}
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot")

	out := machine.Pin(pulsePin)
	out.Configure(machine.PinConfig{Mode: machine.PinOutput})
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})

	machine.InitADC()
	adc := machine.ADC{Pin: battPin}
	adc.Configure(machine.ADCConfig{})

	src := batterySource(rp2ADC{adc})

	link, err := transport.NewUARTLink(uartx.UART0, uartBaud, machine.UART0_TX_PIN, machine.UART0_RX_PIN)
	if err != nil {
		println("uart init failed:", err.Error())
		return
	}

	c := buildCore(types.DefaultConfig(), link, gpioPin{out}, gpioPin{led}, src, rp2Entry{})
	c.start()
	println("pulsecore: waveform running")
	c.sched.Run(context.Background())
}
