// Package max17048 provides a minimal TinyGo driver for the MAX17048
// single-cell fuel gauge, used as an alternative battery sample source on
// boards where the cell is not wired to an ADC divider.
//
// Datasheet notes:
// • I2C, 7-bit address 0x36, 16-bit registers transferred MSB first.
// • VCELL LSB = 78.125 µV; SOC register in 1/256 %.
// • Quick-start via MODE, full reset via the CMD register.
package max17048

import (
	"errors"

	"tinygo.org/x/drivers"
)

const AddressDefault uint16 = 0x36

const (
	regVCell   = 0x02
	regSOC     = 0x04
	regMode    = 0x06
	regVersion = 0x08
	regConfig  = 0x0C
	regStatus  = 0x1A
	regCmd     = 0xFE
)

const (
	modeQuickStart = 0x4000
	cmdReset       = 0x5400
)

var ErrNotPresent = errors.New("max17048 not responding")

type Device struct {
	i2c  drivers.I2C
	addr uint16

	// Fixed buffers to avoid per-call heap allocations.
	w [3]byte
	r [2]byte
}

func New(i2c drivers.I2C, addr uint16) *Device {
	if addr == 0 {
		addr = AddressDefault
	}
	return &Device{i2c: i2c, addr: addr}
}

// Configure probes the version register to confirm the part is present.
func (d *Device) Configure() error {
	if _, err := d.Version(); err != nil {
		return ErrNotPresent
	}
	return nil
}

func (d *Device) Version() (uint16, error) { return d.readWord(regVersion) }

// CellVoltageMicro returns the cell voltage in microvolts.
func (d *Device) CellVoltageMicro() (uint32, error) {
	raw, err := d.readWord(regVCell)
	if err != nil {
		return 0, err
	}
	// 78.125 µV/LSB = 625/8.
	return uint32(raw) * 625 / 8, nil
}

// StateOfCharge returns the gauge's SOC estimate in whole percent.
func (d *Device) StateOfCharge() (uint8, error) {
	raw, err := d.readWord(regSOC)
	if err != nil {
		return 0, err
	}
	return uint8(raw >> 8), nil
}

// QuickStart restarts the gauge's model from the current cell voltage.
func (d *Device) QuickStart() error { return d.writeWord(regMode, modeQuickStart) }

// Reset issues a full power-on reset of the gauge.
func (d *Device) Reset() error { return d.writeWord(regCmd, cmdReset) }

// I2C 16-bit word operations (big-endian: HIGH then LOW).

func (d *Device) readWord(reg byte) (uint16, error) {
	d.w[0] = reg
	if err := d.i2c.Tx(d.addr, d.w[:1], d.r[:2]); err != nil {
		return 0, err
	}
	return uint16(d.r[0])<<8 | uint16(d.r[1]), nil
}

func (d *Device) writeWord(reg byte, val uint16) error {
	d.w[0] = reg
	d.w[1] = byte(val >> 8)
	d.w[2] = byte(val)
	return d.i2c.Tx(d.addr, d.w[:3], nil)
}
