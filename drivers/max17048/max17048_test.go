package max17048

import (
	"errors"
	"testing"
)

// mockI2C answers word reads from a register map and records writes.
type mockI2C struct {
	regs   map[byte]uint16
	writes []struct {
		reg byte
		val uint16
	}
	fail bool
}

func (m *mockI2C) Tx(addr uint16, w, r []byte) error {
	if m.fail {
		return errTx
	}
	if len(r) == 2 {
		v := m.regs[w[0]]
		r[0] = byte(v >> 8)
		r[1] = byte(v)
		return nil
	}
	m.writes = append(m.writes, struct {
		reg byte
		val uint16
	}{w[0], uint16(w[1])<<8 | uint16(w[2])})
	return nil
}

var errTx = errors.New("tx failed")

func TestCellVoltageScaling(t *testing.T) {
	m := &mockI2C{regs: map[byte]uint16{regVCell: 0xA000}}
	d := New(m, 0)

	uv, err := d.CellVoltageMicro()
	if err != nil {
		t.Fatal(err)
	}
	// 0xA000 = 40960 LSB * 78.125 µV = 3_200_000 µV.
	if uv != 3_200_000 {
		t.Fatalf("voltage = %d µV, want 3200000", uv)
	}
}

func TestStateOfCharge(t *testing.T) {
	m := &mockI2C{regs: map[byte]uint16{regSOC: 0x6380}} // 99.5 %
	d := New(m, 0)
	soc, err := d.StateOfCharge()
	if err != nil {
		t.Fatal(err)
	}
	if soc != 99 {
		t.Fatalf("soc = %d, want 99", soc)
	}
}

func TestConfigureProbesVersion(t *testing.T) {
	d := New(&mockI2C{fail: true}, 0)
	if err := d.Configure(); err != ErrNotPresent {
		t.Fatalf("err = %v, want ErrNotPresent", err)
	}
}

func TestQuickStartWritesMode(t *testing.T) {
	m := &mockI2C{regs: map[byte]uint16{}}
	d := New(m, 0)
	if err := d.QuickStart(); err != nil {
		t.Fatal(err)
	}
	if len(m.writes) != 1 || m.writes[0].reg != regMode || m.writes[0].val != modeQuickStart {
		t.Fatalf("writes = %+v, want mode quick-start", m.writes)
	}
}

func TestSourceConvertsToCountDomain(t *testing.T) {
	m := &mockI2C{regs: map[byte]uint16{regVCell: 0xA000}} // 3.2 V
	src := NewSource(New(m, 0))

	// 3.2 V through the /2 divider reads 1.6 V on a 3.3 V 12-bit converter.
	got := src.LatestSample()
	want := CountFromMicrovolts(3_200_000)
	if got != want {
		t.Fatalf("sample = %d, want %d", got, want)
	}
	if want != 1985 {
		t.Fatalf("count = %d, want 1985", want)
	}

	// Bus failure returns the previous conversion.
	m.fail = true
	if got := src.LatestSample(); got != want {
		t.Fatalf("sample after bus error = %d, want cached %d", got, want)
	}
}
