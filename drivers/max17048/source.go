package max17048

// Source adapts the gauge to the sampling task's collaborator contract,
// converting cell microvolts into the divided-ADC count domain the battery
// thresholds are calibrated against (cell through a /2 divider into a
// 12-bit converter at 3.3 V full scale).
type Source struct {
	dev  *Device
	last uint16
}

func NewSource(dev *Device) *Source { return &Source{dev: dev} }

// LatestSample is non-blocking in effect: on a bus error it returns the
// previous conversion, which the sampling contract explicitly allows.
func (s *Source) LatestSample() uint16 {
	uv, err := s.dev.CellVoltageMicro()
	if err != nil {
		return s.last
	}
	s.last = CountFromMicrovolts(uv)
	return s.last
}

// CountFromMicrovolts maps a cell voltage to the equivalent ADC count.
func CountFromMicrovolts(uv uint32) uint16 {
	c := uint64(uv) * 4095 / (2 * 3_300_000)
	if c > 4095 {
		c = 4095
	}
	return uint16(c)
}
