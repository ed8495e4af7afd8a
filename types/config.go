package types

// -----------------------------------------------------------------------------
// Embedded device configuration
//
// One fixed configuration per board variant, resolved at boot. There is no
// persistent storage; these are the values the firmware runs with until the
// next flash.
// -----------------------------------------------------------------------------

type PulseConfig struct {
	HighMs uint32 // asserted phase duration
	LowMs  uint32 // de-asserted phase duration
	// TolerancePermille is the allowed per-phase deviation, in 0.1% units.
	// 10 = the ±1% budget the device is certified to.
	TolerancePermille uint32
}

func (c PulseConfig) PeriodMs() uint32 { return c.HighMs + c.LowMs }

type BatteryConfig struct {
	SampleIntervalMs uint32
	// Ordered ADC thresholds splitting the range into the five states.
	LowMax      uint16 // <= LowMax            -> Low
	NormalMax   uint16 // (LowMax, NormalMax)  -> Normal (exclusive upper)
	ChargingMax uint16 // [NormalMax, ChargingMax) -> Charging
	FullMax     uint16 // [ChargingMax, FullMax)   -> Full; >= FullMax -> Fault
}

type QueueConfig struct {
	LogSlots     int // message queue capacity, power of two
	CommandSlots int
}

type ExecConfig struct {
	// Defaults applied when a command payload carries no explicit budget.
	TimeBudgetMs      uint32
	MemoryBudgetBytes uint32
	// Hard caps a payload-supplied budget may not exceed.
	MaxTimeBudgetMs      uint32
	MaxMemoryBudgetBytes uint32
	// Commands not dispatched within this window are dropped as expired.
	CommandDeadlineMs uint32
}

type BootConfig struct {
	// Delay between Armed and Committed during which a cancel command is
	// still honoured.
	ConfirmDelayMs uint32
}

type DeviceConfig struct {
	Pulse   PulseConfig
	Battery BatteryConfig
	Queues  QueueConfig
	Exec    ExecConfig
	Boot    BootConfig
}

// DefaultConfig is the pulseloop production profile: 2 Hz waveform with a
// 2 ms asserted phase, 10 Hz battery sampling.
func DefaultConfig() DeviceConfig {
	return DeviceConfig{
		Pulse: PulseConfig{
			HighMs:            2,
			LowMs:             498,
			TolerancePermille: 10,
		},
		Battery: BatteryConfig{
			SampleIntervalMs: 100,
			LowMax:           1425,
			NormalMax:        1675,
			ChargingMax:      1800,
			FullMax:          2400,
		},
		Queues: QueueConfig{
			LogSlots:     32,
			CommandSlots: 8,
		},
		Exec: ExecConfig{
			TimeBudgetMs:         5000,
			MemoryBudgetBytes:    4096,
			MaxTimeBudgetMs:      30_000,
			MaxMemoryBudgetBytes: 64_000,
			CommandDeadlineMs:    1000,
		},
		Boot: BootConfig{
			ConfirmDelayMs: 500,
		},
	}
}
