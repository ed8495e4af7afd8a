package types

// ---- Log records ----

// LogLevel orders diagnostic severity. The numeric values are part of the
// wire format (log report byte [5]) and must not be reordered.
type LogLevel uint8

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "?"
}

const (
	// ModuleNameLen is the fixed module field width in a log record.
	ModuleNameLen = 8
	// LogTextLen is the fixed text field width in a log record.
	LogTextLen = 48
)

// LogMessage is an immutable diagnostic record. It is created by any task,
// consumed exactly once by the drain task, and never mutated in between.
// Module and Text are truncated to their fixed widths and zero padded; a
// full Text field carries no terminator.
type LogMessage struct {
	Timestamp uint32 // milliseconds since boot
	Level     LogLevel
	Module    [ModuleNameLen]byte
	Text      [LogTextLen]byte
}

// NewLogMessage builds a record, truncating module and text to the fixed
// field widths.
func NewLogMessage(timestampMs uint32, level LogLevel, module, text string) LogMessage {
	m := LogMessage{Timestamp: timestampMs, Level: level}
	copy(m.Module[:], module)
	copy(m.Text[:], text)
	return m
}

// ModuleString returns the module field with zero padding stripped.
func (m *LogMessage) ModuleString() string { return trimZero(m.Module[:]) }

// TextString returns the text field with zero padding stripped.
func (m *LogMessage) TextString() string { return trimZero(m.Text[:]) }

func trimZero(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}

// ---- Battery ----

// BatteryState is derived purely from the latest ADC sample; see
// services/battery for the threshold table.
type BatteryState uint8

const (
	BatteryLow BatteryState = iota
	BatteryNormal
	BatteryCharging
	BatteryFull
	BatteryFault
)

func (s BatteryState) String() string {
	switch s {
	case BatteryLow:
		return "low"
	case BatteryNormal:
		return "normal"
	case BatteryCharging:
		return "charging"
	case BatteryFull:
		return "full"
	case BatteryFault:
		return "fault"
	}
	return "?"
}
