package errcode

// Code is a stable, report-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Frame layer
	FrameShort    Code = "frame_short"
	FrameLength   Code = "frame_length"
	FrameChecksum Code = "frame_checksum"

	// Command layer
	UnknownCommand   Code = "unknown_command"
	InvalidPayload   Code = "invalid_payload"
	CommandExpired   Code = "command_expired"
	QueueFull        Code = "queue_full"
	Busy             Code = "busy"
	TimedOut         Code = "timed_out"
	ResourceExceeded Code = "resource_exceeded"

	// Bootloader entry
	SafetyCheckFailed Code = "safety_check_failed"
	NotArmed          Code = "not_armed"

	Error Code = "error" // generic fallback
)

// WireStatus maps a Code to the one-byte status used in report frames.
func WireStatus(c Code) uint8 {
	switch c {
	case OK:
		return 0x00
	case UnknownCommand:
		return 0x01
	case FrameChecksum:
		return 0x02
	case TimedOut, CommandExpired:
		return 0x03
	case Busy, QueueFull:
		return 0x04
	case ResourceExceeded:
		return 0x05
	case SafetyCheckFailed, NotArmed:
		return 0x06
	case InvalidPayload, FrameLength, FrameShort:
		return 0x07
	}
	return 0xFF
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
