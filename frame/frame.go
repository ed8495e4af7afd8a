// Package frame implements the fixed 64-byte command/report wire format.
//
// Command frame (host -> device):
//
//	[0]=type [1]=id [2]=payload_len [3]=checksum [4..64)=payload
//
// checksum = (type + id + payload_len + sum(payload[:payload_len])) mod 256.
// Bytes past payload_len are zero on the wire and ignored on decode.
package frame

import "pulsecore-go/errcode"

// Size is the fixed frame width in both directions.
const Size = 64

// MaxPayload is the largest payload a command frame can carry.
const MaxPayload = 60

// Command types accepted by the device.
const (
	CmdEnterBootloader  = 0x80
	CmdStateQuery       = 0x81
	CmdExecuteTest      = 0x82
	CmdConfigQuery      = 0x83
	CmdPerfMetrics      = 0x84
	CmdRunSuite         = 0x85
	CmdGetResults       = 0x86
	CmdClearResults     = 0x87
	CmdCancelBootloader = 0x88
)

// Report types emitted by the device.
const (
	RptAck          = 0x90
	RptLog          = 0x91
	RptTestResult   = 0x92
	RptSuiteSummary = 0x93
	RptError        = 0x94
	RptStatus       = 0x95
)

// CommandFrame is a parsed, checksum-validated command.
type CommandFrame struct {
	Type       uint8
	ID         uint8
	PayloadLen uint8
	Checksum   uint8
	Payload    [MaxPayload]byte
}

// PayloadBytes returns the live payload slice.
func (f *CommandFrame) PayloadBytes() []byte { return f.Payload[:f.PayloadLen] }

// Sum computes the additive checksum over the populated fields.
func Sum(typ, id, payloadLen uint8, payload []byte) uint8 {
	s := typ + id + payloadLen
	for _, b := range payload {
		s += b
	}
	return s
}

// New builds a valid frame from parts, truncating payload to MaxPayload.
func New(typ, id uint8, payload []byte) CommandFrame {
	if len(payload) > MaxPayload {
		payload = payload[:MaxPayload]
	}
	f := CommandFrame{Type: typ, ID: id, PayloadLen: uint8(len(payload))}
	copy(f.Payload[:], payload)
	f.Checksum = Sum(f.Type, f.ID, f.PayloadLen, payload)
	return f
}

// Decode validates a raw 64-byte buffer. Validation order matters: length
// first, then payload_len, then checksum; a frame with payload_len > 60 is
// rejected before any checksum work. A failed decode has no side effects.
func Decode(buf []byte) (CommandFrame, error) {
	if len(buf) < Size {
		return CommandFrame{}, errcode.FrameShort
	}
	pl := buf[2]
	if pl > MaxPayload {
		return CommandFrame{}, errcode.FrameLength
	}
	if Sum(buf[0], buf[1], pl, buf[4:4+int(pl)]) != buf[3] {
		return CommandFrame{}, errcode.FrameChecksum
	}
	f := CommandFrame{Type: buf[0], ID: buf[1], PayloadLen: pl, Checksum: buf[3]}
	copy(f.Payload[:pl], buf[4:4+int(pl)])
	return f, nil
}

// Encode serializes a frame into the fixed layout, zero-padding unused
// payload bytes.
func Encode(f CommandFrame) [Size]byte {
	var buf [Size]byte
	buf[0], buf[1], buf[2], buf[3] = f.Type, f.ID, f.PayloadLen, f.Checksum
	copy(buf[4:], f.Payload[:f.PayloadLen])
	return buf
}
