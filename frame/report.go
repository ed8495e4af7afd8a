package frame

import (
	"encoding/binary"

	"pulsecore-go/types"
)

// Report layouts (device -> host). All integers little-endian.
//
//	0x91 log record:  [0]=type [1..5)=timestamp [5]=level [6..14)=module [14..62)=text
//	0x92 test result: [0]=type [1]=test id [2]=status [3]=reserved
//	                  [4..36)=name [36..60)=message [60..64)=exec time ms
//	0x93 suite summary: [0]=type [1]=suite id [2..4) reserved [4..6)=total
//	                  [6..8)=passed [8..10)=failed [10..12)=skipped
//	                  [12..16)=exec time ms [16..48)=suite name [48..64) reserved

// EncodeLog serializes a log record report.
func EncodeLog(m *types.LogMessage) [Size]byte {
	var buf [Size]byte
	buf[0] = RptLog
	binary.LittleEndian.PutUint32(buf[1:5], m.Timestamp)
	buf[5] = uint8(m.Level)
	copy(buf[6:14], m.Module[:])
	copy(buf[14:62], m.Text[:])
	return buf
}

// DecodeLog parses a log record report; ok is false if buf is not one.
func DecodeLog(buf []byte) (m types.LogMessage, ok bool) {
	if len(buf) < Size || buf[0] != RptLog {
		return m, false
	}
	m.Timestamp = binary.LittleEndian.Uint32(buf[1:5])
	m.Level = types.LogLevel(buf[5])
	copy(m.Module[:], buf[6:14])
	copy(m.Text[:], buf[14:62])
	return m, true
}

// TestResult is a single self-test outcome.
type TestResult struct {
	TestID    uint8
	Status    uint8
	Name      string // truncated to 32 bytes on the wire
	Message   string // truncated to 24 bytes on the wire
	ElapsedMs uint32
}

// EncodeTestResult serializes a 0x92 report.
func EncodeTestResult(r TestResult) [Size]byte {
	var buf [Size]byte
	buf[0] = RptTestResult
	buf[1] = r.TestID
	buf[2] = r.Status
	copy(buf[4:36], r.Name)
	copy(buf[36:60], r.Message)
	binary.LittleEndian.PutUint32(buf[60:64], r.ElapsedMs)
	return buf
}

// DecodeTestResult parses a 0x92 report.
func DecodeTestResult(buf []byte) (r TestResult, ok bool) {
	if len(buf) < Size || buf[0] != RptTestResult {
		return r, false
	}
	r.TestID = buf[1]
	r.Status = buf[2]
	r.Name = trimZero(buf[4:36])
	r.Message = trimZero(buf[36:60])
	r.ElapsedMs = binary.LittleEndian.Uint32(buf[60:64])
	return r, true
}

// SuiteSummary aggregates one suite run.
type SuiteSummary struct {
	SuiteID   uint8
	Total     uint16
	Passed    uint16
	Failed    uint16
	Skipped   uint16
	ElapsedMs uint32
	Name      string // truncated to 32 bytes on the wire
}

// EncodeSuiteSummary serializes a 0x93 report.
func EncodeSuiteSummary(s SuiteSummary) [Size]byte {
	var buf [Size]byte
	buf[0] = RptSuiteSummary
	buf[1] = s.SuiteID
	binary.LittleEndian.PutUint16(buf[4:6], s.Total)
	binary.LittleEndian.PutUint16(buf[6:8], s.Passed)
	binary.LittleEndian.PutUint16(buf[8:10], s.Failed)
	binary.LittleEndian.PutUint16(buf[10:12], s.Skipped)
	binary.LittleEndian.PutUint32(buf[12:16], s.ElapsedMs)
	copy(buf[16:48], s.Name)
	return buf
}

// DecodeSuiteSummary parses a 0x93 report.
func DecodeSuiteSummary(buf []byte) (s SuiteSummary, ok bool) {
	if len(buf) < Size || buf[0] != RptSuiteSummary {
		return s, false
	}
	s.SuiteID = buf[1]
	s.Total = binary.LittleEndian.Uint16(buf[4:6])
	s.Passed = binary.LittleEndian.Uint16(buf[6:8])
	s.Failed = binary.LittleEndian.Uint16(buf[8:10])
	s.Skipped = binary.LittleEndian.Uint16(buf[10:12])
	s.ElapsedMs = binary.LittleEndian.Uint32(buf[12:16])
	s.Name = trimZero(buf[16:48])
	return s, true
}

// EncodeError serializes a 0x94 report: [1]=command id, [2]=status code,
// [3..) zero-terminated detail.
func EncodeError(cmdID, status uint8, detail string) [Size]byte {
	var buf [Size]byte
	buf[0] = RptError
	buf[1] = cmdID
	buf[2] = status
	copy(buf[3:], detail)
	return buf
}

func trimZero(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}
