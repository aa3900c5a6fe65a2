package pcap04

import (
	"errors"
	"strconv"
)

// Sentinel errors.
var (
	// ErrChipAbsent marks a position that answers only the bus idle level
	// (pull-ups: 0xFF, or a stuck-low 0x00) across every self-test retry.
	ErrChipAbsent = errors.New("pcap04: chip absent or unresponsive")

	// ErrTimeout marks a bounded wait (conversion, NV completion) that
	// expired before the chip reported ready.
	ErrTimeout = errors.New("pcap04: timeout")

	// ErrBadSensor marks a sensor index outside 0..5.
	ErrBadSensor = errors.New("pcap04: sensor index out of range")
)

// SelectionError reports a chip identifier outside 0..7.
type SelectionError struct {
	Chip int
}

func (e *SelectionError) Error() string {
	return "pcap04: chip " + strconv.Itoa(e.Chip) + " out of range"
}

// BusError wraps a transfer-level fault from the SPI transport. The failing
// operation is preserved for diagnostics; the cause unwraps.
type BusError struct {
	Op  string
	Err error
}

func (e *BusError) Error() string { return "pcap04: " + e.Op + ": " + e.Err.Error() }
func (e *BusError) Unwrap() error { return e.Err }

// LengthError reports a firmware or config payload whose size differs from
// the fixed protocol length. No bus traffic happens when it is returned.
type LengthError struct {
	Op   string
	Want int
	Got  int
}

func (e *LengthError) Error() string {
	return "pcap04: " + e.Op + ": payload is " + strconv.Itoa(e.Got) +
		" bytes, want " + strconv.Itoa(e.Want)
}

// LoopbackError reports the first mismatching byte of a pattern self-test.
type LoopbackError struct {
	Index int
	Want  byte
	Got   byte
}

func (e *LoopbackError) Error() string {
	return "pcap04: loopback mismatch at byte " + strconv.Itoa(e.Index) +
		": wrote 0x" + hexByte(e.Want) + ", read 0x" + hexByte(e.Got)
}

// ProtocolError reports an unexpected test-read response. Meaning carries
// the decoded fault class when the code is one of the documented values,
// and is empty for unknown codes.
type ProtocolError struct {
	Code    byte
	Meaning string
}

func (e *ProtocolError) Error() string {
	if e.Meaning != "" {
		return "pcap04: test read 0x" + hexByte(e.Code) + ": " + e.Meaning
	}
	return "pcap04: test read returned unknown code 0x" + hexByte(e.Code)
}

func hexByte(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0xF]})
}
