package pcap04

// Self tests. The two strategies catch different failure classes and are not
// interchangeable: the pattern test exercises the full write/read data path
// through chip memory, the test-read opcode exposes link polarity and byte
// order faults via the chip's fixed response codes.

// loopbackPattern is the fixed 4-byte self-test pattern: alternating bit
// pairs plus nibble blocks, so single stuck bits, swaps and inversions all
// show up.
var loopbackPattern = [4]byte{0xAA, 0x55, 0xF0, 0x0F}

// patternAddr is the working-memory scratch address the pattern lands at.
// The pattern test clobbers loaded firmware; run it during bring-up, before
// UploadFirmware.
const patternAddr byte = 0x00

// testReadRetries bounds how often TestRead re-probes a silent chip before
// declaring the position absent.
const testReadRetries = 3

// TestPattern writes the fixed pattern to working memory, reads it back and
// compares byte for byte. A mismatch reports the first differing index with
// both values.
func (d *Device) TestPattern() error {
	var got [len(loopbackPattern)]byte
	err := d.bus.exclusive(func(o *ownedBus) error {
		if err := o.transaction(d.ch, func(t *txn) error {
			return t.writeBlock(cmdWrMem, patternAddr, loopbackPattern[:])
		}); err != nil {
			return err
		}
		return o.transaction(d.ch, func(t *txn) error {
			return t.readBlock(cmdRdMem, patternAddr, got[:])
		})
	})
	if err != nil {
		return err
	}
	for i, want := range loopbackPattern {
		if got[i] != want {
			return &LoopbackError{Index: i, Want: want, Got: got[i]}
		}
	}
	return nil
}

// TestRead sends the diagnostic opcode and interprets the chip's fixed
// response code. A position that only ever answers the bus idle level
// (0xFF from the pull-ups, or stuck 0x00) across the retry budget is
// reported absent rather than as a protocol fault.
func (d *Device) TestRead() error {
	for attempt := 0; attempt < testReadRetries; attempt++ {
		var resp byte
		err := d.bus.transaction(d.ch, func(t *txn) error {
			v, err := t.testRead()
			resp = v
			return err
		})
		if err != nil {
			return err
		}
		if resp == testPass {
			return nil
		}
		if resp != 0x00 && resp != 0xFF {
			return decodeTestResponse(resp)
		}
		// Idle sentinel: the chip may still be waking up, retry.
	}
	return ErrChipAbsent
}

func decodeTestResponse(code byte) error {
	switch code {
	case testSwapped:
		return &ProtocolError{Code: code, Meaning: "byte order swapped"}
	case testInverted:
		return &ProtocolError{Code: code, Meaning: "data lines inverted"}
	case testSwapInv:
		return &ProtocolError{Code: code, Meaning: "byte order swapped and data inverted"}
	default:
		return &ProtocolError{Code: code}
	}
}
