package pcap04

// txn frames raw full-duplex transfers into the chip's command/address/data
// protocol. A txn only exists inside a Bus bracket: the chip is routed for
// its whole lifetime and the bus lock is held, so its methods never touch
// the mux and never block on anything but the wire and the chip's own
// processing time.
type txn struct {
	b *Bus
}

// transfer is the one place SPI traffic happens. The guard margins respect
// the chip's setup/hold timing around the clocked bytes.
func (t *txn) transfer(op string, w, r []byte) error {
	t.b.sleep(tGuard)
	err := t.b.spi.Tx(w, r)
	t.b.sleep(tGuard)
	if err != nil {
		return &BusError{Op: op, Err: err}
	}
	return nil
}

// fill reads len(buf) bytes by clocking out the configured filler byte for
// each byte received; the link is full duplex, something must be driven.
func (t *txn) fill(op string, buf []byte) error {
	w := make([]byte, len(buf))
	if f := t.b.cfg.Filler; f != 0 {
		for i := range w {
			w[i] = f
		}
	}
	return t.transfer(op, w, buf)
}

// command sends an 8-bit opcode and returns the byte clocked back during it,
// then honours the opcode's processing-time contract.
func (t *txn) command(cmd byte) (byte, error) {
	var r [1]byte
	if err := t.transfer("command", []byte{cmd}, r[:]); err != nil {
		return 0, err
	}
	t.b.sleep(waitAfter(cmd))
	return r[0], nil
}

// command16 sends a 16-bit opcode MSB first.
func (t *txn) command16(cmd uint16) (byte, error) {
	var r [2]byte
	w := [2]byte{byte(cmd >> 8), byte(cmd)}
	if err := t.transfer("command16", w[:], r[:]); err != nil {
		return 0, err
	}
	t.b.sleep(tCommand)
	return r[1], nil
}

// command32 sends a 32-bit opcode MSB first.
func (t *txn) command32(cmd uint32) (byte, error) {
	var r [4]byte
	w := [4]byte{byte(cmd >> 24), byte(cmd >> 16), byte(cmd >> 8), byte(cmd)}
	if err := t.transfer("command32", w[:], r[:]); err != nil {
		return 0, err
	}
	t.b.sleep(tCommand)
	return r[3], nil
}

// writeBlock streams payload into chip memory: opcode, start address, data,
// auto-incrementing inside the chip. The return stream is discarded.
func (t *txn) writeBlock(cmd byte, addr byte, payload []byte) error {
	w := make([]byte, 0, 2+len(payload))
	w = append(w, cmd, addr)
	w = append(w, payload...)
	if err := t.transfer("write block", w, nil); err != nil {
		return err
	}
	t.b.sleep(waitAfter(cmd))
	return nil
}

// writeBlock16 is writeBlock for the 16-bit config opcode, which carries its
// start address inside the opcode itself.
func (t *txn) writeBlock16(cmd uint16, payload []byte) error {
	w := make([]byte, 0, 2+len(payload))
	w = append(w, byte(cmd>>8), byte(cmd))
	w = append(w, payload...)
	return t.transfer("write block16", w, nil)
}

// readBlock reads n bytes from chip memory starting at addr.
func (t *txn) readBlock(cmd byte, addr byte, buf []byte) error {
	if err := t.transfer("read block header", []byte{cmd, addr}, nil); err != nil {
		return err
	}
	return t.fill("read block", buf)
}

// readBlock16 is readBlock for the 16-bit config opcode.
func (t *txn) readBlock16(cmd uint16, buf []byte) error {
	w := [2]byte{byte(cmd >> 8), byte(cmd)}
	if err := t.transfer("read block16 header", w[:], nil); err != nil {
		return err
	}
	return t.fill("read block16", buf)
}

// readResult fetches one sensor's measurement word, decoded per the
// configured framing.
func (t *txn) readResult(sensor int) (uint32, error) {
	if err := t.transfer("result header", []byte{resultAddr(sensor)}, nil); err != nil {
		return 0, err
	}
	var buf [4]byte
	n := t.b.cfg.Framing.resultLen()
	if err := t.fill("result", buf[:n]); err != nil {
		return 0, err
	}
	if t.b.cfg.Framing == Framing32LE {
		return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
	}
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]), nil
}

// testRead issues the diagnostic opcode and clocks back the response byte.
func (t *txn) testRead() (byte, error) {
	if _, err := t.command(cmdTestRead); err != nil {
		return 0, err
	}
	var r [1]byte
	if err := t.fill("test read", r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}
