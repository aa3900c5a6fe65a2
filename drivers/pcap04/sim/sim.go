// Package sim models the PCAP04 array from the device side: eight chip
// positions behind a CD74HC4067 whose select lines it exposes as GPIO pins,
// and the shared SPI link it exposes as a drivers.SPI. It exists so the
// acquisition stack can run end to end on a host, in tests and in the
// bring-up binary, without hardware.
//
// The model is deliberately shallow: it stores bytes where the opcodes say
// and answers the fixed diagnostic codes. It does not model conversion
// physics; tests preload the result registers.
package sim

import (
	"sync"

	"capsense-go/types"
)

// Device-side opcode view. Kept separate from the host driver on purpose:
// a simulator that imported the driver's constants would silently track a
// driver bug instead of catching it.
const (
	opWrMem     = 0xA0
	opRdMem     = 0x20
	opWrCfgHi   = 0xA3
	opRdCfgHi   = 0x23
	opCfgLo     = 0xC0
	opRdResult  = 0x40
	opPOR       = 0x88
	opInit      = 0x8A
	opCDCStart  = 0x8C
	opDSPTrig   = 0x8D
	opRDCStart  = 0x8E
	opNVStore   = 0x96
	opNVRecall  = 0x99
	opNVErase   = 0x9C
	opTestRead  = 0x7E
	respPass    = 0x11
	idleLevel   = 0xFF // pull-ups: what an unselected or absent position reads
	memSize     = 1024
	cfgSize     = 52
	numSensors  = 6
	addrStep    = 4
	channelNone = 15
)

type parserState uint8

const (
	stIdle parserState = iota
	stWrMemAddr
	stWrMemData
	stRdMemAddr
	stRdMemStream
	stWrCfgLo
	stWrCfgData
	stRdCfgLo
	stRdCfgStream
)

// Chip models one PCAP04 position.
type Chip struct {
	Memory   [memSize]byte
	Config   [cfgSize]byte
	NVConfig [cfgSize]byte
	Results  [numSensors]uint32

	// TestResponse is what the diagnostic opcode answers. Defaults to the
	// pass code; tests set the fault codes to exercise decoding.
	TestResponse byte

	// LittleEndian32 switches the result framing to the 4-byte
	// little-endian protocol revision.
	LittleEndian32 bool

	// OnConvert, if set, runs when a CDC/RDC trigger arrives; use it to
	// refresh Results per cycle.
	OnConvert func(c *Chip)

	// Running is set by INIT and cleared by POR.
	Running bool

	// Counters for assertions.
	PORs        int
	Inits       int
	Conversions int

	st   parserState
	addr int
	out  []byte
}

// NewChip returns a chip that passes its self-tests.
func NewChip() *Chip {
	return &Chip{TestResponse: respPass}
}

// deselect resets the per-selection parser; a chip loses its command frame
// whenever its chip-select goes away.
func (c *Chip) deselect() {
	c.st = stIdle
	c.out = nil
}

// step clocks one full-duplex byte through the chip: the returned byte is
// what the chip was driving during this transfer, computed from state before
// the incoming byte is parsed.
func (c *Chip) step(in byte) byte {
	out := c.drive()
	c.parse(in)
	return out
}

func (c *Chip) drive() byte {
	if len(c.out) > 0 {
		b := c.out[0]
		c.out = c.out[1:]
		return b
	}
	switch c.st {
	case stRdMemStream:
		b := c.Memory[c.addr%memSize]
		c.addr++
		return b
	case stRdCfgStream:
		b := c.Config[c.addr%cfgSize]
		c.addr++
		return b
	default:
		return 0x00
	}
}

func (c *Chip) parse(in byte) {
	switch c.st {
	case stWrMemAddr:
		c.addr = int(in)
		c.st = stWrMemData
	case stWrMemData:
		c.Memory[c.addr%memSize] = in
		c.addr++
	case stRdMemAddr:
		c.addr = int(in)
		c.st = stRdMemStream
	case stRdMemStream, stRdCfgStream:
		// Filler bytes while streaming out; ignore.
	case stWrCfgLo:
		if in == opCfgLo {
			c.addr = 0
			c.st = stWrCfgData
		} else {
			c.st = stIdle
		}
	case stWrCfgData:
		if c.addr < cfgSize {
			c.Config[c.addr] = in
			c.addr++
		}
	case stRdCfgLo:
		if in == opCfgLo {
			c.addr = 0
			c.st = stRdCfgStream
		} else {
			c.st = stIdle
		}
	default:
		c.command(in)
	}
}

func (c *Chip) command(in byte) {
	switch in {
	case opWrMem:
		c.st = stWrMemAddr
	case opRdMem:
		c.st = stRdMemAddr
	case opWrCfgHi:
		c.st = stWrCfgLo
	case opRdCfgHi:
		c.st = stRdCfgLo
	case opPOR:
		c.Memory = [memSize]byte{}
		c.Config = [cfgSize]byte{}
		c.Results = [numSensors]uint32{}
		c.Running = false
		c.PORs++
	case opInit:
		c.Running = true
		c.Inits++
	case opCDCStart, opRDCStart:
		c.Conversions++
		if c.OnConvert != nil {
			c.OnConvert(c)
		}
	case opDSPTrig:
		// accepted, nothing modelled
	case opNVStore:
		c.NVConfig = c.Config
	case opNVRecall:
		c.Config = c.NVConfig
	case opNVErase:
		c.NVConfig = [cfgSize]byte{}
	case opTestRead:
		c.out = append(c.out, c.TestResponse)
	default:
		if sensor, ok := resultIndex(in); ok {
			c.queueResult(sensor)
		}
		// Unknown opcodes are swallowed, as the real chip does.
	}
}

func resultIndex(in byte) (int, bool) {
	if in&0xE0 != opRdResult {
		return 0, false
	}
	off := int(in & 0x1F)
	if off%addrStep != 0 {
		return 0, false
	}
	sensor := off / addrStep
	if sensor >= numSensors {
		return 0, false
	}
	return sensor, true
}

func (c *Chip) queueResult(sensor int) {
	v := c.Results[sensor]
	if c.LittleEndian32 {
		c.out = append(c.out, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
		return
	}
	c.out = append(c.out, byte(v>>16), byte(v>>8), byte(v))
}

// -----------------------------------------------------------------------------
// Array: mux + SPI link
// -----------------------------------------------------------------------------

// Array wires up to eight chips behind the simulated multiplexer. It
// implements drivers.SPI; its select pins implement types.GPIOPin.
type Array struct {
	mu    sync.Mutex
	chips [16]*Chip
	addr  uint8

	// FailTx, when set, is returned by the next Tx and cleared; used to
	// inject transfer-level faults.
	FailTx error
}

// NewArray populates all eight positions with passing chips.
func NewArray() *Array {
	a := &Array{addr: channelNone}
	for i := 0; i < 8; i++ {
		a.chips[i] = NewChip()
	}
	return a
}

// Chip returns the model at a position, or nil if absent.
func (a *Array) Chip(i int) *Chip { return a.chips[i] }

// Remove marks a position unpopulated; it reads back the idle level.
func (a *Array) Remove(i int) { a.chips[i] = nil }

// Pins returns the four mux select pins, LSB first.
func (a *Array) Pins() (s0, s1, s2, s3 types.GPIOPin) {
	return &selectPin{a: a, bit: 0}, &selectPin{a: a, bit: 1},
		&selectPin{a: a, bit: 2}, &selectPin{a: a, bit: 3}
}

// Selected returns the current 4-bit mux address.
func (a *Array) Selected() uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

func (a *Array) setBit(bit uint8, level bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	old := a.addr
	if level {
		a.addr |= 1 << bit
	} else {
		a.addr &^= 1 << bit
	}
	if a.addr != old {
		if c := a.chips[old]; c != nil {
			c.deselect()
		}
	}
}

// Tx implements drivers.SPI: full duplex against the selected chip. An
// unpopulated or unselected position answers the pull-up idle level.
func (a *Array) Tx(w, r []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailTx != nil {
		err := a.FailTx
		a.FailTx = nil
		return err
	}
	c := a.chips[a.addr]
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	for i := 0; i < n; i++ {
		var in byte
		if i < len(w) {
			in = w[i]
		}
		var out byte
		if c != nil {
			out = c.step(in)
		} else {
			out = idleLevel
		}
		if i < len(r) {
			r[i] = out
		}
	}
	return nil
}

// Transfer clocks a single byte.
func (a *Array) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := a.Tx([]byte{b}, r[:])
	return r[0], err
}

// -----------------------------------------------------------------------------

type selectPin struct {
	a     *Array
	bit   uint8
	level bool
}

func (p *selectPin) ConfigureInput(types.Pull) error { return nil }

func (p *selectPin) ConfigureOutput(initial bool) error {
	p.Set(initial)
	return nil
}

func (p *selectPin) Set(level bool) {
	p.level = level
	p.a.setBit(p.bit, level)
}

func (p *selectPin) Get() bool { return p.level }
func (p *selectPin) Toggle()   { p.Set(!p.level) }
