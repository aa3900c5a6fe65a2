package pcap04

import (
	"sync"
	"time"

	"capsense-go/drivers/cd74hc4067"

	"tinygo.org/x/drivers"
)

// Framing selects the measurement-result encoding of the chip's protocol
// revision. It is configuration, never detected at runtime: mixing framings
// on one board produces garbage that looks plausible.
type Framing uint8

const (
	// Framing24BE is the canonical revision: three result bytes, big
	// endian, yielding a 24-bit unsigned value.
	Framing24BE Framing = iota

	// Framing32LE is the legacy revision: four result bytes, little endian.
	Framing32LE
)

func (f Framing) resultLen() int {
	if f == Framing32LE {
		return 4
	}
	return 3
}

// Config controls bus-wide behaviour. All fields are optional.
type Config struct {
	// Filler is the byte clocked out while reading. Default 0x00.
	Filler byte

	// Framing picks the result encoding. Default Framing24BE.
	Framing Framing

	// ConversionTime is the nominal CDC/RDC conversion duration used as the
	// trigger-to-collect hint. Default 10 ms.
	ConversionTime time.Duration

	// ReadyTimeout bounds the post-NV-operation poll before ErrTimeout.
	// Default 250 ms.
	ReadyTimeout time.Duration

	// ReadyPoll is the interval between readiness probes. Default 1 ms.
	ReadyPoll time.Duration
}

// Bus owns the shared SPI link and its chip-select router. All chip traffic
// funnels through one Bus; the embedded mutex is the bus-ownership lock and
// is held for the whole of each logical operation, so transfers belonging to
// two chips can never interleave at the byte level.
type Bus struct {
	mu  sync.Mutex
	spi drivers.SPI
	mux *cd74hc4067.Router
	cfg Config

	sleep func(time.Duration) // swapped out in tests
}

// NewBus binds the SPI link to its router. The router must be the only one
// driving the mux select lines.
func NewBus(spi drivers.SPI, mux *cd74hc4067.Router, cfgs ...Config) *Bus {
	b := &Bus{
		spi:   spi,
		mux:   mux,
		sleep: time.Sleep,
	}
	if len(cfgs) > 0 {
		b.cfg = cfgs[0]
	}
	if b.cfg.ConversionTime <= 0 {
		b.cfg.ConversionTime = 10 * time.Millisecond
	}
	if b.cfg.ReadyTimeout <= 0 {
		b.cfg.ReadyTimeout = 250 * time.Millisecond
	}
	if b.cfg.ReadyPoll <= 0 {
		b.cfg.ReadyPoll = time.Millisecond
	}
	return b
}

// transaction runs fn with the bus lock held and the chip routed for the
// whole of fn: select strictly before, deselect strictly after. This is the
// only way to touch the wire, which is what makes the select/transfer
// overlap race structurally impossible.
func (b *Bus) transaction(ch cd74hc4067.Channel, fn func(*txn) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bracket(ch, fn)
}

// exclusive runs fn holding the bus lock across several bracketed
// transactions, for multi-transaction operations (snapshot reads, NV
// completion polling) that must not interleave with other chip traffic.
func (b *Bus) exclusive(fn func(*ownedBus) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(&ownedBus{b: b})
}

// bracket selects, runs, deselects. Callers hold b.mu.
func (b *Bus) bracket(ch cd74hc4067.Channel, fn func(*txn) error) error {
	if err := b.mux.Select(ch); err != nil {
		return &SelectionError{Chip: int(ch)}
	}
	t := txn{b: b}
	err := fn(&t)
	b.mux.Deselect()
	return err
}

// ownedBus is the view handed to exclusive callbacks: the lock is already
// held, only bracketing remains.
type ownedBus struct {
	b *Bus
}

func (o *ownedBus) transaction(ch cd74hc4067.Channel, fn func(*txn) error) error {
	return o.b.bracket(ch, fn)
}

// readResult reads one sensor's result register as its own bracketed
// transaction, decoded per the configured framing.
func (o *ownedBus) readResult(ch cd74hc4067.Channel, sensor int) (uint32, error) {
	var raw uint32
	err := o.transaction(ch, func(t *txn) error {
		v, err := t.readResult(sensor)
		raw = v
		return err
	})
	return raw, err
}

// waitReady polls the test-read opcode until the chip answers the pass code
// or the timeout expires. Replaces the reference firmware's unconditional
// worst-case sleeps after NV operations.
func (o *ownedBus) waitReady(ch cd74hc4067.Channel, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var resp byte
		err := o.transaction(ch, func(t *txn) error {
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
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		o.b.sleep(o.b.cfg.ReadyPoll)
	}
}
