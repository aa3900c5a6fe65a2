// Package cd74hc4067 routes the shared SPI chip-select line to one of the
// PCAP04 positions through a CD74HC4067 multiplexer.
//
// The mux common I/O is tied to ground and every chip-select output carries a
// pull-up, so only the addressed channel is driven low (active). There is no
// per-chip CS pin: whichever channel the 4-bit address selects owns the bus.
// Callers must therefore route strictly before a transfer begins and deselect
// strictly after it completes; the pcap04 package brackets every transaction
// around exactly one Router instance to keep that ordering structural.
package cd74hc4067

import (
	"errors"
	"time"

	"capsense-go/types"
)

// Channel addresses one mux position. 0..7 are chip positions; ChannelNone
// parks the address on an unpopulated channel so no chip-select is active.
type Channel uint8

const (
	// NumChannels is the number of populated chip positions.
	NumChannels = 8

	// ChannelNone is the reserved "no chip selected" address.
	ChannelNone Channel = 15
)

// Valid reports whether c addresses a populated chip position.
func (c Channel) Valid() bool { return c < NumChannels }

// ErrBadChannel is returned for addresses outside 0..7 and ChannelNone.
var ErrBadChannel = errors.New("cd74hc4067: channel out of range")

// SettleDefault is the minimum time the switch needs after an address change
// before the routed line is stable.
const SettleDefault = 10 * time.Microsecond

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Settle overrides the post-switch settle delay. Default SettleDefault.
	Settle time.Duration
}

// Router owns the four select lines of one multiplexer. Exactly one Router
// must exist per physical mux; a second instance would defeat the
// select/deselect bracketing.
type Router struct {
	s0, s1, s2, s3 types.GPIOPin
	settle         time.Duration
	current        Channel

	sleep func(time.Duration) // swapped out in tests
}

// New wires a Router to its four select pins. Pins are not touched until
// Configure.
func New(s0, s1, s2, s3 types.GPIOPin, cfgs ...Config) *Router {
	r := &Router{
		s0: s0, s1: s1, s2: s2, s3: s3,
		settle:  SettleDefault,
		current: ChannelNone,
		sleep:   time.Sleep,
	}
	if len(cfgs) > 0 && cfgs[0].Settle > 0 {
		r.settle = cfgs[0].Settle
	}
	return r
}

// Configure drives the select lines as outputs parked on ChannelNone.
func (r *Router) Configure() error {
	// Park address first so no chip sees an active select during pin init.
	hi := func(bit uint8) bool { return ChannelNone&(1<<bit) != 0 }
	if err := r.s0.ConfigureOutput(hi(0)); err != nil {
		return err
	}
	if err := r.s1.ConfigureOutput(hi(1)); err != nil {
		return err
	}
	if err := r.s2.ConfigureOutput(hi(2)); err != nil {
		return err
	}
	if err := r.s3.ConfigureOutput(hi(3)); err != nil {
		return err
	}
	r.current = ChannelNone
	r.sleep(r.settle)
	return nil
}

// Select routes the chip-select line to ch and blocks for the settle delay.
// Selecting the already-current channel (including a repeated deselect) is a
// no-op with no additional delay.
func (r *Router) Select(ch Channel) error {
	if !ch.Valid() && ch != ChannelNone {
		return ErrBadChannel
	}
	if ch == r.current {
		return nil
	}
	r.s0.Set(ch&0x01 != 0)
	r.s1.Set(ch&0x02 != 0)
	r.s2.Set(ch&0x04 != 0)
	r.s3.Set(ch&0x08 != 0)
	r.current = ch
	r.sleep(r.settle)
	return nil
}

// Deselect parks the address on ChannelNone. Always succeeds; deselect is
// idempotent.
func (r *Router) Deselect() {
	_ = r.Select(ChannelNone)
}

// Current returns the last routed channel.
func (r *Router) Current() Channel { return r.current }
