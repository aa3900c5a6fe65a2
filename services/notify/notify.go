// Package notify turns sensor readings into the fixed 25-byte wire packet
// streamed to the host: one chip identifier byte followed by six calibrated
// values as big-endian int32. It subscribes to the sensor data topics and
// writes each packet to an injected sink, typically a UART.
package notify

import (
	"context"
	"io"

	"capsense-go/bus"
	"capsense-go/drivers/pcap04"
	"capsense-go/types"
	"capsense-go/x/conv"
	"capsense-go/x/mathx"
	"capsense-go/x/timex"
)

// PacketSize is one chip id byte plus six 4-byte values.
const PacketSize = 1 + 4*pcap04.NumSensors

var (
	topicData  = bus.Topic{"sensors", "+", "data"}
	topicState = bus.Topic{"notify", "state"}
)

// Packet is one encoded notification frame.
type Packet [PacketSize]byte

// Encode packs a chip's calibrated values. Values outside the int32 range
// are clamped rather than wrapped: a saturated reading is wrong by a bounded
// amount, a wrapped one flips sign.
func Encode(chip int, cal [pcap04.NumSensors]float32) Packet {
	var p Packet
	p[0] = byte(chip)
	for i, v := range cal {
		u := uint32(int32(mathx.Clamp(float64(v), -2147483648, 2147483647)))
		p[1+i*4] = byte(u >> 24)
		p[2+i*4] = byte(u >> 16)
		p[3+i*4] = byte(u >> 8)
		p[4+i*4] = byte(u)
	}
	return p
}

// Decode is the inverse of Encode, used by host-side tooling and tests.
func Decode(p Packet) (chip int, cal [pcap04.NumSensors]float32) {
	chip = int(p[0])
	for i := range cal {
		u := uint32(p[1+i*4])<<24 | uint32(p[2+i*4])<<16 | uint32(p[3+i*4])<<8 | uint32(p[4+i*4])
		cal[i] = float32(int32(u))
	}
	return chip, cal
}

// Start runs the notifier. It blocks until ctx is cancelled. Readings that
// carry no calibrated values are skipped; the stream only ever contains
// calibrated data. Each packet is written to the sink (nil to disable) and
// published on notify/sensors/{chip} for in-process consumers.
func Start(ctx context.Context, conn *bus.Connection, sink io.Writer) {
	sub := conn.Subscribe(topicData)
	defer conn.Unsubscribe(sub)

	publishState(conn, "up", "streaming", nil)
	for {
		select {
		case <-ctx.Done():
			println("Info: notify service stopping")
			publishState(conn, "idle", "stopped", nil)
			return
		case msg := <-sub.Channel():
			p, ok := FromPayload(msg.Payload)
			if !ok {
				continue
			}
			conn.Publish(conn.NewMessage(bus.T("notify", "sensors", conv.ItoaString(int64(p[0]))), p, false))
			if sink == nil {
				continue
			}
			if _, err := sink.Write(p[:]); err != nil {
				publishState(conn, "degraded", "sink_write_failed", err)
			}
		}
	}
}

// FromPayload encodes a sensor data bus payload into a Packet. It reports
// false for payloads without calibrated values; those never reach the wire.
func FromPayload(payload any) (Packet, bool) {
	r, ok := payload.(*types.ChipReading)
	if !ok || !r.HasCal {
		return Packet{}, false
	}
	return Encode(r.Chip, r.Calibrated), true
}

func publishState(conn *bus.Connection, level, status string, err error) {
	payload := &types.ServiceState{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		payload.Error = err.Error()
	}
	conn.Publish(conn.NewMessage(topicState, payload, true))
}
