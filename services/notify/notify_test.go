package notify

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"capsense-go/bus"
	"capsense-go/types"
)

func TestEncodeLayout(t *testing.T) {
	p := Encode(5, [6]float32{1, -1, 256, 0, 65536, -2})
	if p[0] != 5 {
		t.Errorf("chip byte = %d, want 5", p[0])
	}
	// Value 1 big endian.
	if p[1] != 0 || p[2] != 0 || p[3] != 0 || p[4] != 1 {
		t.Errorf("sensor 0 bytes = % x, want 00 00 00 01", p[1:5])
	}
	// Value -1 is all ones in two's complement.
	for i := 5; i < 9; i++ {
		if p[i] != 0xFF {
			t.Errorf("sensor 1 byte %d = %#x, want 0xFF", i, p[i])
		}
	}
	if p[11] != 1 || p[12] != 0 {
		t.Errorf("sensor 2 bytes = % x, want ... 01 00", p[9:13])
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := [6]float32{0, -12345, 99999, 7, -7, 3000000}
	chip, out := Decode(Encode(3, in))
	if chip != 3 {
		t.Errorf("chip = %d, want 3", chip)
	}
	if out != in {
		t.Errorf("round trip = %v, want %v", out, in)
	}
}

func TestEncodeClampsExtremes(t *testing.T) {
	p := Encode(0, [6]float32{3e10, -3e10, 0, 0, 0, 0})
	_, cal := Decode(p)
	if cal[0] != 2147483647 {
		t.Errorf("positive overflow = %v, want int32 max", cal[0])
	}
	if cal[1] != -2147483648 {
		t.Errorf("negative overflow = %v, want int32 min", cal[1])
	}
}

// syncWriter collects written packets under a lock so the test can inspect
// them while the service goroutine runs.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) snapshot() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.buf.Bytes()...)
}

func TestStreamsCalibratedReadings(t *testing.T) {
	mb := bus.NewBus(16)
	sink := &syncWriter{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		Start(ctx, mb.NewConnection("notify"), sink)
	}()

	pub := mb.NewConnection("pub")
	defer pub.Disconnect()

	// Wait for the service's retained state before publishing, so the
	// subscription is live.
	w := mb.NewConnection("watch")
	defer w.Disconnect()
	stateSub := w.Subscribe(bus.T("notify", "state"))
	select {
	case <-stateSub.Channel():
	case <-time.After(2 * time.Second):
		t.Fatal("notify never came up")
	}
	pktSub := w.Subscribe(bus.T("notify", "sensors", "+"))

	pub.Publish(pub.NewMessage(bus.T("sensors", "2", "data"), &types.ChipReading{
		Chip:       2,
		Calibrated: [6]float32{10, 20, 30, 40, 50, 60},
		HasCal:     true,
	}, false))
	// No calibrated values: must not reach the wire.
	pub.Publish(pub.NewMessage(bus.T("sensors", "4", "data"), &types.ChipReading{
		Chip: 4,
		Raw:  [6]uint32{1, 2, 3, 4, 5, 6},
	}, false))

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for {
		got = sink.snapshot()
		if len(got) >= PacketSize || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	// Give the uncalibrated message time to be (wrongly) encoded.
	time.Sleep(20 * time.Millisecond)
	got = sink.snapshot()
	if len(got) != PacketSize {
		t.Fatalf("sink holds %d bytes, want exactly one %d-byte packet", len(got), PacketSize)
	}
	var p Packet
	copy(p[:], got)
	chip, cal := Decode(p)
	if chip != 2 || cal[5] != 60 {
		t.Errorf("decoded chip %d cal %v", chip, cal)
	}

	// The same packet goes out on the bus for in-process consumers.
	select {
	case msg := <-pktSub.Channel():
		if len(msg.Topic) != 3 || msg.Topic[2] != "2" {
			t.Errorf("packet topic = %v, want notify/sensors/2", msg.Topic)
		}
		bp, ok := msg.Payload.(Packet)
		if !ok {
			t.Fatalf("packet payload type %T", msg.Payload)
		}
		if bp != p {
			t.Errorf("bus packet differs from sink packet")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no packet on notify/sensors/+")
	}

	cancel()
	<-done
}
