// Hosted development entry point: runs the full acquisition stack against
// the simulated array. Build cmd/uartstream for the real device.
package main

import (
	"context"
	"io"
	"time"

	"capsense-go/bus"
	"capsense-go/drivers/cd74hc4067"
	"capsense-go/drivers/pcap04"
	"capsense-go/drivers/pcap04/sim"
	"capsense-go/services/config"
	"capsense-go/services/heartbeat"
	"capsense-go/services/notify"
	"capsense-go/services/sampler"
	"capsense-go/services/store"
)

func main() {
	println("boot")

	arr := sim.NewArray()
	for i := 0; i < pcap04.NumChips; i++ {
		c := arr.Chip(i)
		base := uint32(i+1) * 0x2000
		c.OnConvert = func(c *sim.Chip) {
			for s := range c.Results {
				c.Results[s] = base + uint32(s)
			}
		}
	}

	s0, s1, s2, s3 := arr.Pins()
	mux := cd74hc4067.New(s0, s1, s2, s3)
	if err := mux.Configure(); err != nil {
		println("FAIL: mux configure:", err.Error())
		return
	}
	b := pcap04.NewBus(arr, mux, pcap04.Config{ConversionTime: time.Millisecond})
	array := pcap04.NewArray(b)
	st := store.New()

	mb := bus.NewBus(8)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, "capsense")

	config.NewService().Start(ctx, mb.NewConnection("config"))
	_ = (&heartbeat.Service{}).Start(ctx, mb.NewConnection("heartbeat"))
	// The device build points the packet stream at the UART; on the host
	// the bus traffic itself is the interesting part.
	go notify.Start(ctx, mb.NewConnection("notify"), io.Discard)

	sampler.Start(ctx, mb.NewConnection("sampler"), array, st, sampler.Provisioning{})
}
