//go:build rp2040

// cmd/uartstream is the on-device firmware: it drives the multiplexed array
// over SPI0 and streams notification packets out of UART0, with the config
// and heartbeat services on the internal bus.
package main

import (
	"context"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"capsense-go/bus"
	"capsense-go/drivers/cd74hc4067"
	"capsense-go/drivers/pcap04"
	"capsense-go/services/config"
	"capsense-go/services/heartbeat"
	"capsense-go/services/notify"
	"capsense-go/services/sampler"
	"capsense-go/services/store"
	"capsense-go/types"
)

// Carrier board pinout.
const (
	pinS0 = machine.GP10
	pinS1 = machine.GP11
	pinS2 = machine.GP12
	pinS3 = machine.GP13

	pinSCK = machine.GP18
	pinSDO = machine.GP19
	pinSDI = machine.GP16

	pinUARTTx = machine.GP0
	pinUARTRx = machine.GP1
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot")

	spi := machine.SPI0
	if err := spi.Configure(machine.SPIConfig{
		Frequency: 1_000_000,
		SCK:       pinSCK,
		SDO:       pinSDO,
		SDI:       pinSDI,
		Mode:      1,
	}); err != nil {
		println("FAIL: spi configure:", err.Error())
		return
	}

	mux := cd74hc4067.New(pin(pinS0), pin(pinS1), pin(pinS2), pin(pinS3))
	if err := mux.Configure(); err != nil {
		println("FAIL: mux configure:", err.Error())
		return
	}

	uart := uartx.UART0
	_ = uart.Configure(uartx.UARTConfig{
		BaudRate: 115200,
		TX:       pinUARTTx,
		RX:       pinUARTRx,
	})

	b := pcap04.NewBus(spi, mux)
	array := pcap04.NewArray(b)
	st := store.New()

	mb := bus.NewBus(8)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, "capsense")

	config.NewService().Start(ctx, mb.NewConnection("config"))
	_ = (&heartbeat.Service{}).Start(ctx, mb.NewConnection("heartbeat"))
	go notify.Start(ctx, mb.NewConnection("notify"), uart)

	// The sampler owns the main loop; it never returns.
	sampler.Start(ctx, mb.NewConnection("sampler"), array, st, sampler.Provisioning{})
}

// pin adapts machine.Pin to the HAL pin interface.
func pin(p machine.Pin) types.GPIOPin { return &rp2Pin{p: p} }

type rp2Pin struct{ p machine.Pin }

func (r *rp2Pin) ConfigureInput(pull types.Pull) error {
	var mode machine.PinMode
	switch pull {
	case types.PullUp:
		mode = machine.PinInputPullup
	case types.PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2Pin) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2Pin) Set(b bool) { r.p.Set(b) }
func (r *rp2Pin) Get() bool  { return r.p.Get() }
func (r *rp2Pin) Toggle() {
	if r.p.Get() {
		r.p.Low()
	} else {
		r.p.High()
	}
}
