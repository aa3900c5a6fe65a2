// cmd/arraytest runs the full bring-up sequence against the simulated array:
// detect, self-test, reset, firmware, config verify, calibrate, then a few
// sampling cycles. It is the host-side smoke test for the acquisition stack;
// no hardware required.
package main

import (
	"time"

	"capsense-go/drivers/cd74hc4067"
	"capsense-go/drivers/pcap04"
	"capsense-go/drivers/pcap04/sim"
	"capsense-go/x/conv"
)

const sampleCycles = 3

func main() {
	println("arraytest: boot")

	arr := sim.NewArray()
	// Leave two positions empty so the absent path shows up in the output.
	arr.Remove(6)
	arr.Remove(7)
	for i := 0; i < 6; i++ {
		c := arr.Chip(i)
		base := uint32(i+1) * 0x1000
		c.OnConvert = func(c *sim.Chip) {
			for s := range c.Results {
				c.Results[s] = base + uint32(s)*0x10
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

	present, errs := array.Detect()
	for chip := 0; chip < pcap04.NumChips; chip++ {
		if !present[chip] {
			println("chip", chip, "absent:", errs[chip].Error())
		}
	}

	fw := make([]byte, pcap04.FirmwareSize)
	for i := range fw {
		fw[i] = byte(i)
	}
	cfg := make([]byte, pcap04.ConfigSize)
	for i := range cfg {
		cfg[i] = byte(0xA0 + i)
	}

	live := make([]*pcap04.Device, 0, pcap04.NumChips)
	for chip := 0; chip < pcap04.NumChips; chip++ {
		if !present[chip] {
			continue
		}
		d, err := array.Device(chip)
		if err != nil {
			println("FAIL: chip", chip, ":", err.Error())
			continue
		}
		if err := bringUp(d, fw, cfg); err != nil {
			println("FAIL: chip", chip, "bring-up:", err.Error())
			continue
		}
		println("chip", chip, "up")
		live = append(live, d)
	}

	for _, d := range live {
		off, err := d.Calibrate(8)
		if err != nil {
			println("FAIL: chip", d.Chip(), "calibrate:", err.Error())
			continue
		}
		println("chip", d.Chip(), "baseline[0]:", int(off[0]))
	}

	var hexbuf [8]byte
	for cycle := 0; cycle < sampleCycles; cycle++ {
		for _, d := range live {
			if err := d.StartCapacitance(); err != nil {
				println("FAIL: chip", d.Chip(), "trigger:", err.Error())
				continue
			}
			time.Sleep(d.ConversionTime())
			data, err := d.ReadAllSensors()
			if err != nil {
				println("FAIL: chip", d.Chip(), "collect:", err.Error())
				continue
			}
			print("chip ", d.Chip(), " raw:")
			for _, v := range data.Raw {
				print(" ", string(conv.U32Hex(hexbuf[:], v)))
			}
			println()
		}
	}
	println("arraytest: done")
}

// bringUp mirrors the production provisioning order: self-test while memory
// is still scratch, then reset, firmware, config with readback verify.
func bringUp(d *pcap04.Device, fw, cfg []byte) error {
	if err := d.TestRead(); err != nil {
		return err
	}
	if err := d.TestPattern(); err != nil {
		return err
	}
	if err := d.Initialize(); err != nil {
		return err
	}
	if err := d.UploadFirmware(fw); err != nil {
		return err
	}
	if err := d.WriteConfig(cfg); err != nil {
		return err
	}
	back, err := d.ReadConfig()
	if err != nil {
		return err
	}
	for i := range cfg {
		if back[i] != cfg[i] {
			return &pcap04.LoopbackError{Index: i, Want: cfg[i], Got: back[i]}
		}
	}
	return nil
}
