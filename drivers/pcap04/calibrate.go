package pcap04

// Offsets is a per-sensor calibration baseline, subtracted from raw readings
// to produce zero-referenced calibrated values.
type Offsets [NumSensors]float32

// Calibrate captures the mean of n full conversion cycles per sensor and
// returns it as the baseline. Averaging is the canonical behaviour; it
// smooths conversion noise that a single capture would bake into every
// calibrated value. n below 1 is coerced to 1.
func (d *Device) Calibrate(n int) (Offsets, error) {
	if n < 1 {
		n = 1
	}
	var acc [NumSensors]float64
	for s := 0; s < n; s++ {
		data, err := d.sampleOnce()
		if err != nil {
			return Offsets{}, err
		}
		for i, v := range data.Raw {
			acc[i] += float64(v)
		}
	}
	var off Offsets
	for i := range off {
		off[i] = float32(acc[i] / float64(n))
	}
	return off, nil
}

// CalibrateOnce captures a single conversion cycle as the baseline. This is
// the degraded fallback for callers that cannot afford the averaging pass;
// it is deliberately a separate name so nothing substitutes it silently.
func (d *Device) CalibrateOnce() (Offsets, error) {
	return d.Calibrate(1)
}

// sampleOnce runs one trigger/wait/collect cycle.
func (d *Device) sampleOnce() (ChipData, error) {
	if err := d.StartCapacitance(); err != nil {
		return ChipData{}, err
	}
	d.bus.sleep(d.ConversionTime())
	return d.ReadAllSensors()
}
