package pcap04

// Array bundles the eight chip positions behind one multiplexer. It is a
// construction convenience: every Device still serializes through the shared
// Bus.
type Array struct {
	bus  *Bus
	devs [NumChips]*Device
}

// NewArray builds controllers for all chip positions.
func NewArray(bus *Bus) *Array {
	a := &Array{bus: bus}
	for i := range a.devs {
		d, _ := NewDevice(bus, i) // indices are in range by construction
		a.devs[i] = d
	}
	return a
}

// Device returns the controller for chip position 0..7.
func (a *Array) Device(chip int) (*Device, error) {
	if chip < 0 || chip >= NumChips {
		return nil, &SelectionError{Chip: chip}
	}
	return a.devs[chip], nil
}

// Detect probes every position with the test-read self-test. present[i] is
// true when the chip answered the pass code; errs[i] carries ErrChipAbsent,
// a ProtocolError or a BusError otherwise.
func (a *Array) Detect() (present [NumChips]bool, errs [NumChips]error) {
	for i, d := range a.devs {
		err := d.TestRead()
		present[i] = err == nil
		errs[i] = err
	}
	return present, errs
}
