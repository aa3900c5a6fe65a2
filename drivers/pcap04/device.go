package pcap04

import (
	"time"

	"capsense-go/drivers/cd74hc4067"
)

// State tracks where a chip sits in its lifecycle. Transitions run one way
// through the upload sequence; Configured and Converting cycle per
// acquisition.
type State uint8

const (
	StateUninitialized State = iota
	StateReady
	StateFirmwareLoaded
	StateConfigured
	StateConverting
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFirmwareLoaded:
		return "firmware_loaded"
	case StateConfigured:
		return "configured"
	case StateConverting:
		return "converting"
	default:
		return "invalid"
	}
}

// ChipData is one chip's raw measurement snapshot: six sensor words captured
// in a single bus-exclusive pass, so they all belong to one trigger cycle.
type ChipData struct {
	Raw [NumSensors]uint32
}

// Device is the controller for one chip position. It holds no hardware of
// its own: all wire access goes through the shared Bus, which serializes
// the array. A Device is owned by a single goroutine (the sampler); State
// is not safe for concurrent mutation.
type Device struct {
	bus   *Bus
	ch    cd74hc4067.Channel
	state State
}

// NewDevice binds a controller to chip position 0..7.
func NewDevice(bus *Bus, chip int) (*Device, error) {
	if chip < 0 || chip >= NumChips {
		return nil, &SelectionError{Chip: chip}
	}
	return &Device{bus: bus, ch: cd74hc4067.Channel(chip)}, nil
}

// Chip returns the position this controller drives.
func (d *Device) Chip() int { return int(d.ch) }

// State returns the lifecycle state last observed by this controller.
func (d *Device) State() State { return d.state }

// Initialize issues power-on reset followed by init, honouring each
// command's settle contract. The chip forgets uploaded firmware and config.
func (d *Device) Initialize() error {
	err := d.bus.exclusive(func(o *ownedBus) error {
		if err := o.transaction(d.ch, func(t *txn) error {
			_, err := t.command(cmdPOR)
			return err
		}); err != nil {
			return err
		}
		return o.transaction(d.ch, func(t *txn) error {
			_, err := t.command(cmdInit)
			return err
		})
	})
	if err != nil {
		return err
	}
	d.state = StateReady
	return nil
}

// UploadFirmware writes the fixed-size firmware image into chip memory at
// address 0. Anything but exactly FirmwareSize bytes fails with LengthError
// before any bus traffic.
func (d *Device) UploadFirmware(fw []byte) error {
	if len(fw) != FirmwareSize {
		return &LengthError{Op: "upload firmware", Want: FirmwareSize, Got: len(fw)}
	}
	err := d.bus.transaction(d.ch, func(t *txn) error {
		return t.writeBlock(cmdWrMem, 0x00, fw)
	})
	if err != nil {
		return err
	}
	d.state = StateFirmwareLoaded
	return nil
}

// WriteConfig uploads the fixed-size config block and lets it latch.
func (d *Device) WriteConfig(cfg []byte) error {
	if len(cfg) != ConfigSize {
		return &LengthError{Op: "write config", Want: ConfigSize, Got: len(cfg)}
	}
	err := d.bus.transaction(d.ch, func(t *txn) error {
		return t.writeBlock16(cmdWrConfig, cfg)
	})
	if err != nil {
		return err
	}
	d.bus.sleep(tConfig)
	d.state = StateConfigured
	return nil
}

// ReadConfig reads the config block back. A conformant chip returns the
// bytes of the last WriteConfig verbatim.
func (d *Device) ReadConfig() ([]byte, error) {
	buf := make([]byte, ConfigSize)
	err := d.bus.transaction(d.ch, func(t *txn) error {
		return t.readBlock16(cmdRdConfig, buf)
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// StartCapacitance triggers a capacitance-to-digital conversion. The caller
// waits ConversionTime (or schedules a collect) before reading results.
func (d *Device) StartCapacitance() error {
	return d.trigger(cmdCDCStart)
}

// StartResistance triggers a resistance-to-digital conversion.
func (d *Device) StartResistance() error {
	return d.trigger(cmdRDCStart)
}

// TriggerDSP kicks the chip's DSP to post-process the current results.
func (d *Device) TriggerDSP() error {
	return d.bus.transaction(d.ch, func(t *txn) error {
		_, err := t.command(cmdDSPTrig)
		return err
	})
}

func (d *Device) trigger(cmd byte) error {
	err := d.bus.transaction(d.ch, func(t *txn) error {
		_, err := t.command(cmd)
		return err
	})
	if err != nil {
		return err
	}
	d.state = StateConverting
	return nil
}

// ConversionTime is the nominal trigger-to-results bound for this bus.
func (d *Device) ConversionTime() time.Duration {
	return d.bus.cfg.ConversionTime
}

// ReadAllSensors collects all six sensor results in index order as one
// atomic snapshot: the bus lock is held for the whole pass, so no other
// chip's traffic (or another snapshot of this chip) can interleave.
func (d *Device) ReadAllSensors() (ChipData, error) {
	var data ChipData
	err := d.bus.exclusive(func(o *ownedBus) error {
		for i := 0; i < NumSensors; i++ {
			v, err := o.readResult(d.ch, i)
			if err != nil {
				return err
			}
			data.Raw[i] = v
		}
		return nil
	})
	if err != nil {
		return ChipData{}, err
	}
	if d.state == StateConverting {
		d.state = StateConfigured
	}
	return data, nil
}

// ReadSensor fetches a single sensor result outside a snapshot.
func (d *Device) ReadSensor(sensor int) (uint32, error) {
	if sensor < 0 || sensor >= NumSensors {
		return 0, ErrBadSensor
	}
	var raw uint32
	err := d.bus.transaction(d.ch, func(t *txn) error {
		v, err := t.readResult(sensor)
		raw = v
		return err
	})
	return raw, err
}

// WaitReady polls the diagnostic opcode until the chip answers its pass
// code, bounded by the configured ReadyTimeout. Use it after a trigger to
// turn a fixed worst-case sleep into a bounded wait.
func (d *Device) WaitReady() error {
	return d.bus.exclusive(func(o *ownedBus) error {
		return o.waitReady(d.ch, d.bus.cfg.ReadyTimeout)
	})
}

// NVStore persists the current config to non-volatile memory, polling for
// completion instead of sleeping the worst case.
func (d *Device) NVStore() error { return d.nvCommand(cmdNVStore) }

// NVRecall loads the config stored in non-volatile memory.
func (d *Device) NVRecall() error { return d.nvCommand(cmdNVRecall) }

// NVErase clears the non-volatile config memory.
func (d *Device) NVErase() error { return d.nvCommand(cmdNVErase) }

func (d *Device) nvCommand(cmd byte) error {
	return d.bus.exclusive(func(o *ownedBus) error {
		if err := o.transaction(d.ch, func(t *txn) error {
			_, err := t.command(cmd)
			return err
		}); err != nil {
			return err
		}
		return o.waitReady(d.ch, d.bus.cfg.ReadyTimeout)
	})
}
