// Package sampler owns the acquisition loop: it brings up every populated
// chip position, calibrates it, then round-robins trigger/collect cycles
// across the array, recording each snapshot in the store and publishing it
// on the bus.
package sampler

import (
	"context"
	"errors"
	"time"

	"capsense-go/bus"
	"capsense-go/drivers/pcap04"
	"capsense-go/errcode"
	"capsense-go/services/store"
	"capsense-go/types"
	"capsense-go/x/conv"
	"capsense-go/x/timex"
)

const serviceName = "sampler"

var (
	topicConfig = bus.Topic{"config", serviceName}
	topicState  = bus.Topic{serviceName, "state"}
)

// Config is the JSON-encoded configuration expected on "config/sampler".
type Config struct {
	PeriodMS   int `json:"period_ms"`
	CalSamples int `json:"cal_samples"`
}

const (
	defaultPeriod     = 100 * time.Millisecond
	defaultCalSamples = 16
)

// Provisioning carries the images pushed into each chip during bring-up.
// Either may be nil; a chip running from its non-volatile store needs
// neither.
type Provisioning struct {
	Firmware   []byte
	ChipConfig []byte
}

type Service struct {
	conn  *bus.Connection
	array *pcap04.Array
	store *store.Store
	prov  Provisioning

	present    [pcap04.NumChips]bool
	period     time.Duration
	calSamples int
}

// Start runs the sampler. It blocks until ctx is cancelled.
func Start(ctx context.Context, conn *bus.Connection, array *pcap04.Array, st *store.Store, prov Provisioning) {
	s := &Service{
		conn:       conn,
		array:      array,
		store:      st,
		prov:       prov,
		period:     defaultPeriod,
		calSamples: defaultCalSamples,
	}
	s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("starting", "bring_up", nil)
	s.bringUp()
	s.publishState("up", "sampling", nil)

	tick := time.NewTicker(s.period)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("Info: sampler service stopping")
			s.publishState("idle", "stopped", nil)
			return
		case <-tick.C:
			s.sampleAll()
		case msg := <-cfgSub.Channel():
			if s.applyConfig(msg.Payload) {
				tick.Reset(s.period)
			}
		}
	}
}

// applyConfig folds a config payload in; it reports whether the sampling
// period changed.
func (s *Service) applyConfig(p any) bool {
	m, ok := p.(map[string]any)
	if !ok {
		s.publishState("degraded", "config_decode_failed", errcode.InvalidPayload)
		return false
	}
	changed := false
	if v, ok := m["period_ms"].(float64); ok && v >= 1 {
		d := timex.DurationMs(uint32(v))
		if d != s.period {
			s.period = d
			changed = true
			println("Info: sampler period set to", int(v), "ms")
		}
	}
	if v, ok := m["cal_samples"].(float64); ok && v >= 1 {
		s.calSamples = int(v)
	}
	return changed
}

// bringUp probes all eight positions and provisions the ones that answer:
// reset, firmware, config, then a calibration pass whose baseline lands in
// the store. A position that fails any step is left out of the rotation and
// reported on its status topic.
func (s *Service) bringUp() {
	present, errs := s.array.Detect()
	for chip := 0; chip < pcap04.NumChips; chip++ {
		if !present[chip] {
			s.present[chip] = false
			s.publishChipStatus(chip, "absent", errs[chip])
			continue
		}
		if err := s.provision(chip); err != nil {
			s.present[chip] = false
			s.publishChipStatus(chip, "failed", err)
			println("Info: chip", chip, "bring-up failed:", err.Error())
			continue
		}
		s.present[chip] = true
		s.publishChipInfo(chip)
		s.publishChipStatus(chip, "ok", nil)
		println("Info: chip", chip, "up and calibrated")
	}
}

func (s *Service) provision(chip int) error {
	d, err := s.array.Device(chip)
	if err != nil {
		return err
	}
	if err := d.Initialize(); err != nil {
		return err
	}
	if fw := s.prov.Firmware; fw != nil {
		if err := d.UploadFirmware(fw); err != nil {
			return err
		}
	}
	if cfg := s.prov.ChipConfig; cfg != nil {
		if err := d.WriteConfig(cfg); err != nil {
			return err
		}
	}
	off, err := d.Calibrate(s.calSamples)
	if err != nil {
		return err
	}
	s.store.SetOffsets(chip, off)
	return nil
}

// sampleAll runs one trigger/collect cycle on every live chip. A chip that
// starts failing is dropped from the rotation until the next bring-up; a
// transient bus fault only skips the cycle.
func (s *Service) sampleAll() {
	for chip := 0; chip < pcap04.NumChips; chip++ {
		if !s.present[chip] {
			continue
		}
		if err := s.sampleChip(chip); err != nil {
			if errors.Is(err, pcap04.ErrChipAbsent) {
				s.present[chip] = false
				s.publishChipStatus(chip, "lost", err)
				continue
			}
			s.publishChipStatus(chip, "degraded", err)
		}
	}
}

func (s *Service) sampleChip(chip int) error {
	d, err := s.array.Device(chip)
	if err != nil {
		return err
	}
	if err := d.StartCapacitance(); err != nil {
		return err
	}
	time.Sleep(d.ConversionTime())
	if err := d.WaitReady(); err != nil {
		return err
	}
	data, err := d.ReadAllSensors()
	if err != nil {
		return err
	}
	ts := time.Now()
	s.store.Record(chip, data, ts)
	s.publishReading(chip, data, ts)
	return nil
}

func (s *Service) publishReading(chip int, data pcap04.ChipData, ts time.Time) {
	r := &types.ChipReading{Chip: chip, Raw: data.Raw, TS: ts.UnixMilli()}
	if cal, _, err := s.store.Calibrated(chip); err == nil {
		r.Calibrated = cal
		r.HasCal = true
	}
	s.conn.Publish(s.conn.NewMessage(bus.T("sensors", conv.ItoaString(int64(chip)), "data"), r, false))
}

func (s *Service) publishChipInfo(chip int) {
	info := &types.Info{SchemaVersion: 1, Driver: "pcap04"}
	s.conn.Publish(s.conn.NewMessage(bus.T("sensors", conv.ItoaString(int64(chip)), "info"), info, true))
}

func (s *Service) publishChipStatus(chip int, status string, err error) {
	payload := &types.ChipStatus{Status: status, TS: timex.NowMs()}
	if err != nil {
		payload.Error = err.Error()
		payload.Code = string(codeOf(err))
	}
	s.conn.Publish(s.conn.NewMessage(bus.T(serviceName, "chip", conv.ItoaString(int64(chip))), payload, true))
}

func (s *Service) publishState(level, status string, err error) {
	payload := &types.ServiceState{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		payload.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, payload, true))
}

// codeOf maps driver errors onto stable bus-facing codes.
func codeOf(err error) errcode.Code {
	var (
		se  *pcap04.SelectionError
		be  *pcap04.BusError
		le  *pcap04.LengthError
		lbe *pcap04.LoopbackError
		pe  *pcap04.ProtocolError
	)
	switch {
	case err == nil:
		return errcode.OK
	case errors.Is(err, pcap04.ErrChipAbsent):
		return errcode.ChipAbsent
	case errors.Is(err, pcap04.ErrTimeout):
		return errcode.Timeout
	case errors.As(err, &se):
		return errcode.Selection
	case errors.As(err, &le):
		return errcode.LengthMismatch
	case errors.As(err, &lbe):
		return errcode.LoopbackMismatch
	case errors.As(err, &pe):
		return errcode.ProtocolFault
	case errors.As(err, &be):
		return errcode.BusFault
	default:
		return errcode.Of(err)
	}
}
