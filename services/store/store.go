// Package store holds the latest acquisition state for the whole array: per
// chip, the most recent raw snapshot, the calibration baseline, and the
// derived compensated values. It is the one place readers (notify, bridge,
// diagnostics) get data from, so writers never hand out references into
// live buffers.
package store

import (
	"sync"
	"time"

	"capsense-go/drivers/pcap04"
	"capsense-go/errcode"
)

// ErrCalibrationMissing reports a calibrated read against a chip that has no
// baseline yet. Raw data may exist; handing it out as "calibrated" would let
// uncompensated values leak into downstream consumers, so this is an error,
// not a pass-through.
const ErrCalibrationMissing = errcode.CalibrationMissing

// ErrNoData reports a read against a chip that has never been sampled.
const ErrNoData = errcode.NoData

// Reading is one chip's published measurement set.
type Reading struct {
	Chip       int
	Raw        [pcap04.NumSensors]uint32
	Calibrated [pcap04.NumSensors]float32
	TS         time.Time
}

type slot struct {
	raw        [pcap04.NumSensors]uint32
	offsets    pcap04.Offsets
	calibrated [pcap04.NumSensors]float32
	comp       [pcap04.NumSensors]float32
	ts         time.Time
	compTS     time.Time
	haveRaw    bool
	haveCal    bool
	haveComp   bool
}

// Store is safe for concurrent use. Each chip slot is overwritten atomically:
// a reader sees a full snapshot from one conversion cycle or the previous
// one, never a mix.
type Store struct {
	mu    sync.RWMutex
	slots [pcap04.NumChips]slot
}

func New() *Store { return &Store{} }

// SetOffsets installs a chip's calibration baseline. Compensated values for
// later Records derive from it; earlier raw data is re-derived immediately
// so a baseline installed after first samples still takes effect.
func (s *Store) SetOffsets(chip int, off pcap04.Offsets) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := &s.slots[chip]
	sl.offsets = off
	sl.haveCal = true
	if sl.haveRaw {
		derive(sl)
	}
}

// ClearOffsets drops a chip's baseline, typically before re-calibration.
func (s *Store) ClearOffsets(chip int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[chip].haveCal = false
}

// Record stores one chip's raw snapshot and, when a baseline exists, its
// compensated values, in a single atomic swap.
func (s *Store) Record(chip int, data pcap04.ChipData, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := &s.slots[chip]
	sl.raw = data.Raw
	sl.ts = ts
	sl.haveRaw = true
	if sl.haveCal {
		derive(sl)
	}
}

func derive(sl *slot) {
	for i, v := range sl.raw {
		sl.calibrated[i] = float32(v) - sl.offsets[i]
	}
}

// SetCompensated installs externally computed compensated values for a chip.
// The store itself never computes compensation; that model runs elsewhere
// and pushes its output here.
func (s *Store) SetCompensated(chip int, vals [pcap04.NumSensors]float32, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := &s.slots[chip]
	sl.comp = vals
	sl.compTS = ts
	sl.haveComp = true
}

// Compensated returns a chip's latest externally supplied compensated
// values, or ErrNoData if none were ever pushed.
func (s *Store) Compensated(chip int) ([pcap04.NumSensors]float32, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl := &s.slots[chip]
	if !sl.haveComp {
		return [pcap04.NumSensors]float32{}, time.Time{}, ErrNoData
	}
	return sl.comp, sl.compTS, nil
}

// Raw returns a copy of a chip's latest raw snapshot.
func (s *Store) Raw(chip int) ([pcap04.NumSensors]uint32, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl := &s.slots[chip]
	if !sl.haveRaw {
		return [pcap04.NumSensors]uint32{}, time.Time{}, ErrNoData
	}
	return sl.raw, sl.ts, nil
}

// Offsets returns a chip's baseline, if one is installed.
func (s *Store) Offsets(chip int) (pcap04.Offsets, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.slots[chip].haveCal {
		return pcap04.Offsets{}, ErrCalibrationMissing
	}
	return s.slots[chip].offsets, nil
}

// Calibrated returns a chip's latest compensated values. It fails with
// ErrCalibrationMissing until a baseline is installed and with ErrNoData
// until the chip has been sampled.
func (s *Store) Calibrated(chip int) ([pcap04.NumSensors]float32, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl := &s.slots[chip]
	if !sl.haveCal {
		return [pcap04.NumSensors]float32{}, time.Time{}, ErrCalibrationMissing
	}
	if !sl.haveRaw {
		return [pcap04.NumSensors]float32{}, time.Time{}, ErrNoData
	}
	return sl.calibrated, sl.ts, nil
}

// Reading returns a chip's full latest snapshot.
func (s *Store) Reading(chip int) (Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl := &s.slots[chip]
	if !sl.haveRaw {
		return Reading{}, ErrNoData
	}
	if !sl.haveCal {
		return Reading{}, ErrCalibrationMissing
	}
	return Reading{Chip: chip, Raw: sl.raw, Calibrated: sl.calibrated, TS: sl.ts}, nil
}

// Snapshot returns copies of every chip's latest reading; chips with no data
// or no baseline are skipped.
func (s *Store) Snapshot() []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reading, 0, pcap04.NumChips)
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.haveRaw || !sl.haveCal {
			continue
		}
		out = append(out, Reading{Chip: i, Raw: sl.raw, Calibrated: sl.calibrated, TS: sl.ts})
	}
	return out
}
