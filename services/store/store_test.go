package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"capsense-go/drivers/pcap04"
)

func TestEmptyStore(t *testing.T) {
	s := New()
	if _, _, err := s.Raw(0); !errors.Is(err, ErrNoData) {
		t.Errorf("Raw on empty store: got %v, want ErrNoData", err)
	}
	if _, _, err := s.Calibrated(0); !errors.Is(err, ErrCalibrationMissing) {
		t.Errorf("Calibrated on empty store: got %v, want ErrCalibrationMissing", err)
	}
	if _, err := s.Offsets(0); !errors.Is(err, ErrCalibrationMissing) {
		t.Errorf("Offsets on empty store: got %v, want ErrCalibrationMissing", err)
	}
	if snap := s.Snapshot(); len(snap) != 0 {
		t.Errorf("Snapshot on empty store: %d readings", len(snap))
	}
}

func TestCalibrationIsRequired(t *testing.T) {
	s := New()
	ts := time.Now()
	s.Record(3, pcap04.ChipData{Raw: [6]uint32{100, 200, 300, 400, 500, 600}}, ts)

	// Raw is readable, calibrated is not: no baseline yet.
	raw, gotTS, err := s.Raw(3)
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	if raw[1] != 200 || !gotTS.Equal(ts) {
		t.Errorf("Raw = %v at %v", raw, gotTS)
	}
	if _, _, err := s.Calibrated(3); !errors.Is(err, ErrCalibrationMissing) {
		t.Errorf("Calibrated without baseline: got %v, want ErrCalibrationMissing", err)
	}

	// Baseline installed after the sample still applies to it.
	s.SetOffsets(3, pcap04.Offsets{50, 50, 50, 50, 50, 50})
	cal, _, err := s.Calibrated(3)
	if err != nil {
		t.Fatalf("Calibrated: %v", err)
	}
	want := [6]float32{50, 150, 250, 350, 450, 550}
	if cal != want {
		t.Errorf("Calibrated = %v, want %v", cal, want)
	}

	s.ClearOffsets(3)
	if _, _, err := s.Calibrated(3); !errors.Is(err, ErrCalibrationMissing) {
		t.Errorf("Calibrated after ClearOffsets: got %v, want ErrCalibrationMissing", err)
	}
}

func TestRecordDerivesCalibrated(t *testing.T) {
	s := New()
	s.SetOffsets(0, pcap04.Offsets{10, 0, 0, 0, 0, 0})
	s.Record(0, pcap04.ChipData{Raw: [6]uint32{25, 0, 0, 0, 0, 0}}, time.Now())
	cal, _, err := s.Calibrated(0)
	if err != nil {
		t.Fatalf("Calibrated: %v", err)
	}
	if cal[0] != 15 {
		t.Errorf("calibrated[0] = %v, want 15", cal[0])
	}
}

func TestSnapshotSkipsIncomplete(t *testing.T) {
	s := New()
	s.SetOffsets(1, pcap04.Offsets{})
	s.Record(1, pcap04.ChipData{Raw: [6]uint32{1, 1, 1, 1, 1, 1}}, time.Now())
	s.Record(2, pcap04.ChipData{}, time.Now()) // sampled, no baseline
	s.SetOffsets(4, pcap04.Offsets{})          // baseline, never sampled

	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Chip != 1 {
		t.Fatalf("Snapshot = %+v, want exactly chip 1", snap)
	}
}

func TestCompensatedSlot(t *testing.T) {
	s := New()
	if _, _, err := s.Compensated(0); !errors.Is(err, ErrNoData) {
		t.Errorf("Compensated before any push: got %v, want ErrNoData", err)
	}
	ts := time.Now()
	s.SetCompensated(0, [6]float32{1.5, 2.5, 3.5, 4.5, 5.5, 6.5}, ts)
	vals, gotTS, err := s.Compensated(0)
	if err != nil {
		t.Fatalf("Compensated: %v", err)
	}
	if vals[2] != 3.5 || !gotTS.Equal(ts) {
		t.Errorf("Compensated = %v at %v", vals, gotTS)
	}
}

// TestSlotOverwriteIsAtomic updates one chip from a writer goroutine with
// snapshots whose six words always agree, while readers check they never
// observe a torn mix of two cycles.
func TestSlotOverwriteIsAtomic(t *testing.T) {
	s := New()
	s.SetOffsets(0, pcap04.Offsets{})
	s.Record(0, pcap04.ChipData{}, time.Now())

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for n := uint32(1); n <= 5000; n++ {
			var d pcap04.ChipData
			for i := range d.Raw {
				d.Raw[i] = n
			}
			s.Record(0, d, time.Now())
		}
		close(done)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				raw, _, err := s.Raw(0)
				if err != nil {
					t.Errorf("Raw: %v", err)
					return
				}
				for i := 1; i < len(raw); i++ {
					if raw[i] != raw[0] {
						t.Errorf("torn snapshot: %v", raw)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
