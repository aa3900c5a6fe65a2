package types

// ------------------------
// Common service state (retained)
// ------------------------

type ServiceState struct {
	Level  string `json:"level"`  // "idle", "starting", "up", "degraded", "error"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ms"`
	Error  string `json:"error,omitempty"`
}

// ChipStatus is the retained per-position status published during bring-up
// and whenever a chip's health changes.
type ChipStatus struct {
	Status string `json:"status"` // "ok", "absent", "failed", "lost", "degraded"
	Code   string `json:"code,omitempty"`
	TS     int64  `json:"ts_ms"`
	Error  string `json:"error,omitempty"`
}

// ------------------------
// Sensor payloads
// ------------------------

// ChipReading is the per-chip snapshot published on sensors/{chip}/data.
// Values are parallel arrays indexed by sensor position. Calibrated is only
// meaningful when HasCal is set; before a baseline exists only Raw is.
type ChipReading struct {
	Chip       int        `json:"chip"`
	Raw        [6]uint32  `json:"raw"`
	Calibrated [6]float32 `json:"calibrated"`
	HasCal     bool       `json:"has_cal"`
	TS         int64      `json:"ts_ms"`
}

// Info envelope each chip position exposes (retained).
type Info struct {
	SchemaVersion int    `json:"schema_version"`
	Driver        string `json:"driver"`
	Detail        any    `json:"detail,omitempty"`
}
