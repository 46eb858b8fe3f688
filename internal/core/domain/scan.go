package domain

import "time"

const (
	DefaultScanLabel    = "QR Item"
	UnknownProductLabel = "Unknown Product"
)

// ScanRecord holds the last successful decode of a code. There is at most one
// record per code; a rescan moves Timestamp forward.
type ScanRecord struct {
	Code      string
	Label     string
	Timestamp time.Time
}

// CorrelatedEvent is a scan joined with the latest weight and the inventory
// name for its code. It is never persisted.
type CorrelatedEvent struct {
	Code      string    `json:"code"`
	Label     string    `json:"label"`
	Weight    float64   `json:"weight"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the latest scan and telemetry pair shown on dashboards.
type Snapshot struct {
	Scan      *ScanRecord
	Label     string
	Telemetry *Telemetry
}

type DecodeResult struct {
	Code  string
	Stage string
}
