package domain

import "time"

// Telemetry is a single sensor node sample. Weight is nil when the node did
// not report a load cell value.
type Telemetry struct {
	ID          int64
	Temperature float64
	Humidity    float64
	Weight      *float64
	Timestamp   time.Time
}

// WeightOrZero returns the reported weight, or 0 when absent.
func (t Telemetry) WeightOrZero() float64 {
	if t.Weight == nil {
		return 0
	}
	return *t.Weight
}

type TelemetryInput struct {
	Temperature *float64 `json:"temperature" validate:"required"`
	Humidity    *float64 `json:"humidity" validate:"required"`
	Weight      *float64 `json:"weight,omitempty" validate:"omitempty,gte=0"`
}

// HistoryQuery bounds a downsampled history read.
type HistoryQuery struct {
	Lookback  time.Duration
	MinGap    time.Duration
	MaxPoints int
}
