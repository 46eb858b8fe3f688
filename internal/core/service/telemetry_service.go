package service

import (
	"context"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/logging"
	"github.com/rl1809/stockroom/internal/metrics"
	"github.com/rl1809/stockroom/internal/port"
	"github.com/rl1809/stockroom/internal/validation"
)

// TelemetryPayload is the shape broadcast on telemetry.new and served by the
// read endpoints. Weight stays null when the node sent none.
type TelemetryPayload struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Weight      *float64  `json:"weight"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewTelemetryPayload(r domain.Telemetry) TelemetryPayload {
	return TelemetryPayload{
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Weight:      r.Weight,
		Timestamp:   r.Timestamp,
	}
}

type TelemetryService struct {
	store     port.LedgerStore
	publisher port.Publisher
	scanLimit int
	now       func() time.Time
}

func NewTelemetryService(store port.LedgerStore, publisher port.Publisher, scanLimit int) *TelemetryService {
	return &TelemetryService{
		store:     store,
		publisher: publisher,
		scanLimit: scanLimit,
		now:       time.Now,
	}
}

// Ingest validates and stores a reading, then announces it on telemetry.new.
func (s *TelemetryService) Ingest(ctx context.Context, in domain.TelemetryInput) (domain.Telemetry, error) {
	if err := validation.Struct(in); err != nil {
		return domain.Telemetry{}, err
	}

	reading := domain.Telemetry{
		Temperature: *in.Temperature,
		Humidity:    *in.Humidity,
		Weight:      in.Weight,
		Timestamp:   s.now().UTC(),
	}

	id, err := s.store.InsertTelemetry(ctx, reading)
	if err != nil {
		return domain.Telemetry{}, err
	}
	reading.ID = id

	metrics.TelemetryIngested.Inc()
	logging.Ctx(ctx).Debug().
		Int64("id", id).
		Float64("temperature", reading.Temperature).
		Float64("humidity", reading.Humidity).
		Float64("weight", reading.WeightOrZero()).
		Msg("telemetry recorded")

	s.publisher.Publish(port.TopicTelemetryNew, NewTelemetryPayload(reading))
	return reading, nil
}

// Latest returns the newest reading or domain.ErrNotFound.
func (s *TelemetryService) Latest(ctx context.Context) (domain.Telemetry, error) {
	reading, err := s.store.LatestTelemetry(ctx)
	if err != nil {
		return domain.Telemetry{}, err
	}
	if reading == nil {
		return domain.Telemetry{}, domain.ErrNotFound
	}
	return *reading, nil
}

// History returns a downsampled view of the readings inside q.Lookback.
func (s *TelemetryService) History(ctx context.Context, q domain.HistoryQuery) ([]domain.Telemetry, error) {
	if q.Lookback <= 0 || q.MaxPoints <= 0 || q.MinGap < 0 {
		return nil, domain.ValidationError{Field: "history", Message: "lookback and points must be positive, gap non-negative"}
	}

	since := s.now().Add(-q.Lookback)
	var scanErr error
	source := func(yield func(domain.Telemetry) bool) {
		scanErr = s.store.EachTelemetrySince(ctx, since, s.scanLimit, yield)
	}

	out := make([]domain.Telemetry, 0, q.MaxPoints)
	for r := range Downsample(source, q.MinGap, q.MaxPoints) {
		out = append(out, r)
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return out, nil
}
