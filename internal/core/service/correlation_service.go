package service

import (
	"context"
	"strconv"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/logging"
	"github.com/rl1809/stockroom/internal/metrics"
	"github.com/rl1809/stockroom/internal/port"
)

type CorrelationService struct {
	store        port.LedgerStore
	publisher    port.Publisher
	decoder      *DecodePipeline
	defaultLabel string
	unknownLabel string
	now          func() time.Time
}

func NewCorrelationService(store port.LedgerStore, publisher port.Publisher, decoder *DecodePipeline, defaultLabel, unknownLabel string) *CorrelationService {
	if defaultLabel == "" {
		defaultLabel = domain.DefaultScanLabel
	}
	if unknownLabel == "" {
		unknownLabel = domain.UnknownProductLabel
	}
	return &CorrelationService{
		store:        store,
		publisher:    publisher,
		decoder:      decoder,
		defaultLabel: defaultLabel,
		unknownLabel: unknownLabel,
		now:          time.Now,
	}
}

// ScanImage decodes data and correlates the code it carries.
func (s *CorrelationService) ScanImage(ctx context.Context, data []byte) (domain.CorrelatedEvent, error) {
	res, err := s.decoder.Decode(ctx, data)
	if err != nil {
		return domain.CorrelatedEvent{}, err
	}
	return s.Correlate(ctx, res.Code)
}

// Correlate records a scan of code and joins it with the inventory name and
// the latest weight. The scan record is durable before the event is published.
func (s *CorrelationService) Correlate(ctx context.Context, code string) (domain.CorrelatedEvent, error) {
	if code == "" {
		return domain.CorrelatedEvent{}, domain.ValidationError{Field: "code", Message: "is required"}
	}

	at := s.now().UTC()
	isNew, err := s.store.UpsertScan(ctx, code, s.defaultLabel, at)
	if err != nil {
		return domain.CorrelatedEvent{}, err
	}

	label, err := s.labelFor(ctx, code)
	if err != nil {
		return domain.CorrelatedEvent{}, err
	}

	weight := 0.0
	reading, err := s.store.LatestTelemetry(ctx)
	if err != nil {
		return domain.CorrelatedEvent{}, err
	}
	if reading != nil {
		weight = reading.WeightOrZero()
	}

	event := domain.CorrelatedEvent{
		Code:      code,
		Label:     label,
		Weight:    weight,
		Timestamp: at,
	}

	metrics.ScansCorrelated.WithLabelValues(strconv.FormatBool(isNew)).Inc()
	logging.Ctx(ctx).Info().
		Str("code", code).
		Str("label", label).
		Float64("weight", weight).
		Bool("first_sighting", isNew).
		Msg("scan correlated")

	s.publisher.Publish(port.TopicScanCorrelated, event)
	return event, nil
}

// Latest joins the most recent scan with the most recent telemetry reading.
// Either side may be absent.
func (s *CorrelationService) Latest(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot

	scan, err := s.store.LatestScan(ctx)
	if err != nil {
		return snap, err
	}
	if scan != nil {
		snap.Scan = scan
		if snap.Label, err = s.labelFor(ctx, scan.Code); err != nil {
			return snap, err
		}
	}

	if snap.Telemetry, err = s.store.LatestTelemetry(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

func (s *CorrelationService) labelFor(ctx context.Context, code string) (string, error) {
	item, err := s.store.GetInventoryByCode(ctx, code)
	if err != nil {
		return "", err
	}
	if item == nil {
		return s.unknownLabel, nil
	}
	return item.Name, nil
}
