package service

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/logging"
	"github.com/rl1809/stockroom/internal/metrics"
	"github.com/rl1809/stockroom/internal/port"
	"github.com/rl1809/stockroom/internal/validation"
)

// InventoryChange is published on the inventory.changed topic.
type InventoryChange struct {
	Op        string    `json:"op"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Removed   bool      `json:"removed"`
	Timestamp time.Time `json:"timestamp"`
}

type InventoryService struct {
	store     port.LedgerStore
	publisher port.Publisher
	now       func() time.Time
}

func NewInventoryService(store port.LedgerStore, publisher port.Publisher) *InventoryService {
	return &InventoryService{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// Import adds one unit of code. The row is keyed by code alone: name is
// overwritten on every import and weight only when one is supplied.
func (s *InventoryService) Import(ctx context.Context, req domain.ImportRequest) (domain.ImportResult, error) {
	if err := validation.Struct(req); err != nil {
		return domain.ImportResult{}, err
	}

	at := s.now().UTC()
	item, wasNew, err := s.store.UpsertInventory(ctx, req.Code, req.Name, req.Weight, at)
	if err != nil {
		return domain.ImportResult{}, err
	}

	op := "increment"
	if wasNew {
		op = "insert"
	}
	metrics.InventoryMutations.WithLabelValues(op).Inc()
	logging.Ctx(ctx).Info().
		Str("code", item.Code).
		Str("name", item.Name).
		Int("quantity", item.Quantity).
		Bool("new", wasNew).
		Msg("item imported")

	s.publisher.Publish(port.TopicInventoryChanged, InventoryChange{
		Op:        "import",
		Code:      item.Code,
		Name:      item.Name,
		Quantity:  item.Quantity,
		Timestamp: at,
	})

	return domain.ImportResult{Item: item, WasNew: wasNew}, nil
}

// Export removes one unit of the exact (code, name) pair, deleting the row
// when its last unit leaves.
func (s *InventoryService) Export(ctx context.Context, req domain.ExportRequest) (domain.ExportResult, error) {
	if err := validation.Struct(req); err != nil {
		return domain.ExportResult{}, err
	}

	at := s.now().UTC()
	res, err := s.store.DecrementOrDeleteInventory(ctx, req.Code, req.Name, at)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logging.Ctx(ctx).Debug().Str("code", req.Code).Str("name", req.Name).Msg("export of absent item")
		}
		return domain.ExportResult{}, err
	}

	op := "decrement"
	if res.Removed {
		op = "delete"
	}
	metrics.InventoryMutations.WithLabelValues(op).Inc()
	logging.Ctx(ctx).Info().
		Str("code", req.Code).
		Int("remaining", res.Remaining).
		Bool("removed", res.Removed).
		Msg("item exported")

	s.publisher.Publish(port.TopicInventoryChanged, InventoryChange{
		Op:        "export",
		Code:      req.Code,
		Name:      req.Name,
		Quantity:  res.Remaining,
		Removed:   res.Removed,
		Timestamp: at,
	})

	return res, nil
}

func (s *InventoryService) List(ctx context.Context) ([]domain.InventoryItem, error) {
	return s.store.ListInventory(ctx)
}
