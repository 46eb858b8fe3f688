package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

var _ port.LedgerStore = (*MemoryAdapter)(nil)

// MemoryAdapter keeps the ledger in process memory. A single mutex makes every
// read-then-write step atomic. Used for single-node development and tests.
type MemoryAdapter struct {
	mu sync.RWMutex

	nextTelemetryID int64
	telemetry       []domain.Telemetry
	inventory       map[string]domain.InventoryItem
	scans           map[string]domain.ScanRecord
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		telemetry: make([]domain.Telemetry, 0),
		inventory: make(map[string]domain.InventoryItem),
		scans:     make(map[string]domain.ScanRecord),
	}
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryAdapter) InsertTelemetry(_ context.Context, reading domain.Telemetry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextTelemetryID++
	reading.ID = m.nextTelemetryID
	if reading.Weight != nil {
		w := *reading.Weight
		reading.Weight = &w
	}
	m.telemetry = append(m.telemetry, reading)
	return reading.ID, nil
}

func (m *MemoryAdapter) LatestTelemetry(_ context.Context) (*domain.Telemetry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.telemetry) == 0 {
		return nil, nil
	}
	latest := slices.MaxFunc(m.telemetry, compareTelemetry)
	return &latest, nil
}

func (m *MemoryAdapter) EachTelemetrySince(ctx context.Context, since time.Time, limit int, fn func(domain.Telemetry) bool) error {
	m.mu.RLock()
	snapshot := make([]domain.Telemetry, 0, len(m.telemetry))
	for _, r := range m.telemetry {
		if !r.Timestamp.Before(since) {
			snapshot = append(snapshot, r)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(snapshot, func(a, b domain.Telemetry) int {
		return compareTelemetry(b, a)
	})
	if limit >= 0 && len(snapshot) > limit {
		snapshot = snapshot[:limit]
	}

	for _, r := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(r) {
			return nil
		}
	}
	return nil
}

func (m *MemoryAdapter) UpsertInventory(_ context.Context, code, name string, weight *float64, at time.Time) (domain.InventoryItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.inventory[code]
	if exists {
		item.Quantity++
		item.Name = name
		if weight != nil {
			item.Weight = *weight
		}
		item.Timestamp = at
	} else {
		item = domain.InventoryItem{
			Code:      code,
			Name:      name,
			Weight:    valueOrZero(weight),
			Quantity:  1,
			Timestamp: at,
		}
	}
	m.inventory[code] = item
	return item, !exists, nil
}

func (m *MemoryAdapter) DecrementOrDeleteInventory(_ context.Context, code, name string, at time.Time) (domain.ExportResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.inventory[code]
	if !ok || item.Name != name {
		return domain.ExportResult{}, domain.ErrNotFound
	}

	if item.Quantity > 1 {
		item.Quantity--
		item.Timestamp = at
		m.inventory[code] = item
		return domain.ExportResult{Remaining: item.Quantity}, nil
	}

	delete(m.inventory, code)
	return domain.ExportResult{Removed: true}, nil
}

func (m *MemoryAdapter) GetInventoryByCode(_ context.Context, code string) (*domain.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.inventory[code]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *MemoryAdapter) ListInventory(_ context.Context) ([]domain.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]domain.InventoryItem, 0, len(m.inventory))
	for _, item := range m.inventory {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.InventoryItem) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	return items, nil
}

func (m *MemoryAdapter) UpsertScan(_ context.Context, code, label string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.scans[code]; ok {
		rec.Timestamp = at
		m.scans[code] = rec
		return false, nil
	}
	m.scans[code] = domain.ScanRecord{Code: code, Label: label, Timestamp: at}
	return true, nil
}

func (m *MemoryAdapter) LatestScan(_ context.Context) (*domain.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *domain.ScanRecord
	for _, rec := range m.scans {
		if latest == nil || rec.Timestamp.After(latest.Timestamp) {
			r := rec
			latest = &r
		}
	}
	return latest, nil
}

// ScanCount reports how many scan records exist.
func (m *MemoryAdapter) ScanCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.scans)
}

func compareTelemetry(a, b domain.Telemetry) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
