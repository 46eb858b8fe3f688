package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
)

func TestMemory_UpsertInventory_Concurrent(t *testing.T) {
	adapter := NewMemoryAdapter()
	ctx := context.Background()

	const total = 100
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inserts int
	)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, wasNew, err := adapter.UpsertInventory(ctx, "A1", "Box", nil, time.Now())
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if wasNew {
				mu.Lock()
				inserts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if inserts != 1 {
		t.Errorf("expected 1 insert, got %d", inserts)
	}
	item, _ := adapter.GetInventoryByCode(ctx, "A1")
	if item == nil || item.Quantity != total {
		t.Errorf("expected quantity %d, got %+v", total, item)
	}
}

func TestMemory_UpsertInventory_WeightOnlyWhenSupplied(t *testing.T) {
	adapter := NewMemoryAdapter()
	ctx := context.Background()
	w := 5.0

	adapter.UpsertInventory(ctx, "A1", "Box", &w, time.Now())
	item, _, _ := adapter.UpsertInventory(ctx, "A1", "Crate", nil, time.Now())

	if item.Weight != 5.0 {
		t.Errorf("expected weight 5 preserved, got %v", item.Weight)
	}
	if item.Name != "Crate" {
		t.Errorf("expected name overwritten to Crate, got %s", item.Name)
	}
}

func TestMemory_DecrementOrDelete_NameMismatch(t *testing.T) {
	adapter := NewMemoryAdapter()
	ctx := context.Background()

	adapter.UpsertInventory(ctx, "A1", "Box", nil, time.Now())

	_, err := adapter.DecrementOrDeleteInventory(ctx, "A1", "Crate", time.Now())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
	item, _ := adapter.GetInventoryByCode(ctx, "A1")
	if item == nil || item.Quantity != 1 {
		t.Errorf("expected row untouched, got %+v", item)
	}
}

func TestMemory_EachTelemetrySince_OrderAndWindow(t *testing.T) {
	adapter := NewMemoryAdapter()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// inserted out of order on purpose
	for _, offset := range []int{10, 0, 30, 20, 90} {
		adapter.InsertTelemetry(ctx, domain.Telemetry{Temperature: float64(offset), Timestamp: base.Add(-time.Duration(offset) * time.Minute)})
	}

	var got []float64
	err := adapter.EachTelemetrySince(ctx, base.Add(-time.Hour), 10, func(r domain.Telemetry) bool {
		got = append(got, r.Temperature)
		return true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []float64{0, 10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
			break
		}
	}
}

func TestMemory_LatestScan(t *testing.T) {
	adapter := NewMemoryAdapter()
	ctx := context.Background()
	base := time.Now()

	adapter.UpsertScan(ctx, "A1", "QR Item", base)
	adapter.UpsertScan(ctx, "B2", "QR Item", base.Add(time.Second))
	isNew, _ := adapter.UpsertScan(ctx, "A1", "QR Item", base.Add(2*time.Second))

	if isNew {
		t.Error("expected rescan to not be new")
	}
	if adapter.ScanCount() != 2 {
		t.Errorf("expected 2 scan records, got %d", adapter.ScanCount())
	}
	latest, _ := adapter.LatestScan(ctx)
	if latest == nil || latest.Code != "A1" {
		t.Errorf("expected latest scan A1, got %+v", latest)
	}
}
