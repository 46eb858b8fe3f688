package port

import (
	"context"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
)

type LedgerStore interface {
	// InsertTelemetry appends a reading and returns its id
	InsertTelemetry(ctx context.Context, reading domain.Telemetry) (int64, error)

	// LatestTelemetry returns the newest reading, or nil when there is none
	LatestTelemetry(ctx context.Context) (*domain.Telemetry, error)

	// EachTelemetrySince streams at most limit readings newer than since, newest first.
	// Iteration stops early when fn returns false.
	EachTelemetrySince(ctx context.Context, since time.Time, limit int, fn func(domain.Telemetry) bool) error

	// UpsertInventory increments the row for code or inserts it with quantity 1
	UpsertInventory(ctx context.Context, code, name string, weight *float64, at time.Time) (domain.InventoryItem, bool, error)

	// DecrementOrDeleteInventory removes one unit of the exact (code, name) pair
	DecrementOrDeleteInventory(ctx context.Context, code, name string, at time.Time) (domain.ExportResult, error)

	// GetInventoryByCode returns the row for code, or nil when absent
	GetInventoryByCode(ctx context.Context, code string) (*domain.InventoryItem, error)

	// ListInventory returns every live row, most recently touched first
	ListInventory(ctx context.Context) ([]domain.InventoryItem, error)

	// UpsertScan records a decode of code, reporting whether the record is new
	UpsertScan(ctx context.Context, code, label string, at time.Time) (bool, error)

	// LatestScan returns the most recent scan record, or nil when there is none
	LatestScan(ctx context.Context) (*domain.ScanRecord, error)

	Ping(ctx context.Context) error
}
