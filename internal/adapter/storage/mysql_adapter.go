package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

var _ port.LedgerStore = (*MySQLAdapter)(nil)

// txOptions keeps FOR UPDATE reads from taking gap locks on absent keys, so
// racing inserts of a new code queue on the primary key instead of deadlocking.
var txOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return domain.NewStorageError(fmt.Sprintf("migrate step %d", i+1), err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQLAdapter) InsertTelemetry(ctx context.Context, reading domain.Telemetry) (int64, error) {
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO telemetry_readings (temperature, humidity, weight, recorded_at)
		VALUES (?, ?, ?, ?)`,
		reading.Temperature, reading.Humidity, nullFloat(reading.Weight), reading.Timestamp.UTC(),
	)
	if err != nil {
		return 0, domain.NewStorageError("insert telemetry", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, domain.NewStorageError("telemetry id", err)
	}
	return id, nil
}

func (m *MySQLAdapter) LatestTelemetry(ctx context.Context) (*domain.Telemetry, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, temperature, humidity, weight, recorded_at
		FROM telemetry_readings
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1`)

	reading, err := scanTelemetry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStorageError("query latest telemetry", err)
	}
	return &reading, nil
}

func (m *MySQLAdapter) EachTelemetrySince(ctx context.Context, since time.Time, limit int, fn func(domain.Telemetry) bool) error {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, temperature, humidity, weight, recorded_at
		FROM telemetry_readings
		WHERE recorded_at >= ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return domain.NewStorageError("query telemetry history", err)
	}
	defer rows.Close()

	for rows.Next() {
		reading, err := scanTelemetry(rows)
		if err != nil {
			return domain.NewStorageError("scan telemetry history", err)
		}
		if !fn(reading) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return domain.NewStorageError("iterate telemetry history", err)
	}
	return nil
}

func (m *MySQLAdapter) UpsertInventory(ctx context.Context, code, name string, weight *float64, at time.Time) (domain.InventoryItem, bool, error) {
	tx, err := m.db.BeginTx(ctx, txOptions)
	if err != nil {
		return domain.InventoryItem{}, false, domain.NewStorageError("begin tx", err)
	}
	defer tx.Rollback()

	existing, err := selectInventoryForUpdate(ctx, tx, code)
	if err != nil {
		return domain.InventoryItem{}, false, domain.NewStorageError("lock inventory", err)
	}

	wasNew := existing == nil
	if wasNew {
		// A concurrent insert of the same code may commit between the read
		// above and this statement; the update clause turns it into an increment.
		result, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_items (code, name, weight, quantity, updated_at)
			VALUES (?, ?, ?, 1, ?)
			ON DUPLICATE KEY UPDATE
				quantity = quantity + 1,
				name = VALUES(name),
				weight = COALESCE(?, weight),
				updated_at = VALUES(updated_at)`,
			code, name, valueOrZero(weight), at.UTC(), nullFloat(weight),
		)
		if err != nil {
			return domain.InventoryItem{}, false, domain.NewStorageError("insert inventory", err)
		}
		// MySQL reports 1 affected row for an insert and 2 for an update.
		if rows, _ := result.RowsAffected(); rows != 1 {
			wasNew = false
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory_items
			SET quantity = quantity + 1, name = ?, weight = COALESCE(?, weight), updated_at = ?
			WHERE code = ?`,
			name, nullFloat(weight), at.UTC(), code,
		)
		if err != nil {
			return domain.InventoryItem{}, false, domain.NewStorageError("update inventory", err)
		}
	}

	item, err := selectInventoryForUpdate(ctx, tx, code)
	if err != nil {
		return domain.InventoryItem{}, false, domain.NewStorageError("reload inventory", err)
	}
	if item == nil {
		return domain.InventoryItem{}, false, domain.NewStorageError("reload inventory", sql.ErrNoRows)
	}

	if err := tx.Commit(); err != nil {
		return domain.InventoryItem{}, false, domain.NewStorageError("commit", err)
	}
	return *item, wasNew, nil
}

func (m *MySQLAdapter) DecrementOrDeleteInventory(ctx context.Context, code, name string, at time.Time) (domain.ExportResult, error) {
	tx, err := m.db.BeginTx(ctx, txOptions)
	if err != nil {
		return domain.ExportResult{}, domain.NewStorageError("begin tx", err)
	}
	defer tx.Rollback()

	var quantity int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM inventory_items
		WHERE code = ? AND name = ?
		FOR UPDATE`, code, name,
	).Scan(&quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExportResult{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ExportResult{}, domain.NewStorageError("lock inventory", err)
	}

	var res domain.ExportResult
	if quantity > 1 {
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory_items
			SET quantity = quantity - 1, updated_at = ?
			WHERE code = ?`, at.UTC(), code)
		res.Remaining = quantity - 1
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM inventory_items WHERE code = ?`, code)
		res.Removed = true
	}
	if err != nil {
		return domain.ExportResult{}, domain.NewStorageError("export inventory", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.ExportResult{}, domain.NewStorageError("commit", err)
	}
	return res, nil
}

func (m *MySQLAdapter) GetInventoryByCode(ctx context.Context, code string) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := m.db.QueryRowContext(ctx, `
		SELECT code, name, weight, quantity, updated_at
		FROM inventory_items WHERE code = ?`, code,
	).Scan(&item.Code, &item.Name, &item.Weight, &item.Quantity, &item.Timestamp)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStorageError("query inventory", err)
	}
	return &item, nil
}

func (m *MySQLAdapter) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT code, name, weight, quantity, updated_at
		FROM inventory_items
		ORDER BY updated_at DESC, code ASC`)
	if err != nil {
		return nil, domain.NewStorageError("list inventory", err)
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0)
	for rows.Next() {
		var item domain.InventoryItem
		if err := rows.Scan(&item.Code, &item.Name, &item.Weight, &item.Quantity, &item.Timestamp); err != nil {
			return nil, domain.NewStorageError("scan inventory", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate inventory", err)
	}
	return items, nil
}

func (m *MySQLAdapter) UpsertScan(ctx context.Context, code, label string, at time.Time) (bool, error) {
	tx, err := m.db.BeginTx(ctx, txOptions)
	if err != nil {
		return false, domain.NewStorageError("begin tx", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT code FROM scan_records WHERE code = ? FOR UPDATE`, code).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.ExecContext(ctx, `
			INSERT INTO scan_records (code, label, scanned_at)
			VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE scanned_at = VALUES(scanned_at)`,
			code, label, at.UTC(),
		)
		if err != nil {
			return false, domain.NewStorageError("insert scan", err)
		}
		rows, _ := result.RowsAffected()
		if err := tx.Commit(); err != nil {
			return false, domain.NewStorageError("commit", err)
		}
		return rows == 1, nil
	case err != nil:
		return false, domain.NewStorageError("lock scan", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE scan_records SET scanned_at = ? WHERE code = ?`, at.UTC(), code); err != nil {
		return false, domain.NewStorageError("update scan", err)
	}
	if err := tx.Commit(); err != nil {
		return false, domain.NewStorageError("commit", err)
	}
	return false, nil
}

func (m *MySQLAdapter) LatestScan(ctx context.Context) (*domain.ScanRecord, error) {
	var rec domain.ScanRecord
	err := m.db.QueryRowContext(ctx, `
		SELECT code, label, scanned_at
		FROM scan_records
		ORDER BY scanned_at DESC
		LIMIT 1`,
	).Scan(&rec.Code, &rec.Label, &rec.Timestamp)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStorageError("query latest scan", err)
	}
	return &rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTelemetry(row rowScanner) (domain.Telemetry, error) {
	var (
		reading domain.Telemetry
		weight  sql.NullFloat64
	)
	if err := row.Scan(&reading.ID, &reading.Temperature, &reading.Humidity, &weight, &reading.Timestamp); err != nil {
		return domain.Telemetry{}, err
	}
	if weight.Valid {
		w := weight.Float64
		reading.Weight = &w
	}
	return reading, nil
}

func selectInventoryForUpdate(ctx context.Context, tx *sql.Tx, code string) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := tx.QueryRowContext(ctx, `
		SELECT code, name, weight, quantity, updated_at
		FROM inventory_items WHERE code = ?
		FOR UPDATE`, code,
	).Scan(&item.Code, &item.Name, &item.Weight, &item.Quantity, &item.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
