package storage

// schema is applied in order by Migrate. Every statement is idempotent.
// Codes, names and labels compare byte for byte, so the ledger keys match
// the in-memory store regardless of the server's default collation.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS telemetry_readings (
		id          BIGINT AUTO_INCREMENT PRIMARY KEY,
		temperature DOUBLE NOT NULL,
		humidity    DOUBLE NOT NULL,
		weight      DOUBLE NULL,
		recorded_at DATETIME(6) NOT NULL,
		INDEX idx_telemetry_recorded_at (recorded_at)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS inventory_items (
		code       VARCHAR(255) NOT NULL PRIMARY KEY,
		name       VARCHAR(255) NOT NULL,
		weight     DOUBLE NOT NULL DEFAULT 0,
		quantity   INT NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_inventory_updated_at (updated_at),
		CONSTRAINT chk_inventory_quantity CHECK (quantity >= 1)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin`,
	`CREATE TABLE IF NOT EXISTS scan_records (
		code       VARCHAR(255) NOT NULL PRIMARY KEY,
		label      VARCHAR(255) NOT NULL,
		scanned_at DATETIME(6) NOT NULL,
		INDEX idx_scan_scanned_at (scanned_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin`,
	// tables created before the binary collation was declared
	`ALTER TABLE inventory_items CONVERT TO CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`,
	`ALTER TABLE scan_records CONVERT TO CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`,
}
