package domain

import "time"

// InventoryItem is one live stock row. Quantity is at least 1 while the row
// exists; reaching zero deletes it.
type InventoryItem struct {
	Code      string
	Name      string
	Weight    float64
	Quantity  int
	Timestamp time.Time
}

type ImportRequest struct {
	Code   string   `json:"code" validate:"required,max=255"`
	Name   string   `json:"name" validate:"required,max=255"`
	Weight *float64 `json:"weight,omitempty" validate:"omitempty,gte=0"`
}

type ImportResult struct {
	Item   InventoryItem
	WasNew bool
}

type ExportRequest struct {
	Code string `json:"code" validate:"required,max=255"`
	Name string `json:"name" validate:"required,max=255"`
}

type ExportResult struct {
	Removed   bool
	Remaining int
}
