package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Known sources
const (
	SourceBonpreu   = "bonpreu"
	SourceMercadona = "mercadona"
)

// Product is the canonical record for a tracked product at one source
type Product struct {
	ProductID         int64               `db:"product_id" json:"product_id"`
	Source            string              `db:"source" json:"source"`
	ProductType       *string             `db:"product_type" json:"product_type,omitempty"`
	Name              string              `db:"name" json:"name"`
	Description       *string             `db:"description" json:"description,omitempty"`
	Brand             *string             `db:"brand" json:"brand,omitempty"`
	PackSize          *string             `db:"pack_size" json:"pack_size,omitempty"`
	PriceAmount       decimal.NullDecimal `db:"price_amount" json:"price_amount"`
	Currency          string              `db:"currency" json:"currency"`
	UnitPriceAmount   decimal.NullDecimal `db:"unit_price_amount" json:"unit_price_amount"`
	UnitPriceCurrency string              `db:"unit_price_currency" json:"unit_price_currency"`
	UnitPriceUnit     *string             `db:"unit_price_unit" json:"unit_price_unit,omitempty"`
	Available         bool                `db:"available" json:"available"`
	Alcohol           bool                `db:"alcohol" json:"alcohol"`
	CookingGuidelines *string             `db:"cooking_guidelines" json:"cooking_guidelines,omitempty"`
	Categories        pq.StringArray      `db:"categories" json:"categories"`
	LastUpdated       time.Time           `db:"last_updated" json:"last_updated"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
}

// ProductSnapshot is the normalized output of a scraper fetch. It is never
// persisted directly; the orchestrator feeds it into the products table and
// the price history ledger.
type ProductSnapshot struct {
	ProductID         int64
	Source            string
	ProductType       *string
	Name              string
	Description       *string
	Brand             *string
	PackSize          *string
	PriceAmount       decimal.NullDecimal
	Currency          string
	UnitPriceAmount   decimal.NullDecimal
	UnitPriceCurrency string
	UnitPriceUnit     *string
	Available         bool
	Alcohol           bool
	CookingGuidelines *string
	Categories        []string
}

// QueueEntry is one row of the scan queue, unique per (product_id, source)
type QueueEntry struct {
	ID           int64      `db:"id" json:"id"`
	ProductID    int64      `db:"product_id" json:"product_id"`
	Source       string     `db:"source" json:"source"`
	LastScanned  *time.Time `db:"last_scanned" json:"last_scanned,omitempty"`
	ScanPriority int        `db:"scan_priority" json:"scan_priority"`
	ScanCount    int        `db:"scan_count" json:"scan_count"`
	ErrorCount   int        `db:"error_count" json:"error_count"`
	LastError    *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Urgent reports whether the entry must be serviced ahead of routine
// re-scans: it has outstanding errors or has never been scanned.
func (e *QueueEntry) Urgent() bool {
	return e.ErrorCount > 0 || e.LastScanned == nil
}

// PriceObservation is one SCD2 interval of the price history ledger. At most
// one row per (product_id, source) has IsCurrent=true; closed rows are
// immutable.
type PriceObservation struct {
	ID              int64               `db:"id" json:"id"`
	ProductID       int64               `db:"product_id" json:"product_id"`
	Source          string              `db:"source" json:"source"`
	PriceAmount     decimal.NullDecimal `db:"price_amount" json:"price_amount"`
	Currency        string              `db:"currency" json:"currency"`
	UnitPriceAmount decimal.NullDecimal `db:"unit_price_amount" json:"unit_price_amount"`
	UnitPriceUnit   *string             `db:"unit_price_unit" json:"unit_price_unit,omitempty"`
	ValidFrom       time.Time           `db:"valid_from" json:"valid_from"`
	ValidTo         *time.Time          `db:"valid_to" json:"valid_to,omitempty"`
	IsCurrent       bool                `db:"is_current" json:"is_current"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
}

// QueueStats summarizes the scan queue for one source
type QueueStats struct {
	Total        int `db:"total" json:"total"`
	ScannedToday int `db:"scanned_today" json:"scanned_today"`
	WithErrors   int `db:"with_errors" json:"with_errors"`
	NeverScanned int `db:"never_scanned" json:"never_scanned"`
}

// SourceStatus is the per-source view exposed through the status endpoint
type SourceStatus struct {
	Source        string     `json:"source"`
	TotalProducts int        `json:"total_products"`
	ScannedToday  int        `json:"scanned_today"`
	LastDiscovery *time.Time `json:"last_discovery,omitempty"`
	NextBatchRun  *time.Time `json:"next_batch_run,omitempty"`
	IsRunning     bool       `json:"is_running"`
}

// OperationResult is the outcome of a discovery, batch or single-product run
type OperationResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Processed int    `json:"products_processed"`
	Updated   int    `json:"products_updated"`
	Errors    int    `json:"errors"`
}
