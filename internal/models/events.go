package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypePriceChanged     = "PRICE_CHANGED"
	EventTypeScanCompleted    = "SCAN_COMPLETED"
	EventTypeSitemapRefreshed = "SITEMAP_REFRESHED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceChangedEvent published when a fetch yields a price differing from the
// current ledger interval (or when a product is observed for the first time)
type PriceChangedEvent struct {
	BaseEvent
	ProductID    int64               `json:"product_id"`
	Source       string              `json:"source"`
	Name         string              `json:"name"`
	OldPrice     decimal.NullDecimal `json:"old_price"`
	NewPrice     decimal.NullDecimal `json:"new_price"`
	OldUnitPrice decimal.NullDecimal `json:"old_unit_price"`
	NewUnitPrice decimal.NullDecimal `json:"new_unit_price"`
	FirstSeen    bool                `json:"first_seen"`
}

// ScanCompletedEvent published after a batch run commits
type ScanCompletedEvent struct {
	BaseEvent
	Source    string `json:"source"`
	Processed int    `json:"products_processed"`
	Updated   int    `json:"products_updated"`
	Errors    int    `json:"errors"`
}

// SitemapRefreshedEvent published after a discovery run commits
type SitemapRefreshedEvent struct {
	BaseEvent
	Source      string `json:"source"`
	Products    int    `json:"products_found"`
	NewProducts int    `json:"new_products_added"`
}
