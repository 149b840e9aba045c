package models

import "time"

// Product is a catalog entry. Prices are stored in minor units (cents) at
// the moment of sale they are copied onto the order item, so later price
// edits do not rewrite history.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Platform    string    `json:"platform"`
	PriceCents  int64     `json:"price_cents"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// AvailableCodes is a computed column (count of unsold codes), filled by
	// catalog queries, not persisted.
	AvailableCodes int64 `json:"available_codes,omitempty"`
}
