package models

import "time"

// GameCode is a single-use digital secret belonging to one product. The
// plaintext never touches the database: EncryptedCode holds the AES-GCM
// ciphertext. A code transitions unsold -> sold exactly once, and once sold
// its OrderID is immutable.
type GameCode struct {
	ID            int64      `json:"id"`
	ProductID     int64      `json:"product_id"`
	EncryptedCode string     `json:"-"`
	IsSold        bool       `json:"is_sold"`
	SoldAt        *time.Time `json:"sold_at,omitempty"`
	OrderID       *int64     `json:"order_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
