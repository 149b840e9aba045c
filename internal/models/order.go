package models

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

type PaymentMethod string

const (
	PaymentCreditBalance PaymentMethod = "credit_balance"
)

// Order is one purchase event. Status becomes completed only after every
// line item is bound to a sold game code inside the same transaction.
type Order struct {
	ID            int64         `json:"id"`
	UserID        int64         `json:"user_id"`
	TotalCents    int64         `json:"total_cents"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Status        OrderStatus   `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`

	Items []OrderItem `json:"items,omitempty"`
}

// OrderItem binds an order to one sold game code. UnitPriceCents is the
// product price copied at the time of sale.
type OrderItem struct {
	ID             int64  `json:"id"`
	OrderID        int64  `json:"order_id"`
	ProductID      int64  `json:"product_id"`
	GameCodeID     int64  `json:"game_code_id"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	ProductName    string `json:"product_name,omitempty"`
	Platform       string `json:"platform,omitempty"`

	// EncryptedCode is the at-rest ciphertext loaded alongside the item;
	// Code carries the decrypted plaintext on checkout/detail responses for
	// the owning user and is never persisted.
	EncryptedCode string `json:"-"`
	Code          string `json:"code,omitempty"`
}

// CartItem is one requested (product, quantity) pair of a checkout.
type CartItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
