package repository

import (
	"context"

	"github.com/dkozyrev/codeshop/internal/models"
)

// FulfillmentResult is what the fulfillment transaction hands back on
// success: the completed order with its items, each carrying the encrypted
// code reserved for it. Decryption happens in the service layer.
type FulfillmentResult struct {
	Order      *models.Order
	NewBalance int64 // balance after a credit payment
}

type OrderRepository interface {
	// Fulfill runs the whole checkout inside one database transaction:
	// validate products, create the pending order, reserve one unsold code
	// per requested unit under a row lock, bind items, charge the balance,
	// and mark the order completed. Any failure rolls everything back.
	Fulfill(ctx context.Context, userID int64, items []models.CartItem, method models.PaymentMethod) (*FulfillmentResult, error)

	GetByID(ctx context.Context, orderID int64) (*models.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Order, error)
}
