package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("operation not permitted")

	ErrProductNotFound  = errors.New("product not found")
	ErrProductInactive  = errors.New("product is not active")
	ErrProductNameTaken = errors.New("product name already exists")
	ErrProductHasSales  = errors.New("product has sold codes and cannot be deleted")

	ErrOutOfStock     = errors.New("out of stock")
	ErrCodeNotFound   = errors.New("game code not found")
	ErrCodeSold       = errors.New("game code already sold")
	ErrDecryptionFail = errors.New("stored code cannot be decrypted")

	ErrInsufficientBalance = errors.New("insufficient credit balance")
	ErrOrderNotFound       = errors.New("order not found")
	ErrNotOrderOwner       = errors.New("order belongs to another user")

	ErrCreditRequestNotFound = errors.New("credit request not found")
	ErrCreditRequestReviewed = errors.New("credit request already reviewed")

	ErrRequestAlreadyProcessed = errors.New("request already processed")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInternal                = errors.New("internal error")
)

// OutOfStockError reports which product ran out of unsold codes during
// fulfillment. Matches ErrOutOfStock under errors.Is.
type OutOfStockError struct {
	ProductID int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %d is out of stock", e.ProductID)
}

func (e *OutOfStockError) Is(target error) bool {
	return target == ErrOutOfStock
}
