package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dkozyrev/codeshop/internal/models"
	repository "github.com/dkozyrev/codeshop/internal/repository/postgres"
	pkgerrors "github.com/dkozyrev/codeshop/pkg/errors"
	"github.com/stretchr/testify/assert"
)

const (
	selectProduct = `SELECT price_cents, is_active FROM products WHERE id = $1`
	insertOrder   = `INSERT INTO orders (user_id, total_cents, payment_method, status) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	reserveCode   = `FOR UPDATE SKIP LOCKED`
	insertItem    = `INSERT INTO order_items (order_id, product_id, game_code_id, unit_price_cents) VALUES ($1, $2, $3, $4) RETURNING id`
	markSold      = `UPDATE game_codes SET is_sold = true, sold_at = now(), order_id = $1 WHERE id = $2 AND NOT is_sold`
	chargeUser    = `UPDATE profiles SET balance_cents = balance_cents - $1 WHERE id = $2 AND balance_cents >= $1 RETURNING balance_cents`
	completeOrder = `UPDATE orders SET status = $1 WHERE id = $2`
)

func TestPostgresOrderRepository_Fulfill(t *testing.T) {
	ctx := context.Background()
	userID := int64(7)

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresOrderRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(selectProduct)).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"price_cents", "is_active"}).AddRow(1000, true))
		mock.ExpectQuery(regexp.QuoteMeta(insertOrder)).
			WithArgs(userID, int64(2000), string(models.PaymentCreditBalance), string(models.OrderStatusPending)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), time.Now()))

		for unit := 0; unit < 2; unit++ {
			codeID := int64(100 + unit)
			mock.ExpectQuery(regexp.QuoteMeta(reserveCode)).
				WithArgs(int64(1)).
				WillReturnRows(sqlmock.NewRows([]string{"id", "encrypted_code"}).AddRow(codeID, "ciphertext"))
			mock.ExpectQuery(regexp.QuoteMeta(insertItem)).
				WithArgs(int64(42), int64(1), codeID, int64(1000)).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(200 + unit)))
			mock.ExpectExec(regexp.QuoteMeta(markSold)).
				WithArgs(int64(42), codeID).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}

		mock.ExpectQuery(regexp.QuoteMeta(chargeUser)).
			WithArgs(int64(2000), userID).
			WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}).AddRow(int64(500)))
		mock.ExpectExec(regexp.QuoteMeta(completeOrder)).
			WithArgs(string(models.OrderStatusCompleted), int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := repo.Fulfill(ctx, userID, []models.CartItem{{ProductID: 1, Quantity: 2}}, models.PaymentCreditBalance)
		assert.NoError(t, err)
		assert.Equal(t, int64(42), result.Order.ID)
		assert.Equal(t, models.OrderStatusCompleted, result.Order.Status)
		assert.Equal(t, int64(2000), result.Order.TotalCents)
		assert.Equal(t, int64(500), result.NewBalance)
		assert.Len(t, result.Order.Items, 2)
		assert.Equal(t, "ciphertext", result.Order.Items[0].EncryptedCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("OutOfStockMidLoopRollsBack", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresOrderRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(selectProduct)).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"price_cents", "is_active"}).AddRow(1000, true))
		mock.ExpectQuery(regexp.QuoteMeta(insertOrder)).
			WithArgs(userID, int64(2000), string(models.PaymentCreditBalance), string(models.OrderStatusPending)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), time.Now()))

		// First unit reserves, second finds the pool empty.
		mock.ExpectQuery(regexp.QuoteMeta(reserveCode)).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "encrypted_code"}).AddRow(int64(100), "ciphertext"))
		mock.ExpectQuery(regexp.QuoteMeta(insertItem)).
			WithArgs(int64(42), int64(1), int64(100), int64(1000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(200)))
		mock.ExpectExec(regexp.QuoteMeta(markSold)).
			WithArgs(int64(42), int64(100)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(reserveCode)).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "encrypted_code"}))
		mock.ExpectRollback()

		result, err := repo.Fulfill(ctx, userID, []models.CartItem{{ProductID: 1, Quantity: 2}}, models.PaymentCreditBalance)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, pkgerrors.ErrOutOfStock)
		var oos *pkgerrors.OutOfStockError
		assert.ErrorAs(t, err, &oos)
		assert.Equal(t, int64(1), oos.ProductID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InsufficientBalanceRollsBack", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresOrderRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(selectProduct)).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"price_cents", "is_active"}).AddRow(1000, true))
		mock.ExpectQuery(regexp.QuoteMeta(insertOrder)).
			WithArgs(userID, int64(1000), string(models.PaymentCreditBalance), string(models.OrderStatusPending)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), time.Now()))
		mock.ExpectQuery(regexp.QuoteMeta(reserveCode)).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "encrypted_code"}).AddRow(int64(100), "ciphertext"))
		mock.ExpectQuery(regexp.QuoteMeta(insertItem)).
			WithArgs(int64(42), int64(1), int64(100), int64(1000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(200)))
		mock.ExpectExec(regexp.QuoteMeta(markSold)).
			WithArgs(int64(42), int64(100)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		// Guarded decrement matches no row: balance too low.
		mock.ExpectQuery(regexp.QuoteMeta(chargeUser)).
			WithArgs(int64(1000), userID).
			WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}))
		mock.ExpectRollback()

		result, err := repo.Fulfill(ctx, userID, []models.CartItem{{ProductID: 1, Quantity: 1}}, models.PaymentCreditBalance)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InactiveProduct", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresOrderRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(selectProduct)).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"price_cents", "is_active"}).AddRow(1000, false))
		mock.ExpectRollback()

		result, err := repo.Fulfill(ctx, userID, []models.CartItem{{ProductID: 1, Quantity: 1}}, models.PaymentCreditBalance)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, pkgerrors.ErrProductInactive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnknownProduct", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresOrderRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(selectProduct)).
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"price_cents", "is_active"}))
		mock.ExpectRollback()

		result, err := repo.Fulfill(ctx, userID, []models.CartItem{{ProductID: 99, Quantity: 1}}, models.PaymentCreditBalance)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, pkgerrors.ErrProductNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EmptyCart", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresOrderRepository(db)

		result, err := repo.Fulfill(ctx, userID, nil, models.PaymentCreditBalance)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NonPositiveQuantity", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresOrderRepository(db)

		result, err := repo.Fulfill(ctx, userID, []models.CartItem{{ProductID: 1, Quantity: 0}}, models.PaymentCreditBalance)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresOrderRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresOrderRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, total_cents, payment_method, status, created_at FROM orders WHERE id = $1`)).
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "total_cents", "payment_method", "status", "created_at"}))

		order, err := repo.GetByID(ctx, 5)
		assert.Nil(t, order)
		assert.ErrorIs(t, err, pkgerrors.ErrOrderNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("WithItems", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresOrderRepository(db)

		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, total_cents, payment_method, status, created_at FROM orders WHERE id = $1`)).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "total_cents", "payment_method", "status", "created_at"}).
				AddRow(int64(42), int64(7), int64(1000), "credit_balance", "completed", now))
		mock.ExpectQuery(regexp.QuoteMeta(`FROM order_items oi`)).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "game_code_id", "unit_price_cents", "name", "platform", "encrypted_code"}).
				AddRow(int64(200), int64(42), int64(1), int64(100), int64(1000), "Roblox $10", "roblox", "ciphertext"))

		order, err := repo.GetByID(ctx, 42)
		assert.NoError(t, err)
		assert.Equal(t, models.OrderStatusCompleted, order.Status)
		assert.Len(t, order.Items, 1)
		assert.Equal(t, "Roblox $10", order.Items[0].ProductName)
		assert.Equal(t, "ciphertext", order.Items[0].EncryptedCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
