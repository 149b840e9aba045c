package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dkozyrev/codeshop/internal/infrastructure/observability"
	"github.com/dkozyrev/codeshop/internal/models"
	"github.com/dkozyrev/codeshop/internal/repository"
	pkgerrors "github.com/dkozyrev/codeshop/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type PostgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

// Fulfill executes the whole checkout inside one database transaction.
//
// Concurrent checkouts racing for the same product are serialized by
// FOR UPDATE SKIP LOCKED on the code selection: a code row locked by another
// in-flight transaction is skipped instead of waited on, so two purchases
// can never reserve the same code and an exhausted pool surfaces as
// out-of-stock rather than a lock pileup. The balance is charged with a
// guarded UPDATE in the same transaction, so credit is never deducted
// without codes delivered and never deducted below zero.
func (r *PostgresOrderRepository) Fulfill(ctx context.Context, userID int64, items []models.CartItem, method models.PaymentMethod) (*repository.FulfillmentResult, error) {
	var err error
	tracer := otel.Tracer("order-repository")
	ctx, span := tracer.Start(ctx, "Fulfill")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("Fulfill", status).Inc()
		observability.RepositoryDuration.WithLabelValues("Fulfill").Observe(time.Since(start).Seconds())
	}()

	if len(items) == 0 {
		err = fmt.Errorf("%w: empty cart", pkgerrors.ErrInvalidInput)
		return nil, err
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			err = fmt.Errorf("%w: quantity must be positive for product %d", pkgerrors.ErrInvalidInput, it.ProductID)
			return nil, err
		}
	}
	if method != models.PaymentCreditBalance {
		err = fmt.Errorf("%w: unsupported payment method %q", pkgerrors.ErrInvalidInput, method)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int("cart_items", len(items)),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Fulfill", "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	fail := func(cause error) (*repository.FulfillmentResult, error) {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "method", "Fulfill", "user_id", userID, "error", rbErr)
			err = fmt.Errorf("rollback failed: %v; original error: %w", rbErr, cause)
			return nil, err
		}
		err = cause
		return nil, err
	}

	// Validate every product and compute the total before touching any
	// state, so validation failures never create rows.
	prices := make(map[int64]int64, len(items))
	var total int64
	for _, it := range items {
		if _, seen := prices[it.ProductID]; !seen {
			var priceCents int64
			var isActive bool
			qErr := tx.QueryRowContext(ctx,
				`SELECT price_cents, is_active FROM products WHERE id = $1`,
				it.ProductID,
			).Scan(&priceCents, &isActive)
			switch {
			case stderrors.Is(qErr, sql.ErrNoRows):
				return fail(fmt.Errorf("%w: product %d", pkgerrors.ErrProductNotFound, it.ProductID))
			case qErr != nil:
				return fail(fmt.Errorf("failed to load product %d: %w", it.ProductID, qErr))
			case !isActive:
				return fail(fmt.Errorf("%w: product %d", pkgerrors.ErrProductInactive, it.ProductID))
			}
			prices[it.ProductID] = priceCents
		}
		total += prices[it.ProductID] * int64(it.Quantity)
	}

	order := &models.Order{
		UserID:        userID,
		TotalCents:    total,
		PaymentMethod: method,
		Status:        models.OrderStatusPending,
	}
	qErr := tx.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, total_cents, payment_method, status) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		userID, total, method, models.OrderStatusPending,
	).Scan(&order.ID, &order.CreatedAt)
	if qErr != nil {
		return fail(fmt.Errorf("failed to create order: %w", qErr))
	}

	// Reserve one unsold code per requested unit under a row lock, binding
	// each to an order item and flipping it sold in the same breath.
	for _, it := range items {
		for unit := 0; unit < it.Quantity; unit++ {
			var codeID int64
			var encrypted string
			qErr = tx.QueryRowContext(ctx,
				`SELECT id, encrypted_code FROM game_codes
				 WHERE product_id = $1 AND NOT is_sold
				 ORDER BY id
				 FOR UPDATE SKIP LOCKED
				 LIMIT 1`,
				it.ProductID,
			).Scan(&codeID, &encrypted)
			switch {
			case stderrors.Is(qErr, sql.ErrNoRows):
				return fail(&pkgerrors.OutOfStockError{ProductID: it.ProductID})
			case qErr != nil:
				return fail(fmt.Errorf("failed to reserve code for product %d: %w", it.ProductID, qErr))
			}

			item := models.OrderItem{
				OrderID:        order.ID,
				ProductID:      it.ProductID,
				GameCodeID:     codeID,
				UnitPriceCents: prices[it.ProductID],
				EncryptedCode:  encrypted,
			}
			qErr = tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, product_id, game_code_id, unit_price_cents) VALUES ($1, $2, $3, $4) RETURNING id`,
				order.ID, it.ProductID, codeID, prices[it.ProductID],
			).Scan(&item.ID)
			if qErr != nil {
				return fail(fmt.Errorf("failed to create order item: %w", qErr))
			}

			res, execErr := tx.ExecContext(ctx,
				`UPDATE game_codes SET is_sold = true, sold_at = now(), order_id = $1 WHERE id = $2 AND NOT is_sold`,
				order.ID, codeID,
			)
			if execErr != nil {
				return fail(fmt.Errorf("failed to mark code %d sold: %w", codeID, execErr))
			}
			if affected, raErr := res.RowsAffected(); raErr != nil || affected != 1 {
				// The row was locked by us; anything but exactly one update
				// is an integrity failure, not contention.
				return fail(fmt.Errorf("%w: code %d mutated outside reservation", pkgerrors.ErrInternal, codeID))
			}

			order.Items = append(order.Items, item)
		}
	}

	// Charge the balance, guarded against going negative. A concurrent
	// spend that drained the balance makes the WHERE clause match nothing.
	var newBalance int64
	qErr = tx.QueryRowContext(ctx,
		`UPDATE profiles SET balance_cents = balance_cents - $1 WHERE id = $2 AND balance_cents >= $1 RETURNING balance_cents`,
		total, userID,
	).Scan(&newBalance)
	switch {
	case stderrors.Is(qErr, sql.ErrNoRows):
		return fail(pkgerrors.ErrInsufficientBalance)
	case qErr != nil:
		return fail(fmt.Errorf("failed to charge balance: %w", qErr))
	}

	if _, qErr := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2`,
		models.OrderStatusCompleted, order.ID,
	); qErr != nil {
		return fail(fmt.Errorf("failed to complete order: %w", qErr))
	}

	if err = tx.Commit(); err != nil {
		slog.Error("failed to commit fulfillment", "method", "Fulfill", "order_id", order.ID, "error", err)
		return nil, fmt.Errorf("failed to commit fulfillment: %w", err)
	}

	order.Status = models.OrderStatusCompleted
	slog.Info("order fulfilled",
		"method", "Fulfill",
		"order_id", order.ID,
		"user_id", userID,
		"total_cents", total,
		"items", len(order.Items))

	return &repository.FulfillmentResult{Order: order, NewBalance: newBalance}, nil
}

func (r *PostgresOrderRepository) GetByID(ctx context.Context, orderID int64) (*models.Order, error) {
	var o models.Order
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, total_cents, payment_method, status, created_at FROM orders WHERE id = $1`,
		orderID,
	).Scan(&o.ID, &o.UserID, &o.TotalCents, &o.PaymentMethod, &o.Status, &o.CreatedAt)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrOrderNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT oi.id, oi.order_id, oi.product_id, oi.game_code_id, oi.unit_price_cents,
		        p.name, p.platform, gc.encrypted_code
		 FROM order_items oi
		 JOIN products p ON p.id = oi.product_id
		 JOIN game_codes gc ON gc.id = oi.game_code_id
		 WHERE oi.order_id = $1
		 ORDER BY oi.id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.GameCodeID,
			&item.UnitPriceCents,
			&item.ProductName,
			&item.Platform,
			&item.EncryptedCode,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order items: %w", err)
	}
	return &o, nil
}

func (r *PostgresOrderRepository) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, total_cents, payment_method, status, created_at FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalCents, &o.PaymentMethod, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}
