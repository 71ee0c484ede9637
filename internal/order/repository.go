package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"storefront/internal/product"
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, result PaymentResult, paidAt time.Time) error
	MarkShipped(ctx context.Context, id uuid.UUID, shippedAt time.Time) error
	MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error
	Cancel(ctx context.Context, o *Order, cancelledAt time.Time) error
	MarkRefunded(ctx context.Context, id uuid.UUID, amount float64, refundedAt time.Time) error
	Delete(ctx context.Context, o *Order) error
	HasPurchased(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `
	id, user_id, payment_method,
	shipping_address, shipping_city, shipping_postal_code, shipping_country,
	items_price, tax_price, shipping_price, total_price, refund_amount,
	is_paid, paid_at,
	payment_transaction_id, payment_status, payment_update_time, payment_payer_email,
	is_shipped, shipped_at, is_delivered, delivered_at,
	is_cancelled, cancelled_at, is_refunded, refunded_at,
	cancellable_until, created_at, updated_at`

const itemColumns = `id, order_id, product_id, name, image, unit_price, quantity`

// Create persists a new order atomically: every line item's availability
// check and stock decrement, the snapshot reads, and the order insert all
// happen in a single transaction. Any failure leaves stock untouched.
func (r *postgresRepository) Create(ctx context.Context, o *Order) (err error) {
	if o.ID == uuid.Nil {
		genID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", genErr)
		}
		o.ID = genID
	}

	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback create transaction")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	products := product.NewRepository(tx)

	for i := range o.Items {
		item := &o.Items[i]

		p, perr := products.GetByID(ctx, item.ProductID)
		if perr != nil {
			if errors.Is(perr, product.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
			}
			return fmt.Errorf("repository: failed to load product %s: %w", item.ProductID, perr)
		}

		// Snapshot the live product data. Client input never reaches these
		// fields, and the snapshot is what the money recomputation reads.
		item.Name = p.Name
		item.Image = p.Image
		item.UnitPrice = p.Price

		if derr := products.DecrementStock(ctx, item.ProductID, item.Quantity); derr != nil {
			switch {
			case errors.Is(derr, product.ErrInsufficientStock):
				return fmt.Errorf("%w: product %s has %d in stock, %d requested",
					ErrInsufficientStock, item.ProductID, p.CountInStock, item.Quantity)
			case errors.Is(derr, product.ErrNotFound):
				return fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
			default:
				return fmt.Errorf("repository: failed to decrement stock: %w", derr)
			}
		}
	}

	o.RecomputeTotals()

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.CancellableUntil = now.Add(24 * time.Hour)

	var txnID, payStatus, payUpdate, payEmail *string
	if o.PaymentResult != nil {
		txnID = &o.PaymentResult.TransactionID
		payStatus = &o.PaymentResult.Status
		payUpdate = &o.PaymentResult.UpdateTime
		payEmail = &o.PaymentResult.PayerEmail
	}

	queryOrder := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
	`
	_, err = tx.Exec(ctx, queryOrder,
		o.ID, o.UserID, string(o.PaymentMethod),
		o.ShippingAddress.Address, o.ShippingAddress.City, o.ShippingAddress.PostalCode, o.ShippingAddress.Country,
		o.ItemsPrice, o.TaxPrice, o.ShippingPrice, o.TotalPrice, o.RefundAmount,
		o.IsPaid, o.PaidAt,
		txnID, payStatus, payUpdate, payEmail,
		o.IsShipped, o.ShippedAt, o.IsDelivered, o.DeliveredAt,
		o.IsCancelled, o.CancelledAt, o.IsRefunded, o.RefundedAt,
		o.CancellableUntil, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i := range o.Items {
		item := &o.Items[i]

		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			err = fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
			return err
		}
		item.ID = itemID
		item.OrderID = o.ID

		_, err = tx.Exec(ctx, queryItem,
			item.ID, item.OrderID, item.ProductID, item.Name, item.Image, item.UnitPrice, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}

	return nil
}

func scanOrder(row pgx.Row, o *Order) error {
	var txnID, payStatus, payUpdate, payEmail *string

	err := row.Scan(
		&o.ID, &o.UserID, &o.PaymentMethod,
		&o.ShippingAddress.Address, &o.ShippingAddress.City, &o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
		&o.ItemsPrice, &o.TaxPrice, &o.ShippingPrice, &o.TotalPrice, &o.RefundAmount,
		&o.IsPaid, &o.PaidAt,
		&txnID, &payStatus, &payUpdate, &payEmail,
		&o.IsShipped, &o.ShippedAt, &o.IsDelivered, &o.DeliveredAt,
		&o.IsCancelled, &o.CancelledAt, &o.IsRefunded, &o.RefundedAt,
		&o.CancellableUntil, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if txnID != nil {
		o.PaymentResult = &PaymentResult{
			TransactionID: *txnID,
			Status:        derefString(payStatus),
			UpdateTime:    derefString(payUpdate),
			PayerEmail:    derefString(payEmail),
		}
	}

	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	queryOrder := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var o Order
	if err := scanOrder(r.db.QueryRow(ctx, queryOrder, id), &o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	queryItems := `SELECT ` + itemColumns + ` FROM order_items WHERE order_id = $1`

	rows, err := r.db.Query(ctx, queryItems, id)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order id %s: %w", id, err)
	}
	defer rows.Close()

	items := make([]OrderItem, 0)
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.Image, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order id %s: %w", id, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order id %s: %w", id, err)
	}

	o.Items = items

	return &o, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *postgresRepository) ListAll(ctx context.Context) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`
	return r.list(ctx, query)
}

func (r *postgresRepository) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	orderRows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer orderRows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for orderRows.Next() {
		var o Order
		if err := scanOrder(orderRows, &o); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		o.Items = make([]OrderItem, 0)
		ordersMap[o.ID] = &o
		orderIDs = append(orderIDs, o.ID)
	}
	if err := orderRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders: %w", err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	queryItems := `SELECT ` + itemColumns + ` FROM order_items WHERE order_id = ANY($1)`

	itemRows, err := r.db.Query(ctx, queryItems, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item OrderItem
		if err := itemRows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.Image, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		if o, ok := ordersMap[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating order items: %w", err)
	}

	result := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *ordersMap[id])
	}

	return result, nil
}

type statusFlags struct {
	isPaid      bool
	isShipped   bool
	isDelivered bool
	isCancelled bool
	isRefunded  bool
}

func (r *postgresRepository) getFlags(ctx context.Context, q product.Querier, id uuid.UUID) (statusFlags, error) {
	query := `SELECT is_paid, is_shipped, is_delivered, is_cancelled, is_refunded FROM orders WHERE id = $1`

	var fl statusFlags
	err := q.QueryRow(ctx, query, id).Scan(&fl.isPaid, &fl.isShipped, &fl.isDelivered, &fl.isCancelled, &fl.isRefunded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fl, ErrNotFound
		}
		return fl, fmt.Errorf("repository: failed to select order flags for %s: %w", id, err)
	}

	return fl, nil
}

// MarkPaid flips the paid flag and attaches the payment result. The WHERE
// guard makes re-invocation a conflict rather than a silent re-apply, even
// when two requests race.
func (r *postgresRepository) MarkPaid(ctx context.Context, id uuid.UUID, result PaymentResult, paidAt time.Time) error {
	query := `
		UPDATE orders
		SET is_paid = true, paid_at = $2,
		    payment_transaction_id = $3, payment_status = $4, payment_update_time = $5, payment_payer_email = $6,
		    updated_at = $2
		WHERE id = $1 AND is_paid = false
	`

	cmdTag, err := r.db.Exec(ctx, query, id, paidAt, result.TransactionID, result.Status, result.UpdateTime, result.PayerEmail)
	if err != nil {
		return fmt.Errorf("repository: failed to mark order %s paid: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		if _, flErr := r.getFlags(ctx, r.db, id); flErr != nil {
			return flErr
		}
		return ErrAlreadyPaid
	}

	return nil
}

func (r *postgresRepository) MarkShipped(ctx context.Context, id uuid.UUID, shippedAt time.Time) error {
	query := `
		UPDATE orders
		SET is_shipped = true, shipped_at = $2, updated_at = $2
		WHERE id = $1 AND is_shipped = false AND is_cancelled = false
	`

	cmdTag, err := r.db.Exec(ctx, query, id, shippedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to mark order %s shipped: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		fl, flErr := r.getFlags(ctx, r.db, id)
		if flErr != nil {
			return flErr
		}
		if fl.isCancelled {
			return ErrOrderCancelled
		}
		return ErrAlreadyShipped
	}

	return nil
}

func (r *postgresRepository) MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	query := `
		UPDATE orders
		SET is_delivered = true, delivered_at = $2, updated_at = $2
		WHERE id = $1 AND is_shipped = true AND is_delivered = false
	`

	cmdTag, err := r.db.Exec(ctx, query, id, deliveredAt)
	if err != nil {
		return fmt.Errorf("repository: failed to mark order %s delivered: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		fl, flErr := r.getFlags(ctx, r.db, id)
		if flErr != nil {
			return flErr
		}
		if !fl.isShipped {
			return ErrNotYetShipped
		}
		return ErrAlreadyDelivered
	}

	return nil
}

// Cancel flips the cancelled flag and restores every line item's stock in
// one transaction. The guarded update fires at most once per order, so
// stock is restored exactly once; a restore failure aborts the whole
// cancellation rather than leaving stock partially restored.
func (r *postgresRepository) Cancel(ctx context.Context, o *Order, cancelledAt time.Time) (err error) {
	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback cancel transaction")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	query := `
		UPDATE orders
		SET is_cancelled = true, cancelled_at = $2, updated_at = $2
		WHERE id = $1 AND is_cancelled = false AND is_shipped = false AND is_delivered = false
	`

	cmdTag, execErr := tx.Exec(ctx, query, o.ID, cancelledAt)
	if execErr != nil {
		err = fmt.Errorf("repository: failed to mark order %s cancelled: %w", o.ID, execErr)
		return err
	}

	if cmdTag.RowsAffected() == 0 {
		fl, flErr := r.getFlags(ctx, tx, o.ID)
		if flErr != nil {
			err = flErr
			return err
		}
		switch {
		case fl.isCancelled:
			err = ErrAlreadyCancelled
		case fl.isShipped || fl.isDelivered:
			err = ErrShippedOrDelivered
		default:
			err = fmt.Errorf("repository: order %s cancel guard failed unexpectedly", o.ID)
		}
		return err
	}

	products := product.NewRepository(tx)
	for _, item := range o.Items {
		if incErr := products.IncrementStock(ctx, item.ProductID, item.Quantity); incErr != nil {
			err = fmt.Errorf("repository: failed to restore stock for product %s: %w", item.ProductID, incErr)
			return err
		}
	}

	return nil
}

func (r *postgresRepository) MarkRefunded(ctx context.Context, id uuid.UUID, amount float64, refundedAt time.Time) error {
	query := `
		UPDATE orders
		SET is_refunded = true, refunded_at = $2, refund_amount = $3, updated_at = $2
		WHERE id = $1 AND is_cancelled = true AND is_paid = true AND is_refunded = false
	`

	cmdTag, err := r.db.Exec(ctx, query, id, refundedAt, amount)
	if err != nil {
		return fmt.Errorf("repository: failed to mark order %s refunded: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		fl, flErr := r.getFlags(ctx, r.db, id)
		if flErr != nil {
			return flErr
		}
		switch {
		case fl.isRefunded:
			return ErrAlreadyRefunded
		case !fl.isCancelled:
			return ErrNotCancelled
		default:
			return ErrNotPaid
		}
	}

	return nil
}

// Delete removes an unshipped order, restoring its stock effect first
// unless a cancellation already did. The row lock keeps the flag read and
// the restore consistent with concurrent cancels.
func (r *postgresRepository) Delete(ctx context.Context, o *Order) (err error) {
	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback delete transaction")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	var isCancelled, isShipped, isDelivered bool
	lockQuery := `SELECT is_cancelled, is_shipped, is_delivered FROM orders WHERE id = $1 FOR UPDATE`
	if scanErr := tx.QueryRow(ctx, lockQuery, o.ID).Scan(&isCancelled, &isShipped, &isDelivered); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			err = ErrNotFound
			return err
		}
		err = fmt.Errorf("repository: failed to lock order %s for delete: %w", o.ID, scanErr)
		return err
	}

	if isShipped || isDelivered {
		err = ErrShippedOrDelivered
		return err
	}

	if !isCancelled {
		products := product.NewRepository(tx)
		for _, item := range o.Items {
			if incErr := products.IncrementStock(ctx, item.ProductID, item.Quantity); incErr != nil {
				err = fmt.Errorf("repository: failed to restore stock for product %s: %w", item.ProductID, incErr)
				return err
			}
		}
	}

	if _, execErr := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); execErr != nil {
		err = fmt.Errorf("repository: failed to delete order items for %s: %w", o.ID, execErr)
		return err
	}
	if _, execErr := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, o.ID); execErr != nil {
		err = fmt.Errorf("repository: failed to delete order %s: %w", o.ID, execErr)
		return err
	}

	return nil
}

func (r *postgresRepository) HasPurchased(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM orders o
			JOIN order_items oi ON oi.order_id = o.id
			WHERE o.user_id = $1 AND oi.product_id = $2 AND o.is_paid = true
		)
	`

	var purchased bool
	if err := r.db.QueryRow(ctx, query, userID, productID).Scan(&purchased); err != nil {
		return false, fmt.Errorf("repository: failed to check purchase of product %s by user %s: %w", productID, userID, err)
	}

	return purchased, nil
}
