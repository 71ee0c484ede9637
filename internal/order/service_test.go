package order_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/order"
)

var (
	ownerID    = uuid.Must(uuid.FromString("123e4567-e89b-12d3-a456-426614174000"))
	adminID    = uuid.Must(uuid.FromString("223e4567-e89b-12d3-a456-426614174000"))
	strangerID = uuid.Must(uuid.FromString("323e4567-e89b-12d3-a456-426614174000"))
	orderID    = uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))
	productID  = uuid.Must(uuid.FromString("650e8400-e29b-41d4-a716-446655440000"))
)

var (
	owner    = order.Identity{UserID: ownerID}
	admin    = order.Identity{UserID: adminID, IsAdmin: true}
	stranger = order.Identity{UserID: strangerID}
)

type mockRepository struct {
	createFunc        func(ctx context.Context, o *order.Order) error
	getByIDFunc       func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	listByUserFunc    func(ctx context.Context, userID uuid.UUID) ([]order.Order, error)
	listAllFunc       func(ctx context.Context) ([]order.Order, error)
	markPaidFunc      func(ctx context.Context, id uuid.UUID, result order.PaymentResult, paidAt time.Time) error
	markShippedFunc   func(ctx context.Context, id uuid.UUID, shippedAt time.Time) error
	markDeliveredFunc func(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error
	cancelFunc        func(ctx context.Context, o *order.Order, cancelledAt time.Time) error
	markRefundedFunc  func(ctx context.Context, id uuid.UUID, amount float64, refundedAt time.Time) error
	deleteFunc        func(ctx context.Context, o *order.Order) error
	hasPurchasedFunc  func(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

func (m *mockRepository) Create(ctx context.Context, o *order.Order) error {
	if m.createFunc == nil {
		return nil
	}
	return m.createFunc(ctx, o)
}

func (m *mockRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	if m.getByIDFunc == nil {
		return nil, order.ErrNotFound
	}
	return m.getByIDFunc(ctx, id)
}

func (m *mockRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	if m.listByUserFunc == nil {
		return []order.Order{}, nil
	}
	return m.listByUserFunc(ctx, userID)
}

func (m *mockRepository) ListAll(ctx context.Context) ([]order.Order, error) {
	if m.listAllFunc == nil {
		return []order.Order{}, nil
	}
	return m.listAllFunc(ctx)
}

func (m *mockRepository) MarkPaid(ctx context.Context, id uuid.UUID, result order.PaymentResult, paidAt time.Time) error {
	if m.markPaidFunc == nil {
		return nil
	}
	return m.markPaidFunc(ctx, id, result, paidAt)
}

func (m *mockRepository) MarkShipped(ctx context.Context, id uuid.UUID, shippedAt time.Time) error {
	if m.markShippedFunc == nil {
		return nil
	}
	return m.markShippedFunc(ctx, id, shippedAt)
}

func (m *mockRepository) MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	if m.markDeliveredFunc == nil {
		return nil
	}
	return m.markDeliveredFunc(ctx, id, deliveredAt)
}

func (m *mockRepository) Cancel(ctx context.Context, o *order.Order, cancelledAt time.Time) error {
	if m.cancelFunc == nil {
		return nil
	}
	return m.cancelFunc(ctx, o, cancelledAt)
}

func (m *mockRepository) MarkRefunded(ctx context.Context, id uuid.UUID, amount float64, refundedAt time.Time) error {
	if m.markRefundedFunc == nil {
		return nil
	}
	return m.markRefundedFunc(ctx, id, amount, refundedAt)
}

func (m *mockRepository) Delete(ctx context.Context, o *order.Order) error {
	if m.deleteFunc == nil {
		return nil
	}
	return m.deleteFunc(ctx, o)
}

func (m *mockRepository) HasPurchased(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	if m.hasPurchasedFunc == nil {
		return false, nil
	}
	return m.hasPurchasedFunc(ctx, userID, productID)
}

func validAddress() order.ShippingAddress {
	return order.ShippingAddress{
		Address:    "12 Main Street",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "USA",
	}
}

func baseOrder(mutate func(o *order.Order)) *order.Order {
	o := &order.Order{
		ID:              orderID,
		UserID:          ownerID,
		ShippingAddress: validAddress(),
		PaymentMethod:   order.PaymentCreditCard,
		Items: []order.OrderItem{
			{ProductID: productID, Name: "Widget", UnitPrice: 10.00, Quantity: 2},
		},
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	o.RecomputeTotals()
	if mutate != nil {
		mutate(o)
	}
	return o
}

func getOrderFixture(mutate func(o *order.Order)) func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
		if id != orderID {
			return nil, order.ErrNotFound
		}
		return baseOrder(mutate), nil
	}
}

func TestService_CreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name      string
		items     []order.NewOrderItem
		address   order.ShippingAddress
		method    order.PaymentMethod
		wantErrIs error
	}{
		{
			name:      "empty_order",
			items:     nil,
			address:   validAddress(),
			method:    order.PaymentCreditCard,
			wantErrIs: order.ErrEmptyOrder,
		},
		{
			name:      "incomplete_address",
			items:     []order.NewOrderItem{{ProductID: productID, Quantity: 1}},
			address:   order.ShippingAddress{Address: "12 Main Street", City: "Springfield"},
			method:    order.PaymentCreditCard,
			wantErrIs: order.ErrIncompleteAddress,
		},
		{
			name:      "invalid_payment_method",
			items:     []order.NewOrderItem{{ProductID: productID, Quantity: 1}},
			address:   validAddress(),
			method:    order.PaymentMethod("Barter"),
			wantErrIs: order.ErrInvalidPaymentMethod,
		},
		{
			name:      "zero_quantity",
			items:     []order.NewOrderItem{{ProductID: productID, Quantity: 0}},
			address:   validAddress(),
			method:    order.PaymentCreditCard,
			wantErrIs: order.ErrInvalidQuantity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := order.NewService(&mockRepository{
				createFunc: func(ctx context.Context, o *order.Order) error {
					t.Fatal("repository must not be reached on validation failure")
					return nil
				},
			})

			_, err := svc.CreateOrder(context.Background(), ownerID, tt.items, tt.address, tt.method)
			assert.ErrorIs(t, err, tt.wantErrIs)
		})
	}
}

func TestService_CreateOrder_PaymentStatus(t *testing.T) {
	tests := []struct {
		name     string
		method   order.PaymentMethod
		wantPaid bool
	}{
		{name: "credit_card_paid_immediately", method: order.PaymentCreditCard, wantPaid: true},
		{name: "stripe_paid_immediately", method: order.PaymentStripe, wantPaid: true},
		{name: "cash_on_delivery_unpaid", method: order.PaymentCashOnDelivery, wantPaid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := order.NewService(&mockRepository{})

			o, err := svc.CreateOrder(context.Background(), ownerID,
				[]order.NewOrderItem{{ProductID: productID, Quantity: 1}}, validAddress(), tt.method)
			require.NoError(t, err)

			assert.Equal(t, tt.wantPaid, o.IsPaid)
			if tt.wantPaid {
				assert.NotNil(t, o.PaidAt)
			} else {
				assert.Nil(t, o.PaidAt)
			}
		})
	}
}

func TestService_CreateOrder_RepositoryErrors(t *testing.T) {
	tests := []struct {
		name      string
		repoErr   error
		wantErrIs error
	}{
		{
			name:      "insufficient_stock",
			repoErr:   fmt.Errorf("%w: product %s has 5 in stock, 6 requested", order.ErrInsufficientStock, productID),
			wantErrIs: order.ErrInsufficientStock,
		},
		{
			name:      "product_not_found",
			repoErr:   fmt.Errorf("%w: %s", order.ErrProductNotFound, productID),
			wantErrIs: order.ErrProductNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := order.NewService(&mockRepository{
				createFunc: func(ctx context.Context, o *order.Order) error { return tt.repoErr },
			})

			_, err := svc.CreateOrder(context.Background(), ownerID,
				[]order.NewOrderItem{{ProductID: productID, Quantity: 6}}, validAddress(), order.PaymentCreditCard)
			assert.ErrorIs(t, err, tt.wantErrIs)
		})
	}
}

func TestService_GetOrder(t *testing.T) {
	tests := []struct {
		name      string
		id        uuid.UUID
		requester order.Identity
		wantErrIs error
	}{
		{name: "owner_can_view", id: orderID, requester: owner},
		{name: "admin_can_view", id: orderID, requester: admin},
		{name: "stranger_rejected", id: orderID, requester: stranger, wantErrIs: order.ErrUnauthorized},
		{name: "missing_order", id: strangerID, requester: owner, wantErrIs: order.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := order.NewService(&mockRepository{getByIDFunc: getOrderFixture(nil)})

			o, err := svc.GetOrder(context.Background(), tt.id, tt.requester)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, orderID, o.ID)
		})
	}
}

func TestService_ListAllOrders_AdminOnly(t *testing.T) {
	svc := order.NewService(&mockRepository{
		listAllFunc: func(ctx context.Context) ([]order.Order, error) {
			return []order.Order{*baseOrder(nil)}, nil
		},
	})

	_, err := svc.ListAllOrders(context.Background(), owner)
	assert.ErrorIs(t, err, order.ErrUnauthorized)

	orders, err := svc.ListAllOrders(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestService_MarkPaid(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name      string
		requester order.Identity
		mutate    func(o *order.Order)
		wantErrIs error
	}{
		{
			name:      "owner_marks_unpaid_order",
			requester: owner,
			mutate:    func(o *order.Order) { o.PaymentMethod = order.PaymentCashOnDelivery },
		},
		{
			name:      "admin_marks_unpaid_order",
			requester: admin,
			mutate:    func(o *order.Order) { o.PaymentMethod = order.PaymentCashOnDelivery },
		},
		{
			name:      "stranger_rejected",
			requester: stranger,
			mutate:    func(o *order.Order) { o.PaymentMethod = order.PaymentCashOnDelivery },
			wantErrIs: order.ErrUnauthorized,
		},
		{
			name:      "already_paid_is_strict_error",
			requester: owner,
			mutate:    func(o *order.Order) { o.IsPaid = true; o.PaidAt = &now },
			wantErrIs: order.ErrAlreadyPaid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := order.NewService(&mockRepository{getByIDFunc: getOrderFixture(tt.mutate)})

			o, err := svc.MarkPaid(context.Background(), orderID, tt.requester, order.PaymentDetails{})
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.True(t, o.IsPaid)
			require.NotNil(t, o.PaymentResult)
			assert.Equal(t, "COMPLETED", o.PaymentResult.Status)
			assert.NotEmpty(t, o.PaymentResult.TransactionID)
			assert.NotNil(t, o.PaidAt)
		})
	}
}

func TestService_MarkShipped(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name      string
		requester order.Identity
		mutate    func(o *order.Order)
		wantErrIs error
	}{
		{name: "admin_ships", requester: admin},
		{name: "owner_rejected", requester: owner, wantErrIs: order.ErrUnauthorized},
		{
			name:      "cancelled_order_rejected",
			requester: admin,
			mutate:    func(o *order.Order) { o.IsCancelled = true; o.CancelledAt = &now },
			wantErrIs: order.ErrOrderCancelled,
		},
		{
			name:      "already_shipped_is_strict_error",
			requester: admin,
			mutate:    func(o *order.Order) { o.IsShipped = true; o.ShippedAt = &now },
			wantErrIs: order.ErrAlreadyShipped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := order.NewService(&mockRepository{getByIDFunc: getOrderFixture(tt.mutate)})

			o, err := svc.MarkShipped(context.Background(), orderID, tt.requester)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.True(t, o.IsShipped)
			assert.NotNil(t, o.ShippedAt)
		})
	}
}

func TestService_MarkDelivered(t *testing.T) {
	now := time.Now().UTC()
	shipped := func(o *order.Order) { o.IsShipped = true; o.ShippedAt = &now }

	tests := []struct {
		name      string
		requester order.Identity
		mutate    func(o *order.Order)
		wantErrIs error
	}{
		{name: "owner_confirms_receipt", requester: owner, mutate: shipped},
		{name: "admin_cannot_confirm_for_owner", requester: admin, mutate: shipped, wantErrIs: order.ErrUnauthorized},
		{name: "not_yet_shipped", requester: owner, wantErrIs: order.ErrNotYetShipped},
		{
			name:      "already_delivered",
			requester: owner,
			mutate: func(o *order.Order) {
				shipped(o)
				o.IsDelivered = true
				o.DeliveredAt = &now
			},
			wantErrIs: order.ErrAlreadyDelivered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := order.NewService(&mockRepository{getByIDFunc: getOrderFixture(tt.mutate)})

			o, err := svc.MarkDelivered(context.Background(), orderID, tt.requester)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.True(t, o.IsDelivered)
			assert.NotNil(t, o.DeliveredAt)
		})
	}
}

func TestService_Cancel(t *testing.T) {
	now := time.Now().UTC()
	recentPayment := now.Add(-time.Hour)
	stalePayment := now.Add(-25 * time.Hour)

	tests := []struct {
		name      string
		requester order.Identity
		mutate    func(o *order.Order)
		wantErrIs error
	}{
		{name: "owner_cancels_unpaid", requester: owner, mutate: func(o *order.Order) { o.PaymentMethod = order.PaymentCashOnDelivery }},
		{
			name:      "owner_cancels_paid_within_window",
			requester: owner,
			mutate:    func(o *order.Order) { o.IsPaid = true; o.PaidAt = &recentPayment },
		},
		{
			name:      "owner_cancel_window_expired",
			requester: owner,
			mutate:    func(o *order.Order) { o.IsPaid = true; o.PaidAt = &stalePayment },
			wantErrIs: order.ErrCancelWindowExpired,
		},
		{
			name:      "admin_cancels_past_window",
			requester: admin,
			mutate:    func(o *order.Order) { o.IsPaid = true; o.PaidAt = &stalePayment },
		},
		{
			name:      "stranger_rejected",
			requester: stranger,
			wantErrIs: order.ErrUnauthorized,
		},
		{
			name:      "already_cancelled",
			requester: owner,
			mutate:    func(o *order.Order) { o.IsCancelled = true; o.CancelledAt = &now },
			wantErrIs: order.ErrAlreadyCancelled,
		},
		{
			name:      "shipped_order_rejected",
			requester: owner,
			mutate:    func(o *order.Order) { o.IsShipped = true; o.ShippedAt = &now },
			wantErrIs: order.ErrShippedOrDelivered,
		},
		{
			name:      "delivered_order_rejected",
			requester: admin,
			mutate: func(o *order.Order) {
				o.IsShipped = true
				o.ShippedAt = &now
				o.IsDelivered = true
				o.DeliveredAt = &now
			},
			wantErrIs: order.ErrShippedOrDelivered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cancelCalls := 0
			svc := order.NewService(&mockRepository{
				getByIDFunc: getOrderFixture(tt.mutate),
				cancelFunc: func(ctx context.Context, o *order.Order, cancelledAt time.Time) error {
					cancelCalls++
					return nil
				},
			})

			o, err := svc.Cancel(context.Background(), orderID, tt.requester)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				assert.Zero(t, cancelCalls, "stock must not be touched on a rejected cancel")
				return
			}
			require.NoError(t, err)
			assert.True(t, o.IsCancelled)
			assert.NotNil(t, o.CancelledAt)
			assert.Equal(t, 1, cancelCalls)
		})
	}
}

func TestService_Refund(t *testing.T) {
	now := time.Now().UTC()
	cancelledPaid := func(o *order.Order) {
		o.IsPaid = true
		o.PaidAt = &now
		o.IsCancelled = true
		o.CancelledAt = &now
	}

	tests := []struct {
		name      string
		requester order.Identity
		mutate    func(o *order.Order)
		wantErrIs error
	}{
		{name: "admin_refunds_cancelled_paid_order", requester: admin, mutate: cancelledPaid},
		{name: "owner_rejected", requester: owner, mutate: cancelledPaid, wantErrIs: order.ErrUnauthorized},
		{
			name:      "not_cancelled",
			requester: admin,
			mutate:    func(o *order.Order) { o.IsPaid = true; o.PaidAt = &now },
			wantErrIs: order.ErrNotCancelled,
		},
		{
			name:      "not_paid",
			requester: admin,
			mutate: func(o *order.Order) {
				o.PaymentMethod = order.PaymentCashOnDelivery
				o.IsCancelled = true
				o.CancelledAt = &now
			},
			wantErrIs: order.ErrNotPaid,
		},
		{
			name:      "already_refunded",
			requester: admin,
			mutate: func(o *order.Order) {
				cancelledPaid(o)
				o.IsRefunded = true
				o.RefundedAt = &now
			},
			wantErrIs: order.ErrAlreadyRefunded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var refundedAmount float64
			svc := order.NewService(&mockRepository{
				getByIDFunc: getOrderFixture(tt.mutate),
				markRefundedFunc: func(ctx context.Context, id uuid.UUID, amount float64, refundedAt time.Time) error {
					refundedAmount = amount
					return nil
				},
			})

			o, err := svc.Refund(context.Background(), orderID, tt.requester)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.True(t, o.IsRefunded)
			assert.Equal(t, o.TotalPrice, o.RefundAmount)
			assert.Equal(t, o.TotalPrice, refundedAmount)
		})
	}
}

func TestService_DeleteOrder(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name      string
		requester order.Identity
		mutate    func(o *order.Order)
		wantErrIs error
	}{
		{name: "admin_deletes", requester: admin},
		{name: "owner_rejected", requester: owner, wantErrIs: order.ErrUnauthorized},
		{
			name:      "shipped_order_rejected",
			requester: admin,
			mutate:    func(o *order.Order) { o.IsShipped = true; o.ShippedAt = &now },
			wantErrIs: order.ErrShippedOrDelivered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := order.NewService(&mockRepository{getByIDFunc: getOrderFixture(tt.mutate)})

			err := svc.DeleteOrder(context.Background(), orderID, tt.requester)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestService_HasPurchased(t *testing.T) {
	svc := order.NewService(&mockRepository{
		hasPurchasedFunc: func(ctx context.Context, userID, pID uuid.UUID) (bool, error) {
			return userID == ownerID && pID == productID, nil
		},
	})

	purchased, err := svc.HasPurchased(context.Background(), ownerID, productID)
	require.NoError(t, err)
	assert.True(t, purchased)

	purchased, err = svc.HasPurchased(context.Background(), strangerID, productID)
	require.NoError(t, err)
	assert.False(t, purchased)
}

func TestService_TransitionRace_SurfacesRepositoryError(t *testing.T) {
	// The service pre-checks preconditions, but a concurrent request can win
	// the guarded update in between. The repository's error must come
	// through untouched.
	svc := order.NewService(&mockRepository{
		getByIDFunc: getOrderFixture(func(o *order.Order) { o.PaymentMethod = order.PaymentCashOnDelivery }),
		markPaidFunc: func(ctx context.Context, id uuid.UUID, result order.PaymentResult, paidAt time.Time) error {
			return order.ErrAlreadyPaid
		},
	})

	_, err := svc.MarkPaid(context.Background(), orderID, owner, order.PaymentDetails{})
	assert.ErrorIs(t, err, order.ErrAlreadyPaid)
	assert.True(t, errors.Is(err, order.ErrAlreadyPaid))
}
