package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// cancelWindow is how long after payment a non-admin owner may still
// cancel a paid order.
const cancelWindow = 24 * time.Hour

// NewOrderItem is the caller's view of a line at creation time: which
// product and how many. Name, image and price are snapshotted server-side.
type NewOrderItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// PaymentDetails is what the payment gateway reported to the caller.
// Missing fields are filled with sane defaults when the order is marked
// paid; the transaction id is always generated here.
type PaymentDetails struct {
	Status     string
	UpdateTime string
	PayerEmail string
}

// Service is the order lifecycle manager. It owns the order state machine
// and the compensating stock adjustments; callers supply the requester's
// identity claims, already verified upstream.
type Service interface {
	CreateOrder(ctx context.Context, ownerID uuid.UUID, items []NewOrderItem, address ShippingAddress, method PaymentMethod) (*Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, requester Identity) (*Order, error)
	ListOwnOrders(ctx context.Context, ownerID uuid.UUID) ([]Order, error)
	ListAllOrders(ctx context.Context, requester Identity) ([]Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, requester Identity, details PaymentDetails) (*Order, error)
	MarkShipped(ctx context.Context, orderID uuid.UUID, requester Identity) (*Order, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID, requester Identity) (*Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, requester Identity) (*Order, error)
	Refund(ctx context.Context, orderID uuid.UUID, requester Identity) (*Order, error)
	DeleteOrder(ctx context.Context, orderID uuid.UUID, requester Identity) error
	HasPurchased(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) CreateOrder(ctx context.Context, ownerID uuid.UUID, items []NewOrderItem, address ShippingAddress, method PaymentMethod) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	if !address.Complete() {
		return nil, ErrIncompleteAddress
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, method)
	}

	o := &Order{
		UserID:          ownerID,
		ShippingAddress: address,
		PaymentMethod:   method,
		Items:           make([]OrderItem, 0, len(items)),
	}

	for _, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: product %s, got %d", ErrInvalidQuantity, item.ProductID, item.Quantity)
		}
		o.Items = append(o.Items, OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	// Anything other than cash on delivery was charged before the order
	// reached us, so it starts out paid.
	if method != PaymentCashOnDelivery {
		now := time.Now().UTC()
		o.IsPaid = true
		o.PaidAt = &now
	}

	if err := s.repo.Create(ctx, o); err != nil {
		if errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrInsufficientStock) {
			log.Warn().Err(err).Stringer("user_id", ownerID).Msg("service: order creation rejected")
			return nil, err
		}
		log.Error().Err(err).Stringer("user_id", ownerID).Msg("service: failed to create order")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().Stringer("order_id", o.ID).Stringer("user_id", ownerID).Float64("total", o.TotalPrice).Msg("service: order created")

	return o, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, requester Identity) (*Order, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !requester.IsAdmin && o.UserID != requester.UserID {
		return nil, ErrUnauthorized
	}

	return o, nil
}

func (s *service) ListOwnOrders(ctx context.Context, ownerID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.ListByUser(ctx, ownerID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", ownerID).Msg("service: failed to list user orders")
		return nil, fmt.Errorf("service: failed to list user orders: %w", err)
	}

	return orders, nil
}

func (s *service) ListAllOrders(ctx context.Context, requester Identity) ([]Order, error) {
	if !requester.IsAdmin {
		return nil, ErrUnauthorized
	}

	orders, err := s.repo.ListAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list all orders")
		return nil, fmt.Errorf("service: failed to list all orders: %w", err)
	}

	return orders, nil
}

func (s *service) MarkPaid(ctx context.Context, orderID uuid.UUID, requester Identity, details PaymentDetails) (*Order, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !requester.IsAdmin && o.UserID != requester.UserID {
		return nil, ErrUnauthorized
	}
	if o.IsPaid {
		return nil, ErrAlreadyPaid
	}

	now := time.Now().UTC()

	txnID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate transaction id: %w", err)
	}

	result := PaymentResult{
		TransactionID: txnID.String(),
		Status:        details.Status,
		UpdateTime:    details.UpdateTime,
		PayerEmail:    details.PayerEmail,
	}
	if result.Status == "" {
		result.Status = "COMPLETED"
	}
	if result.UpdateTime == "" {
		result.UpdateTime = now.Format(time.RFC3339)
	}

	if err := s.repo.MarkPaid(ctx, orderID, result, now); err != nil {
		return nil, s.transitionError(err, orderID, "mark paid")
	}

	o.IsPaid = true
	o.PaidAt = &now
	o.PaymentResult = &result
	o.UpdatedAt = now

	log.Info().Stringer("order_id", orderID).Str("transaction_id", result.TransactionID).Msg("service: order marked paid")

	return o, nil
}

func (s *service) MarkShipped(ctx context.Context, orderID uuid.UUID, requester Identity) (*Order, error) {
	if !requester.IsAdmin {
		return nil, ErrUnauthorized
	}

	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.IsCancelled {
		return nil, ErrOrderCancelled
	}
	if o.IsShipped {
		return nil, ErrAlreadyShipped
	}

	now := time.Now().UTC()
	if err := s.repo.MarkShipped(ctx, orderID, now); err != nil {
		return nil, s.transitionError(err, orderID, "mark shipped")
	}

	o.IsShipped = true
	o.ShippedAt = &now
	o.UpdatedAt = now

	log.Info().Stringer("order_id", orderID).Msg("service: order marked shipped")

	return o, nil
}

// MarkDelivered is the customer's confirmation of receipt, so only the
// order's owner may call it.
func (s *service) MarkDelivered(ctx context.Context, orderID uuid.UUID, requester Identity) (*Order, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.UserID != requester.UserID {
		return nil, ErrUnauthorized
	}
	if !o.IsShipped {
		return nil, ErrNotYetShipped
	}
	if o.IsDelivered {
		return nil, ErrAlreadyDelivered
	}

	now := time.Now().UTC()
	if err := s.repo.MarkDelivered(ctx, orderID, now); err != nil {
		return nil, s.transitionError(err, orderID, "mark delivered")
	}

	o.IsDelivered = true
	o.DeliveredAt = &now
	o.UpdatedAt = now

	log.Info().Stringer("order_id", orderID).Msg("service: order marked delivered")

	return o, nil
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, requester Identity) (*Order, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !requester.IsAdmin && o.UserID != requester.UserID {
		return nil, ErrUnauthorized
	}
	if o.IsCancelled {
		return nil, ErrAlreadyCancelled
	}
	if o.IsShipped || o.IsDelivered {
		return nil, ErrShippedOrDelivered
	}
	if o.IsPaid && !requester.IsAdmin {
		if o.PaidAt == nil || time.Since(*o.PaidAt) > cancelWindow {
			return nil, ErrCancelWindowExpired
		}
	}

	now := time.Now().UTC()
	if err := s.repo.Cancel(ctx, o, now); err != nil {
		return nil, s.transitionError(err, orderID, "cancel")
	}

	o.IsCancelled = true
	o.CancelledAt = &now
	o.UpdatedAt = now

	log.Info().Stringer("order_id", orderID).Int("items", len(o.Items)).Msg("service: order cancelled, stock restored")

	return o, nil
}

func (s *service) Refund(ctx context.Context, orderID uuid.UUID, requester Identity) (*Order, error) {
	if !requester.IsAdmin {
		return nil, ErrUnauthorized
	}

	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !o.IsCancelled {
		return nil, ErrNotCancelled
	}
	if !o.IsPaid {
		return nil, ErrNotPaid
	}
	if o.IsRefunded {
		return nil, ErrAlreadyRefunded
	}

	now := time.Now().UTC()
	if err := s.repo.MarkRefunded(ctx, orderID, o.TotalPrice, now); err != nil {
		return nil, s.transitionError(err, orderID, "refund")
	}

	o.IsRefunded = true
	o.RefundedAt = &now
	o.RefundAmount = o.TotalPrice
	o.UpdatedAt = now

	log.Info().Stringer("order_id", orderID).Float64("amount", o.RefundAmount).Msg("service: order refunded")

	return o, nil
}

func (s *service) DeleteOrder(ctx context.Context, orderID uuid.UUID, requester Identity) error {
	if !requester.IsAdmin {
		return ErrUnauthorized
	}

	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if o.IsShipped || o.IsDelivered {
		return ErrShippedOrDelivered
	}

	if err := s.repo.Delete(ctx, o); err != nil {
		return s.transitionError(err, orderID, "delete")
	}

	log.Info().Stringer("order_id", orderID).Msg("service: order deleted")

	return nil
}

func (s *service) HasPurchased(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	purchased, err := s.repo.HasPurchased(ctx, userID, productID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Stringer("product_id", productID).Msg("service: failed to check purchase")
		return false, fmt.Errorf("service: failed to check purchase: %w", err)
	}

	return purchased, nil
}

func (s *service) getOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch order")
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}

	return o, nil
}

// transitionError passes lifecycle errors through untouched; anything else
// is a repository failure worth logging and wrapping. Lifecycle errors can
// still surface here when a concurrent request won the guarded update
// between our precondition check and the write.
func (s *service) transitionError(err error, orderID uuid.UUID, op string) error {
	for _, sentinel := range []error{
		ErrNotFound, ErrAlreadyPaid, ErrAlreadyShipped, ErrAlreadyDelivered,
		ErrAlreadyCancelled, ErrAlreadyRefunded, ErrNotYetShipped,
		ErrOrderCancelled, ErrShippedOrDelivered, ErrNotCancelled, ErrNotPaid,
	} {
		if errors.Is(err, sentinel) {
			log.Warn().Err(err).Stringer("order_id", orderID).Str("op", op).Msg("service: transition rejected")
			return err
		}
	}

	log.Error().Err(err).Stringer("order_id", orderID).Str("op", op).Msg("service: transition failed")
	return fmt.Errorf("service: failed to %s order: %w", op, err)
}
