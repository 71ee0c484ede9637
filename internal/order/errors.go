package order

import "errors"

// Lifecycle errors. Every rejected transition surfaces one of these so the
// caller can name the concrete precondition that failed.
var (
	ErrNotFound     = errors.New("order not found")
	ErrUnauthorized = errors.New("not authorized to act on this order")

	ErrEmptyOrder           = errors.New("order must contain at least one item")
	ErrInvalidQuantity      = errors.New("order item quantity must be at least 1")
	ErrIncompleteAddress    = errors.New("shipping address is incomplete")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrProductNotFound      = errors.New("product not found")
	ErrInsufficientStock    = errors.New("insufficient stock")

	ErrAlreadyPaid      = errors.New("order is already paid")
	ErrAlreadyShipped   = errors.New("order is already shipped")
	ErrAlreadyDelivered = errors.New("order is already delivered")
	ErrAlreadyCancelled = errors.New("order is already cancelled")
	ErrAlreadyRefunded  = errors.New("order is already refunded")

	ErrNotYetShipped      = errors.New("order has not been shipped yet")
	ErrOrderCancelled     = errors.New("order is cancelled")
	ErrShippedOrDelivered = errors.New("shipped or delivered orders cannot be changed")

	ErrCancelWindowExpired = errors.New("paid orders can only be cancelled within 24 hours")
	ErrNotCancelled        = errors.New("order is not cancelled")
	ErrNotPaid             = errors.New("order is not paid")
)
