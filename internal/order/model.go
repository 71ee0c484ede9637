package order

import (
	"time"

	"github.com/gofrs/uuid"
)

type PaymentMethod string

const (
	PaymentCreditCard     PaymentMethod = "Credit Card"
	PaymentPayPal         PaymentMethod = "PayPal"
	PaymentStripe         PaymentMethod = "Stripe"
	PaymentCashOnDelivery PaymentMethod = "Cash on Delivery"
)

func (pm PaymentMethod) String() string {
	return string(pm)
}

func (pm PaymentMethod) Valid() bool {
	switch pm {
	case PaymentCreditCard, PaymentPayPal, PaymentStripe, PaymentCashOnDelivery:
		return true
	default:
		return false
	}
}

// Identity carries the caller's claims as established by the upstream
// auth collaborator. The service only ever reads these two facts.
type Identity struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// OrderItem is a snapshot of one product line at order-creation time.
// Name, Image and UnitPrice are copied from the live product row when the
// order is created and never re-read, so later catalog edits do not change
// historical orders.
type OrderItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrderID   uuid.UUID `json:"order_id" db:"order_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Name      string    `json:"name" db:"name"`
	Image     string    `json:"image" db:"image"`
	UnitPrice float64   `json:"unit_price" db:"unit_price"`
	Quantity  int       `json:"quantity" db:"quantity"`
}

type ShippingAddress struct {
	Address    string `json:"address" db:"shipping_address"`
	City       string `json:"city" db:"shipping_city"`
	PostalCode string `json:"postal_code" db:"shipping_postal_code"`
	Country    string `json:"country" db:"shipping_country"`
}

func (a ShippingAddress) Complete() bool {
	return a.Address != "" && a.City != "" && a.PostalCode != "" && a.Country != ""
}

// PaymentResult echoes what the payment gateway reported when the order
// was marked paid.
type PaymentResult struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	UpdateTime    string `json:"update_time"`
	PayerEmail    string `json:"payer_email"`
}

type Order struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	UserID          uuid.UUID       `json:"user_id" db:"user_id"`
	Items           []OrderItem     `json:"order_items" db:"-"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method" db:"payment_method"`
	PaymentResult   *PaymentResult  `json:"payment_result,omitempty"`

	ItemsPrice    float64 `json:"items_price" db:"items_price"`
	TaxPrice      float64 `json:"tax_price" db:"tax_price"`
	ShippingPrice float64 `json:"shipping_price" db:"shipping_price"`
	TotalPrice    float64 `json:"total_price" db:"total_price"`
	RefundAmount  float64 `json:"refund_amount,omitempty" db:"refund_amount"`

	IsPaid      bool       `json:"is_paid" db:"is_paid"`
	PaidAt      *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	IsShipped   bool       `json:"is_shipped" db:"is_shipped"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty" db:"shipped_at"`
	IsDelivered bool       `json:"is_delivered" db:"is_delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	IsCancelled bool       `json:"is_cancelled" db:"is_cancelled"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	IsRefunded  bool       `json:"is_refunded" db:"is_refunded"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty" db:"refunded_at"`

	CancellableUntil time.Time `json:"cancellable_until" db:"cancellable_until"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
