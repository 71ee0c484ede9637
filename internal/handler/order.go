package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"storefront/internal/middleware"
	"storefront/internal/order"
)

type OrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type ShippingAddressRequest struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// CreateOrderRequest deliberately has no money fields: totals are always
// recomputed server-side from the product catalog.
type CreateOrderRequest struct {
	OrderItems      []OrderItemRequest     `json:"order_items" validate:"required,min=1,dive"`
	ShippingAddress ShippingAddressRequest `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method" validate:"required,oneof='Credit Card' 'PayPal' 'Stripe' 'Cash on Delivery'"`
}

type PayOrderRequest struct {
	Status     string `json:"status"`
	UpdateTime string `json:"update_time"`
	PayerEmail string `json:"payer_email" validate:"omitempty,email"`
}

type OrderHandler struct {
	svc      order.Service
	validate *validator.Validate
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders", h.handleListAllOrders)
	router.Get("/orders/myorders", h.handleListMyOrders)
	router.Get("/orders/check-purchase/{productId}", h.handleCheckPurchase)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Put("/orders/{id}/pay", h.handleMarkPaid)
	router.Put("/orders/{id}/ship", h.handleMarkShipped)
	router.Put("/orders/{id}/receive", h.handleMarkDelivered)
	router.Put("/orders/{id}/cancel", h.handleCancel)
	router.Put("/orders/{id}/refund", h.handleRefund)
	router.Delete("/orders/{id}", h.handleDelete)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var requestPayload CreateOrderRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode create order request")
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if ok {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
		} else {
			log.Error().Err(err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "internal validation error")
		}
		return
	}

	items := make([]order.NewOrderItem, 0, len(requestPayload.OrderItems))
	for _, item := range requestPayload.OrderItems {
		productID, err := uuid.FromString(item.ProductID)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid product id")
			return
		}
		items = append(items, order.NewOrderItem{ProductID: productID, Quantity: item.Quantity})
	}

	address := order.ShippingAddress{
		Address:    requestPayload.ShippingAddress.Address,
		City:       requestPayload.ShippingAddress.City,
		PostalCode: requestPayload.ShippingAddress.PostalCode,
		Country:    requestPayload.ShippingAddress.Country,
	}

	created, err := h.svc.CreateOrder(r.Context(), ident.UserID, items, address, order.PaymentMethod(requestPayload.PaymentMethod))
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleListMyOrders(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	orders, err := h.svc.ListOwnOrders(r.Context(), ident.UserID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleListAllOrders(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	orders, err := h.svc.ListAllOrders(r.Context(), ident)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, func(orderID uuid.UUID, ident order.Identity) (any, int, error) {
		o, err := h.svc.GetOrder(r.Context(), orderID, ident)
		return o, http.StatusOK, err
	})
}

func (h *OrderHandler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	var requestPayload PayOrderRequest
	if r.ContentLength > 0 {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&requestPayload); err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		if err := h.validate.Struct(requestPayload); err != nil {
			if validationErrors, ok := err.(validator.ValidationErrors); ok {
				respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
					Error:   "Validation failed",
					Details: formatValidationErrors(validationErrors),
				})
				return
			}
			respondWithError(w, http.StatusInternalServerError, "internal validation error")
			return
		}
	}

	h.withOrder(w, r, func(orderID uuid.UUID, ident order.Identity) (any, int, error) {
		o, err := h.svc.MarkPaid(r.Context(), orderID, ident, order.PaymentDetails{
			Status:     requestPayload.Status,
			UpdateTime: requestPayload.UpdateTime,
			PayerEmail: requestPayload.PayerEmail,
		})
		return o, http.StatusOK, err
	})
}

func (h *OrderHandler) handleMarkShipped(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, func(orderID uuid.UUID, ident order.Identity) (any, int, error) {
		o, err := h.svc.MarkShipped(r.Context(), orderID, ident)
		return o, http.StatusOK, err
	})
}

func (h *OrderHandler) handleMarkDelivered(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, func(orderID uuid.UUID, ident order.Identity) (any, int, error) {
		o, err := h.svc.MarkDelivered(r.Context(), orderID, ident)
		return o, http.StatusOK, err
	})
}

func (h *OrderHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, func(orderID uuid.UUID, ident order.Identity) (any, int, error) {
		o, err := h.svc.Cancel(r.Context(), orderID, ident)
		return o, http.StatusOK, err
	})
}

func (h *OrderHandler) handleRefund(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, func(orderID uuid.UUID, ident order.Identity) (any, int, error) {
		o, err := h.svc.Refund(r.Context(), orderID, ident)
		return o, http.StatusOK, err
	})
}

func (h *OrderHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, func(orderID uuid.UUID, ident order.Identity) (any, int, error) {
		err := h.svc.DeleteOrder(r.Context(), orderID, ident)
		return map[string]string{"message": "order deleted"}, http.StatusOK, err
	})
}

func (h *OrderHandler) handleCheckPurchase(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	productID, err := uuid.FromString(chi.URLParam(r, "productId"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	purchased, err := h.svc.HasPurchased(r.Context(), ident.UserID, productID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"has_purchased": purchased})
}

// withOrder factors the shared plumbing of the single-order transitions:
// identity, id parsing, error mapping.
func (h *OrderHandler) withOrder(w http.ResponseWriter, r *http.Request, fn func(orderID uuid.UUID, ident order.Identity) (any, int, error)) {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	payload, status, err := fn(orderID, ident)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, status, payload)
}
