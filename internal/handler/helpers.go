package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"storefront/internal/order"
)

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[fieldErr.Field()] = fmt.Sprintf("failed on the '%s' rule", fieldErr.Tag())
	}
	return details
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrIncompleteAddress),
		errors.Is(err, order.ErrInvalidPaymentMethod),
		errors.Is(err, order.ErrCancelWindowExpired):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrInsufficientStock),
		errors.Is(err, order.ErrAlreadyPaid),
		errors.Is(err, order.ErrAlreadyShipped),
		errors.Is(err, order.ErrAlreadyDelivered),
		errors.Is(err, order.ErrAlreadyCancelled),
		errors.Is(err, order.ErrAlreadyRefunded),
		errors.Is(err, order.ErrNotYetShipped),
		errors.Is(err, order.ErrOrderCancelled),
		errors.Is(err, order.ErrShippedOrDelivered),
		errors.Is(err, order.ErrNotCancelled),
		errors.Is(err, order.ErrNotPaid):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage strips internal wrapping so the client sees the violated
// precondition, not the repository chain.
func clientMessage(err error) string {
	for _, sentinel := range []error{
		order.ErrNotFound, order.ErrUnauthorized, order.ErrEmptyOrder,
		order.ErrInvalidQuantity, order.ErrIncompleteAddress,
		order.ErrInvalidPaymentMethod, order.ErrProductNotFound,
		order.ErrInsufficientStock, order.ErrAlreadyPaid,
		order.ErrAlreadyShipped, order.ErrAlreadyDelivered,
		order.ErrAlreadyCancelled, order.ErrAlreadyRefunded,
		order.ErrNotYetShipped, order.ErrOrderCancelled,
		order.ErrShippedOrDelivered, order.ErrCancelWindowExpired,
		order.ErrNotCancelled, order.ErrNotPaid,
	} {
		if errors.Is(err, sentinel) {
			return err.Error()
		}
	}
	return "internal server error"
}
