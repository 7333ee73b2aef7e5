package services

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("invalid checkout request")
	ErrPaymentUnavailable   = errors.New("card payments are not configured")
	ErrPaymentSessionFailed = errors.New("failed to start payment session")
	ErrOrderCreateFailed    = errors.New("failed to create order")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderNotConfirmed    = errors.New("order is not confirmed for fulfillment")
	ErrCarrierNotConfigured = errors.New("carrier credentials are not configured")
	ErrFulfillmentBusy      = errors.New("order is already being handed to the carrier")
	ErrInvalidStatus        = errors.New("status cannot be set by an operator")
	ErrStatusConflict       = errors.New("order status does not allow this change")
)

// ValidationError names the offending request field. It matches ErrValidation
// with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
