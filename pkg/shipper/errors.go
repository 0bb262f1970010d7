package shipper

import (
	"errors"
	"fmt"
)

// ShipperError represents a transport-level failure talking to a storefront.
type ShipperError struct {
	Carrier    string
	Code       string
	Message    string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *ShipperError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Carrier, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Carrier, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ShipperError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for ShipperError.
func (e *ShipperError) Is(target error) bool {
	t, ok := target.(*ShipperError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewShipperError creates a new ShipperError.
func NewShipperError(carrier, code, message string) *ShipperError {
	return &ShipperError{
		Carrier: carrier,
		Code:    code,
		Message: message,
	}
}

// WithCause adds a cause to the error.
func (e *ShipperError) WithCause(err error) *ShipperError {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *ShipperError) WithStatusCode(code int) *ShipperError {
	e.StatusCode = code
	return e
}

// Error codes used by storefront integrations.
const (
	CodeTransport     = "TRANSPORT"
	CodeMalformedJSON = "MALFORMED_JSON"
)

// Sentinel errors for common storefront scenarios.
var (
	// ErrNoVariants indicates a quote request without any variant.
	ErrNoVariants = errors.New("no variants requested")

	// ErrInvalidQuantity indicates a variant with a non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrMissingZipcode indicates a quote request without a postal code.
	ErrMissingZipcode = errors.New("zipcode is required")
)

// Validate checks the invariants of a quote request.
func (r *QuoteRequest) Validate() error {
	if r.Zipcode == "" {
		return ErrMissingZipcode
	}
	if len(r.Variants) == 0 {
		return ErrNoVariants
	}
	for _, v := range r.Variants {
		if v.Quantity <= 0 {
			return fmt.Errorf("variant %s: %w", v.ID, ErrInvalidQuantity)
		}
	}
	return nil
}
