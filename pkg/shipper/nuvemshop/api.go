package nuvemshop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/tournevent/shipping/pkg/shipper"
)

// APIClient defines the storefront calls needed to coax a shipping quote out
// of a Nuvemshop store. This abstraction allows for mock implementations
// during testing and real implementations in production.
//
// Every call runs against a Session created by NewSession; cookies set by one
// call are visible to the next.
type APIClient interface {
	// NewSession creates a fresh cookie jar and default headers for one quote.
	NewSession() (*Session, error)

	// AddToCart posts one variant to the cart endpoint.
	AddToCart(ctx context.Context, sess *Session, variant shipper.Variant) (*AddToCartResponse, error)

	// GoToCheckout starts checkout for the cart products and returns the
	// access token the storefront sets as a cookie. ok is false when the
	// storefront issued no token.
	GoToCheckout(ctx context.Context, sess *Session, products []CartProduct) (token string, ok bool, err error)

	// GetShippingOptions queries the checkout microservice for shipping options.
	GetShippingOptions(ctx context.Context, sess *Session, req *ShippingOptionsRequest) (*ShippingOptionsResponse, error)
}

// ============================================================================
// Storefront payloads
// ============================================================================

// Scalar is a storefront value that may arrive as a JSON string or number.
// It keeps the textual form so it can be echoed back in form fields.
type Scalar string

// UnmarshalJSON accepts strings, numbers and null.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", b)
		}
		*s = Scalar(n.String())
		return nil
	}
}

// String returns the textual value.
func (s Scalar) String() string {
	return string(s)
}

// CartProduct is a cart line as reported by the storefront.
type CartProduct struct {
	ID       Scalar `json:"id"`
	Quantity Scalar `json:"quantity"`
}

// Cart is the cart object embedded in add-to-cart responses.
type Cart struct {
	ID       Scalar        `json:"id"`
	Products []CartProduct `json:"products"`
}

// AddToCartResponse is the parsed add-to-cart reply.
type AddToCartResponse struct {
	// Success mirrors the truthiness of the storefront's "success" field.
	Success bool
	Cart    Cart
	Raw     json.RawMessage
}

// ShippingOptionsRequest holds the inputs of a shipping options query.
type ShippingOptionsRequest struct {
	CartID      string
	Zipcode     string
	AccessToken string
}

// ShippingOptionsResponse is the parsed reply of the checkout microservice.
type ShippingOptionsResponse struct {
	// HasErrors is true when the reply carried an "errors" key.
	HasErrors bool
	Options   []shipper.ShippingOption
	Raw       json.RawMessage
}

// parseAddToCart decodes an add-to-cart reply. Absent fields default to zero
// values; a body that is not a JSON object is an error.
func parseAddToCart(r *Response) (*AddToCartResponse, error) {
	var fields map[string]json.RawMessage
	if err := r.JSON(&fields); err != nil {
		return nil, fmt.Errorf("decoding add to cart response: %w", err)
	}

	resp := &AddToCartResponse{Raw: json.RawMessage(r.Body)}

	if raw, ok := fields["success"]; ok {
		var success any
		if err := json.Unmarshal(raw, &success); err != nil {
			return nil, fmt.Errorf("decoding success flag: %w", err)
		}
		resp.Success = truthy(success)
	}

	if raw, ok := fields["cart"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &resp.Cart); err != nil {
			return nil, fmt.Errorf("decoding cart: %w", err)
		}
	}

	return resp, nil
}

// parseShippingOptions decodes a shipping options reply.
func parseShippingOptions(r *Response) (*ShippingOptionsResponse, error) {
	var fields map[string]json.RawMessage
	if err := r.JSON(&fields); err != nil {
		return nil, fmt.Errorf("decoding shipping options response: %w", err)
	}

	resp := &ShippingOptionsResponse{Raw: json.RawMessage(r.Body)}

	if _, ok := fields["errors"]; ok {
		resp.HasErrors = true
		return resp, nil
	}

	resp.Options = []shipper.ShippingOption{}
	if raw, ok := fields["shipping_options"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &resp.Options); err != nil {
			return nil, fmt.Errorf("decoding shipping options: %w", err)
		}
	}

	return resp, nil
}

// truthy follows the usual dynamic-language notion of truth for decoded JSON.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
