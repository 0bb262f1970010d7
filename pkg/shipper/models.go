package shipper

import (
	"encoding/json"
	"fmt"
	"math"
)

// Messages reported to callers in failure envelopes. They are user-facing
// strings and double as stable business-error identifiers.
const (
	MessageCartFailed     = "Falhou ao adicionar produtos ao carrinho"
	MessageCheckoutFailed = "Falhou em calcular o frete"
	MessageQuoteFailed    = "Falhou em calcular frete"
)

// MissingKeyPolicy controls how projection treats keys a shipping option lacks.
type MissingKeyPolicy string

const (
	// MissingAsNull keeps the key with a JSON null value.
	MissingAsNull MissingKeyPolicy = "null"
	// MissingOmit drops the key from the projected option.
	MissingOmit MissingKeyPolicy = "omit"
)

// Variant is one line item requested by the caller.
type Variant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// UnmarshalJSON accepts quantities written as integral floats, such as 2.0.
func (v *Variant) UnmarshalJSON(b []byte) error {
	type plain Variant
	var raw struct {
		plain
		Quantity json.Number `json:"quantity"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*v = Variant(raw.plain)

	if raw.Quantity == "" {
		return nil
	}
	if n, err := raw.Quantity.Int64(); err == nil {
		v.Quantity = int(n)
		return nil
	}
	f, err := raw.Quantity.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return fmt.Errorf("variant %s: quantity %s is not an integer", v.ID, raw.Quantity)
	}
	v.Quantity = int(f)
	return nil
}

// QuoteRequest is the full caller input for one quote.
type QuoteRequest struct {
	Zipcode  string    `json:"zipcode"`
	Variants []Variant `json:"variants"`

	// Fields, when non-empty, projects every shipping option down to these keys.
	Fields []string `json:"fields,omitempty"`
}

// ShippingOption is one storefront-defined shipping method.
type ShippingOption map[string]any

// CartFailure records a variant the storefront refused to add to the cart.
type CartFailure struct {
	Response  json.RawMessage `json:"response"`
	VariantID string          `json:"variant_id"`
	ProductID string          `json:"product_id"`
}

// Result is the envelope returned for both success and handled failures.
type Result struct {
	Error           bool
	Message         string
	Data            any
	ShippingOptions []ShippingOption
}

// MarshalJSON renders the envelope. Successful results always carry
// shipping_options; failures never do.
func (r Result) MarshalJSON() ([]byte, error) {
	if !r.Error {
		options := r.ShippingOptions
		if options == nil {
			options = []ShippingOption{}
		}
		return json.Marshal(struct {
			Error           bool             `json:"error"`
			ShippingOptions []ShippingOption `json:"shipping_options"`
		}{false, options})
	}

	return json.Marshal(struct {
		Error   bool   `json:"error"`
		Message string `json:"message,omitempty"`
		Data    any    `json:"data,omitempty"`
	}{true, r.Message, r.Data})
}

// Success returns a successful envelope.
func Success(options []ShippingOption) *Result {
	return &Result{ShippingOptions: options}
}

// CartFailed returns the envelope for rejected variants.
func CartFailed(failures []CartFailure) *Result {
	return &Result{Error: true, Message: MessageCartFailed, Data: failures}
}

// CheckoutFailed returns the envelope for a storefront that issued no access token.
func CheckoutFailed() *Result {
	return &Result{Error: true, Message: MessageCheckoutFailed}
}

// QuoteFailed returns the envelope for an upstream quote error, carrying the raw response.
func QuoteFailed(raw json.RawMessage) *Result {
	return &Result{Error: true, Message: MessageQuoteFailed, Data: raw}
}

// Project reduces every option to keys, preserving option order.
// An empty key list returns the options unchanged.
func Project(options []ShippingOption, keys []string, policy MissingKeyPolicy) []ShippingOption {
	if len(keys) == 0 {
		return options
	}

	result := make([]ShippingOption, 0, len(options))
	for _, option := range options {
		projected := make(ShippingOption, len(keys))
		for _, key := range keys {
			value, ok := option[key]
			if !ok && policy == MissingOmit {
				continue
			}
			projected[key] = value
		}
		result = append(result, projected)
	}
	return result
}
