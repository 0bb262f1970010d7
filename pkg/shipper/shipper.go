// Package shipper provides an abstraction layer for storefronts that can be
// driven into quoting shipping options for a cart.
package shipper

import (
	"context"
)

// Shipper defines the interface that every storefront integration must implement.
type Shipper interface {
	// Name returns the storefront identifier (e.g., "nuvemshop").
	Name() string

	// GetQuote builds a cart for the requested variants and returns the
	// storefront's shipping options for the postal code.
	//
	// Business failures (rejected variants, refused checkout, upstream quote
	// errors) are reported through the returned Result. A non-nil error means
	// a transport failure and no Result is available.
	GetQuote(ctx context.Context, req *QuoteRequest) (*Result, error)
}
