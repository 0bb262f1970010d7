package nuvemshop

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tournevent/shipping/pkg/shipper"
)

// MockAPIClient is a mock implementation of APIClient for testing and for
// running the service without a storefront.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnAddToCart          func(ctx context.Context, sess *Session, variant shipper.Variant) (*AddToCartResponse, error)
	OnGoToCheckout       func(ctx context.Context, sess *Session, products []CartProduct) (string, bool, error)
	OnGetShippingOptions func(ctx context.Context, sess *Session, req *ShippingOptionsRequest) (*ShippingOptionsResponse, error)

	mu    sync.Mutex
	calls []string
	carts map[string]*Cart
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{carts: make(map[string]*Cart)}
}

// Calls returns the names of the calls made so far, in order.
func (m *MockAPIClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockAPIClient) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *MockAPIClient) simulate() error {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return shipper.NewShipperError(carrierName, shipper.CodeTransport, "simulated storefront error")
	}
	return nil
}

// NewSession returns a session with a recording jar and no network client.
func (m *MockAPIClient) NewSession() (*Session, error) {
	m.record("NewSession")
	return newSession(http.DefaultTransport, 0, http.Header{})
}

// AddToCart accumulates the variant into a per-session cart.
func (m *MockAPIClient) AddToCart(ctx context.Context, sess *Session, variant shipper.Variant) (*AddToCartResponse, error) {
	m.record("AddToCart")
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnAddToCart != nil {
		return m.OnAddToCart(ctx, sess, variant)
	}

	m.mu.Lock()
	cart, ok := m.carts[sess.ID]
	if !ok {
		cart = &Cart{ID: Scalar(uuid.New().String()[:8])}
		m.carts[sess.ID] = cart
	}
	cart.Products = append(cart.Products, CartProduct{
		ID:       Scalar(variant.ID),
		Quantity: Scalar(fmt.Sprint(variant.Quantity)),
	})
	snapshot := *cart
	m.mu.Unlock()

	raw, err := json.Marshal(map[string]any{"success": true, "cart": snapshot})
	if err != nil {
		return nil, err
	}
	return &AddToCartResponse{Success: true, Cart: snapshot, Raw: raw}, nil
}

// GoToCheckout issues a mock token for any non-empty cart.
func (m *MockAPIClient) GoToCheckout(ctx context.Context, sess *Session, products []CartProduct) (string, bool, error) {
	m.record("GoToCheckout")
	m.mu.Lock()
	delete(m.carts, sess.ID)
	m.mu.Unlock()
	if err := m.simulate(); err != nil {
		return "", false, err
	}
	if m.OnGoToCheckout != nil {
		return m.OnGoToCheckout(ctx, sess, products)
	}
	if len(products) == 0 {
		return "", false, nil
	}
	return "mock-token-" + sess.ID[:8], true, nil
}

// GetShippingOptions returns two canned options.
func (m *MockAPIClient) GetShippingOptions(ctx context.Context, sess *Session, req *ShippingOptionsRequest) (*ShippingOptionsResponse, error) {
	m.record("GetShippingOptions")
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnGetShippingOptions != nil {
		return m.OnGetShippingOptions(ctx, sess, req)
	}

	options := []shipper.ShippingOption{
		{"id": "correios-pac", "name": "PAC", "price": 21.9, "max_days": 8},
		{"id": "correios-sedex", "name": "SEDEX", "price": 39.5, "max_days": 3},
	}
	raw, err := json.Marshal(map[string]any{"shipping_options": options})
	if err != nil {
		return nil, err
	}
	return &ShippingOptionsResponse{Options: options, Raw: raw}, nil
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
