package nuvemshop_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipping/pkg/shipper"
	"github.com/tournevent/shipping/pkg/shipper/nuvemshop"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/log/logtest"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func newTestClient(mockClient *nuvemshop.MockAPIClient, cfg nuvemshop.Config) *nuvemshop.Client {
	logger := otelzap.New(zap.NewNop())
	return nuvemshop.NewWithAPIClient(cfg, mockClient, logger, nil)
}

func quoteRequest(variants ...shipper.Variant) *shipper.QuoteRequest {
	if len(variants) == 0 {
		variants = []shipper.Variant{
			{ID: "101", Name: "Vestido Floral - P", ProductID: "11", Quantity: 1},
			{ID: "202", Name: "Blusa Linho - M", ProductID: "22", Quantity: 2},
		}
	}
	return &shipper.QuoteRequest{Zipcode: "70040-010", Variants: variants}
}

func TestClient_GetQuote_Success(t *testing.T) {
	mockAPI := nuvemshop.NewMockAPIClient()
	client := newTestClient(mockAPI, nuvemshop.Config{})

	result, err := client.GetQuote(context.Background(), quoteRequest())

	require.NoError(t, err)
	assert.False(t, result.Error)
	require.Len(t, result.ShippingOptions, 2)
	assert.Equal(t, "correios-pac", result.ShippingOptions[0]["id"])
	assert.Equal(t, "correios-sedex", result.ShippingOptions[1]["id"])
	assert.Equal(t, []string{
		"NewSession", "AddToCart", "AddToCart", "GoToCheckout", "GetShippingOptions",
	}, mockAPI.Calls())
}

func TestClient_GetQuote_UsesLastCartAndToken(t *testing.T) {
	mockAPI := nuvemshop.NewMockAPIClient()

	calls := 0
	mockAPI.OnAddToCart = func(ctx context.Context, sess *nuvemshop.Session, v shipper.Variant) (*nuvemshop.AddToCartResponse, error) {
		calls++
		cart := nuvemshop.Cart{ID: "cart-first"}
		if calls == 2 {
			cart = nuvemshop.Cart{
				ID: "cart-last",
				Products: []nuvemshop.CartProduct{
					{ID: "9001", Quantity: "1"},
					{ID: "9002", Quantity: "2"},
				},
			}
		}
		return &nuvemshop.AddToCartResponse{Success: true, Cart: cart, Raw: json.RawMessage(`{"success":true}`)}, nil
	}

	var checkoutProducts []nuvemshop.CartProduct
	mockAPI.OnGoToCheckout = func(ctx context.Context, sess *nuvemshop.Session, products []nuvemshop.CartProduct) (string, bool, error) {
		checkoutProducts = products
		return "tok-123", true, nil
	}

	var quoteReq *nuvemshop.ShippingOptionsRequest
	mockAPI.OnGetShippingOptions = func(ctx context.Context, sess *nuvemshop.Session, req *nuvemshop.ShippingOptionsRequest) (*nuvemshop.ShippingOptionsResponse, error) {
		quoteReq = req
		return &nuvemshop.ShippingOptionsResponse{Options: []shipper.ShippingOption{}}, nil
	}

	client := newTestClient(mockAPI, nuvemshop.Config{})
	result, err := client.GetQuote(context.Background(), quoteRequest())

	require.NoError(t, err)
	assert.False(t, result.Error)
	assert.Empty(t, result.ShippingOptions)
	assert.Len(t, checkoutProducts, 2)
	require.NotNil(t, quoteReq)
	assert.Equal(t, "cart-last", quoteReq.CartID)
	assert.Equal(t, "tok-123", quoteReq.AccessToken)
	assert.Equal(t, "70040-010", quoteReq.Zipcode)
}

func TestClient_GetQuote_CollectsEveryCartFailure(t *testing.T) {
	mockAPI := nuvemshop.NewMockAPIClient()
	mockAPI.OnAddToCart = func(ctx context.Context, sess *nuvemshop.Session, v shipper.Variant) (*nuvemshop.AddToCartResponse, error) {
		if v.ID == "202" {
			return &nuvemshop.AddToCartResponse{Success: true, Raw: json.RawMessage(`{"success":true}`)}, nil
		}
		return &nuvemshop.AddToCartResponse{Raw: json.RawMessage(`{"success":false,"variant":"` + v.ID + `"}`)}, nil
	}

	client := newTestClient(mockAPI, nuvemshop.Config{})
	result, err := client.GetQuote(context.Background(), quoteRequest(
		shipper.Variant{ID: "101", ProductID: "11", Quantity: 1},
		shipper.Variant{ID: "202", ProductID: "22", Quantity: 1},
		shipper.Variant{ID: "303", ProductID: "33", Quantity: 1},
	))

	require.NoError(t, err)
	assert.True(t, result.Error)
	assert.Equal(t, shipper.MessageCartFailed, result.Message)

	failures, ok := result.Data.([]shipper.CartFailure)
	require.True(t, ok)
	require.Len(t, failures, 2)
	assert.Equal(t, "101", failures[0].VariantID)
	assert.Equal(t, "11", failures[0].ProductID)
	assert.JSONEq(t, `{"success":false,"variant":"101"}`, string(failures[0].Response))
	assert.Equal(t, "303", failures[1].VariantID)
	assert.Equal(t, "33", failures[1].ProductID)

	// All variants are attempted, but checkout never starts.
	assert.Equal(t, []string{"NewSession", "AddToCart", "AddToCart", "AddToCart"}, mockAPI.Calls())
}

func TestClient_GetQuote_CheckoutWithoutToken(t *testing.T) {
	mockAPI := nuvemshop.NewMockAPIClient()
	mockAPI.OnGoToCheckout = func(ctx context.Context, sess *nuvemshop.Session, products []nuvemshop.CartProduct) (string, bool, error) {
		return "", false, nil
	}

	client := newTestClient(mockAPI, nuvemshop.Config{})
	result, err := client.GetQuote(context.Background(), quoteRequest())

	require.NoError(t, err)
	assert.Equal(t, shipper.CheckoutFailed(), result)
	assert.NotContains(t, mockAPI.Calls(), "GetShippingOptions")

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": true, "message": "Falhou em calcular o frete"}`, string(data))
}

func TestClient_GetQuote_UpstreamErrors(t *testing.T) {
	raw := json.RawMessage(`{"errors":[{"code":"invalid_zipcode"}]}`)

	mockAPI := nuvemshop.NewMockAPIClient()
	mockAPI.OnGetShippingOptions = func(ctx context.Context, sess *nuvemshop.Session, req *nuvemshop.ShippingOptionsRequest) (*nuvemshop.ShippingOptionsResponse, error) {
		return &nuvemshop.ShippingOptionsResponse{HasErrors: true, Raw: raw}, nil
	}

	client := newTestClient(mockAPI, nuvemshop.Config{})
	result, err := client.GetQuote(context.Background(), quoteRequest())

	require.NoError(t, err)
	assert.True(t, result.Error)
	assert.Equal(t, shipper.MessageQuoteFailed, result.Message)
	assert.Equal(t, raw, result.Data)
}

func TestClient_GetQuote_ProjectsRequestFields(t *testing.T) {
	mockAPI := nuvemshop.NewMockAPIClient()
	client := newTestClient(mockAPI, nuvemshop.Config{Fields: []string{"id"}})

	req := quoteRequest()
	req.Fields = []string{"name", "price", "carrier"}

	result, err := client.GetQuote(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, result.ShippingOptions, 2)
	assert.Equal(t, shipper.ShippingOption{"name": "PAC", "price": 21.9, "carrier": nil}, result.ShippingOptions[0])
}

func TestClient_GetQuote_ProjectsConfiguredFields(t *testing.T) {
	mockAPI := nuvemshop.NewMockAPIClient()
	client := newTestClient(mockAPI, nuvemshop.Config{
		Fields:  []string{"id", "carrier"},
		Missing: shipper.MissingOmit,
	})

	result, err := client.GetQuote(context.Background(), quoteRequest())

	require.NoError(t, err)
	assert.Equal(t, []shipper.ShippingOption{
		{"id": "correios-pac"},
		{"id": "correios-sedex"},
	}, result.ShippingOptions)
}

func TestClient_GetQuote_TransportError(t *testing.T) {
	mockAPI := nuvemshop.NewMockAPIClient()
	mockAPI.SimulateErrors = true

	client := newTestClient(mockAPI, nuvemshop.Config{})
	result, err := client.GetQuote(context.Background(), quoteRequest())

	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shipper.NewShipperError("", shipper.CodeTransport, "")))
}

func TestClient_GetQuote_ErrorLogCarriesSpan(t *testing.T) {
	mockAPI := nuvemshop.NewMockAPIClient()
	mockAPI.SimulateErrors = true

	records := logtest.NewRecorder()
	logger := otelzap.New(zap.NewNop(), otelzap.WithLoggerProvider(records))
	spans := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)).Tracer("test")

	client := nuvemshop.NewWithAPIClient(nuvemshop.Config{}, mockAPI, logger, tracer)
	_, err := client.GetQuote(context.Background(), quoteRequest())
	require.Error(t, err)

	var quoteSpan trace.SpanContext
	for _, s := range spans.Ended() {
		if s.Name() == "nuvemshop.GetQuote" {
			quoteSpan = s.SpanContext()
		}
	}
	require.True(t, quoteSpan.IsValid())

	var found bool
	for _, scope := range records.Result() {
		for _, rec := range scope.Records {
			if rec.Body().AsString() != "Nuvemshop storefront error" {
				continue
			}
			found = true
			logged := trace.SpanContextFromContext(rec.Context())
			assert.Equal(t, quoteSpan.TraceID(), logged.TraceID())
			assert.Equal(t, quoteSpan.SpanID(), logged.SpanID())
		}
	}
	assert.True(t, found, "error log was not emitted with a context")
}

func TestClient_GetQuote_RecordsMetrics(t *testing.T) {
	mockAPI := nuvemshop.NewMockAPIClient()
	rec := &recorder{}
	client := newTestClient(mockAPI, nuvemshop.Config{}).WithMetrics(rec)

	_, err := client.GetQuote(context.Background(), quoteRequest())

	require.NoError(t, err)
	assert.Equal(t, []string{
		"add_to_cart/success", "add_to_cart/success", "checkout/success", "shipping_options/success",
	}, rec.requests)
	assert.Empty(t, rec.errors)
}

func TestClient_GetQuote_IndependentSessions(t *testing.T) {
	mockAPI := nuvemshop.NewMockAPIClient()

	var cartIDs []string
	mockAPI.OnGetShippingOptions = func(ctx context.Context, sess *nuvemshop.Session, req *nuvemshop.ShippingOptionsRequest) (*nuvemshop.ShippingOptionsResponse, error) {
		cartIDs = append(cartIDs, req.CartID)
		return &nuvemshop.ShippingOptionsResponse{Options: []shipper.ShippingOption{}}, nil
	}

	client := newTestClient(mockAPI, nuvemshop.Config{})
	for i := 0; i < 2; i++ {
		_, err := client.GetQuote(context.Background(), quoteRequest())
		require.NoError(t, err)
	}

	require.Len(t, cartIDs, 2)
	assert.NotEqual(t, cartIDs[0], cartIDs[1])
}

func TestClient_Name(t *testing.T) {
	client := newTestClient(nuvemshop.NewMockAPIClient(), nuvemshop.Config{})
	assert.Equal(t, "nuvemshop", client.Name())
}

type recorder struct {
	requests []string
	errors   []string
}

func (r *recorder) RecordRequest(operation, carrier, status string, duration float64) {
	r.requests = append(r.requests, operation+"/"+status)
}

func (r *recorder) RecordError(carrier, errorType string) {
	r.errors = append(r.errors, errorType)
}
