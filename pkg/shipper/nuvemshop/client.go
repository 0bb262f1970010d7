// Package nuvemshop drives a Nuvemshop (Tiendanube) storefront through cart and
// checkout to obtain shipping quotes the store does not expose publicly.
package nuvemshop

import (
	"context"
	"net/http"
	"time"

	"github.com/tournevent/shipping/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const carrierName = "nuvemshop"

// Config holds Nuvemshop configuration.
type Config struct {
	BaseURL           string
	CheckoutAPIURL    string
	UserAgent         string
	Timeout           time.Duration
	TokenCookiePrefix string
	UseMock           bool // When true, uses mock API client

	// Fields are the default projection keys when a request names none.
	Fields  []string
	Missing shipper.MissingKeyPolicy
}

// Recorder receives per-step outcomes. telemetry.Metrics implements it.
type Recorder interface {
	RecordRequest(operation, carrier, status string, duration float64)
	RecordError(carrier, errorType string)
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, string, string, float64) {}
func (nopRecorder) RecordError(string, string)                    {}

// Client is the Nuvemshop shipper client.
// It implements the shipper.Shipper interface and delegates
// storefront calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
	metrics   Recorder
}

// New creates a new Nuvemshop client.
// rt is the process-wide transport shared by every session.
func New(cfg Config, rt http.RoundTripper, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:        cfg.BaseURL,
			CheckoutAPIURL: cfg.CheckoutAPIURL,
			UserAgent:      cfg.UserAgent,
			Timeout:        cfg.Timeout,
			Transport:      rt,
			TokenExtractor: PrefixTokenExtractor{Prefix: cfg.TokenCookiePrefix},
		}, logger)
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new Nuvemshop client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(carrierName)
	}
	if cfg.Missing == "" {
		cfg.Missing = shipper.MissingAsNull
	}
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
		metrics:   nopRecorder{},
	}
}

// WithMetrics attaches a step recorder.
func (c *Client) WithMetrics(r Recorder) *Client {
	if r != nil {
		c.metrics = r
	}
	return c
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return carrierName
}

// GetQuote runs add-to-cart for every variant, starts checkout and fetches
// shipping options, stopping at the first failed stage.
func (c *Client) GetQuote(ctx context.Context, req *shipper.QuoteRequest) (*shipper.Result, error) {
	ctx, span := c.tracer.Start(ctx, "nuvemshop.GetQuote", trace.WithAttributes(
		attribute.String("zipcode", req.Zipcode),
		attribute.Int("variant_count", len(req.Variants)),
	))
	defer span.End()

	log := c.logger.Ctx(ctx)
	log.Info("Getting Nuvemshop quote",
		zap.String("zipcode", req.Zipcode),
		zap.Int("variant_count", len(req.Variants)),
	)

	sess, err := c.apiClient.NewSession()
	if err != nil {
		return nil, c.fail(ctx, span, "session", err)
	}

	// Every variant is attempted; failures are reported together.
	var (
		failures []shipper.CartFailure
		cart     Cart
	)
	for _, variant := range req.Variants {
		resp, err := c.addToCart(ctx, sess, variant)
		if err != nil {
			return nil, c.fail(ctx, span, "add_to_cart", err)
		}
		if !resp.Success {
			failures = append(failures, shipper.CartFailure{
				Response:  resp.Raw,
				VariantID: variant.ID,
				ProductID: variant.ProductID,
			})
			continue
		}
		cart = resp.Cart
	}
	if len(failures) > 0 {
		log.Warn("Variants rejected by storefront", zap.Int("failures", len(failures)))
		span.SetAttributes(attribute.String("outcome", "cart_failed"))
		return shipper.CartFailed(failures), nil
	}

	log.Info("Cart built",
		zap.String("cart_id", cart.ID.String()),
		zap.Int("product_count", len(cart.Products)),
	)

	token, ok, err := c.goToCheckout(ctx, sess, cart.Products)
	if err != nil {
		return nil, c.fail(ctx, span, "checkout", err)
	}
	if !ok {
		log.Warn("Storefront issued no checkout token", zap.String("cart_id", cart.ID.String()))
		span.SetAttributes(attribute.String("outcome", "checkout_failed"))
		return shipper.CheckoutFailed(), nil
	}

	log.Info("Checkout started", zap.String("checkout_token", token))

	options, err := c.getShippingOptions(ctx, sess, &ShippingOptionsRequest{
		CartID:      cart.ID.String(),
		Zipcode:     req.Zipcode,
		AccessToken: token,
	})
	if err != nil {
		return nil, c.fail(ctx, span, "shipping_options", err)
	}
	if options.HasErrors {
		log.Warn("Storefront rejected shipping quote", zap.String("cart_id", cart.ID.String()))
		span.SetAttributes(attribute.String("outcome", "quote_failed"))
		return shipper.QuoteFailed(options.Raw), nil
	}

	keys := req.Fields
	if len(keys) == 0 {
		keys = c.config.Fields
	}

	span.SetAttributes(
		attribute.String("outcome", "success"),
		attribute.Int("option_count", len(options.Options)),
	)
	return shipper.Success(shipper.Project(options.Options, keys, c.config.Missing)), nil
}

func (c *Client) addToCart(ctx context.Context, sess *Session, variant shipper.Variant) (*AddToCartResponse, error) {
	ctx, span := c.tracer.Start(ctx, "nuvemshop.AddToCart", trace.WithAttributes(
		attribute.String("variant_id", variant.ID),
		attribute.String("product_id", variant.ProductID),
	))
	defer span.End()

	start := time.Now()
	resp, err := c.apiClient.AddToCart(ctx, sess, variant)
	c.observe("add_to_cart", start, err, err == nil && resp.Success)
	return resp, err
}

func (c *Client) goToCheckout(ctx context.Context, sess *Session, products []CartProduct) (string, bool, error) {
	ctx, span := c.tracer.Start(ctx, "nuvemshop.GoToCheckout", trace.WithAttributes(
		attribute.Int("product_count", len(products)),
	))
	defer span.End()

	start := time.Now()
	token, ok, err := c.apiClient.GoToCheckout(ctx, sess, products)
	c.observe("checkout", start, err, ok)
	return token, ok, err
}

func (c *Client) getShippingOptions(ctx context.Context, sess *Session, req *ShippingOptionsRequest) (*ShippingOptionsResponse, error) {
	ctx, span := c.tracer.Start(ctx, "nuvemshop.GetShippingOptions", trace.WithAttributes(
		attribute.String("cart_id", req.CartID),
	))
	defer span.End()

	start := time.Now()
	resp, err := c.apiClient.GetShippingOptions(ctx, sess, req)
	c.observe("shipping_options", start, err, err == nil && !resp.HasErrors)
	return resp, err
}

func (c *Client) observe(operation string, start time.Time, err error, ok bool) {
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case !ok:
		status = "rejected"
	}
	c.metrics.RecordRequest(operation, carrierName, status, time.Since(start).Seconds())
}

func (c *Client) fail(ctx context.Context, span trace.Span, stage string, err error) error {
	c.logger.Ctx(ctx).Error("Nuvemshop storefront error", zap.String("stage", stage), zap.Error(err))
	c.metrics.RecordError(carrierName, stage)
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	return err
}
