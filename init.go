package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tournevent/shipping/internal/config"
	"github.com/tournevent/shipping/internal/telemetry"
	"github.com/tournevent/shipping/internal/transport"
	"github.com/tournevent/shipping/pkg/shipper"
	"github.com/tournevent/shipping/pkg/shipper/nuvemshop"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version, cfg.Attributes()...)
	return shutdown, err
}

func initMetrics() *telemetry.Metrics {
	return telemetry.NewMetrics(prometheus.DefaultRegisterer)
}

// initShipper builds the storefront client. metrics may be nil.
func initShipper(cfg *config.Config, logger *otelzap.Logger, metrics *telemetry.Metrics) shipper.Shipper {
	// Spans go to the global provider; it is a no-op unless InitTracer ran.
	tracer := otel.GetTracerProvider().Tracer(cfg.ServiceName)

	rt := transport.New(transport.Config{
		Timeout:   cfg.StorefrontTimeout,
		ChromeTLS: cfg.StorefrontChromeTLS,
	})

	client := nuvemshop.New(nuvemshop.Config{
		BaseURL:           cfg.StorefrontBaseURL,
		CheckoutAPIURL:    cfg.StorefrontCheckoutAPIURL,
		UserAgent:         cfg.StorefrontUserAgent,
		Timeout:           cfg.StorefrontTimeout,
		TokenCookiePrefix: cfg.StorefrontTokenCookiePrefix,
		UseMock:           cfg.StorefrontUseMock,
		Fields:            cfg.ShippingOptionFields,
		Missing:           shipper.MissingKeyPolicy(cfg.ShippingOptionMissing),
	}, rt, logger, tracer)

	if metrics != nil {
		client.WithMetrics(metrics)
	}
	return client
}
