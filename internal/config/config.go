package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"80"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Caller authentication. TokenSecretName, when set, names a Secret Manager
	// version (projects/{p}/secrets/{s}/versions/{v}) that overrides Token.
	Token           string `envconfig:"TOKEN"`
	TokenSecretName string `envconfig:"TOKEN_SECRET_NAME"`

	// Storefront
	StorefrontBaseURL           string        `envconfig:"STOREFRONT_BASE_URL" default:"https://www.eleganceoutletbsb.com.br"`
	StorefrontCheckoutAPIURL    string        `envconfig:"STOREFRONT_CHECKOUT_API_URL" default:"https://checkout-api.ms.tiendanube.com/checkout/v3/new-shipping-options"`
	StorefrontUserAgent         string        `envconfig:"STOREFRONT_USER_AGENT"`
	StorefrontTimeout           time.Duration `envconfig:"STOREFRONT_TIMEOUT" default:"30s"`
	StorefrontChromeTLS         bool          `envconfig:"STOREFRONT_CHROME_TLS" default:"false"`
	StorefrontUseMock           bool          `envconfig:"STOREFRONT_USE_MOCK" default:"false"`
	StorefrontTokenCookiePrefix string        `envconfig:"STOREFRONT_TOKEN_COOKIE_PREFIX" default:"access_token_"`

	// Shipping option projection
	ShippingOptionFields  []string `envconfig:"SHIPPING_OPTION_FIELDS"`
	ShippingOptionMissing string   `envconfig:"SHIPPING_OPTION_MISSING" default:"null"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"true"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://jaeger-collector.claude.svc.cluster.local:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"storefront-shipping"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables, after loading a
// .env file from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.ShippingOptionMissing {
	case "null", "omit":
	default:
		return fmt.Errorf("SHIPPING_OPTION_MISSING must be \"null\" or \"omit\", got %q", c.ShippingOptionMissing)
	}
	for i, f := range c.ShippingOptionFields {
		c.ShippingOptionFields[i] = strings.TrimSpace(f)
	}
	return nil
}

// SecretFetcher reads a secret version payload.
type SecretFetcher func(ctx context.Context, name string) ([]byte, error)

// ResolveSecret returns the caller token. With TokenSecretName set the value is
// read through fetch, or from Secret Manager when fetch is nil.
func (c *Config) ResolveSecret(ctx context.Context, fetch SecretFetcher) (string, error) {
	if c.TokenSecretName == "" {
		return c.Token, nil
	}
	if fetch == nil {
		fetch = accessSecretVersion
	}

	payload, err := fetch(ctx, c.TokenSecretName)
	if err != nil {
		return "", fmt.Errorf("accessing secret %s: %w", c.TokenSecretName, err)
	}
	return strings.TrimSpace(string(payload)), nil
}

func accessSecretVersion(ctx context.Context, name string) ([]byte, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return nil, err
	}
	return result.Payload.Data, nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("storefront.base_url", c.StorefrontBaseURL),
		attribute.Bool("storefront.mock", c.StorefrontUseMock),
		attribute.Bool("storefront.chrome_tls", c.StorefrontChromeTLS),
	}
}
