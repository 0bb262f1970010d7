package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 80, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Token)
	assert.Equal(t, "https://www.eleganceoutletbsb.com.br", cfg.StorefrontBaseURL)
	assert.Equal(t, "https://checkout-api.ms.tiendanube.com/checkout/v3/new-shipping-options", cfg.StorefrontCheckoutAPIURL)
	assert.Equal(t, 30*time.Second, cfg.StorefrontTimeout)
	assert.Equal(t, "access_token_", cfg.StorefrontTokenCookiePrefix)
	assert.False(t, cfg.StorefrontUseMock)
	assert.Empty(t, cfg.ShippingOptionFields)
	assert.Equal(t, "null", cfg.ShippingOptionMissing)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "8080")
	t.Setenv("TOKEN", "s3cret")
	t.Setenv("STOREFRONT_BASE_URL", "https://loja.example.com.br")
	t.Setenv("STOREFRONT_TIMEOUT", "5s")
	t.Setenv("STOREFRONT_USE_MOCK", "true")
	t.Setenv("SHIPPING_OPTION_FIELDS", "id, name ,price")
	t.Setenv("SHIPPING_OPTION_MISSING", "omit")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "s3cret", cfg.Token)
	assert.Equal(t, "https://loja.example.com.br", cfg.StorefrontBaseURL)
	assert.Equal(t, 5*time.Second, cfg.StorefrontTimeout)
	assert.True(t, cfg.StorefrontUseMock)
	assert.Equal(t, []string{"id", "name", "price"}, cfg.ShippingOptionFields)
	assert.Equal(t, "omit", cfg.ShippingOptionMissing)
}

func TestLoad_InvalidMissingPolicy(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SHIPPING_OPTION_MISSING", "drop")

	_, err := Load()
	assert.ErrorContains(t, err, "SHIPPING_OPTION_MISSING")
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "eighty")

	_, err := Load()
	assert.Error(t, err)
}

func TestResolveSecret_PlainToken(t *testing.T) {
	cfg := &Config{Token: "plain"}

	token, err := cfg.ResolveSecret(context.Background(), func(ctx context.Context, name string) ([]byte, error) {
		t.Fatal("fetcher must not be called without a secret name")
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "plain", token)
}

func TestResolveSecret_FromSecretManager(t *testing.T) {
	cfg := &Config{Token: "plain", TokenSecretName: "projects/p/secrets/shipping-token/versions/latest"}

	var asked string
	token, err := cfg.ResolveSecret(context.Background(), func(ctx context.Context, name string) ([]byte, error) {
		asked = name
		return []byte("from-secret\n"), nil
	})

	require.NoError(t, err)
	assert.Equal(t, "from-secret", token)
	assert.Equal(t, cfg.TokenSecretName, asked)
}

func TestResolveSecret_FetchError(t *testing.T) {
	cfg := &Config{TokenSecretName: "projects/p/secrets/s/versions/1"}

	_, err := cfg.ResolveSecret(context.Background(), func(ctx context.Context, name string) ([]byte, error) {
		return nil, errors.New("permission denied")
	})

	assert.ErrorContains(t, err, "permission denied")
}

func TestAttributes(t *testing.T) {
	cfg := &Config{ServiceName: "storefront-shipping", Version: "1.2.3", StorefrontUseMock: true}

	attrs := map[string]string{}
	for _, kv := range cfg.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}

	assert.Equal(t, "storefront-shipping", attrs["service.name"])
	assert.Equal(t, "1.2.3", attrs["service.version"])
	assert.Equal(t, "true", attrs["storefront.mock"])
}
