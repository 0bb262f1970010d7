package nuvemshop

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tournevent/shipping/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	// DefaultUserAgent is sent on every storefront call. The storefront serves
	// bot-looking clients a different cart flow.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"

	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	defaultAcceptLanguage = "pt-BR,pt;q=0.9"

	cartPath       = "/comprar/"
	checkoutButton = "Iniciar Compra"
	countryCode    = "BR"

	// logBodyLimit caps how much of a response body is logged.
	logBodyLimit = 300
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL        string
	checkoutAPIURL string
	transport      http.RoundTripper
	timeout        time.Duration
	headers        http.Header
	tokens         TokenExtractor
	logger         *otelzap.Logger
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL        string
	CheckoutAPIURL string
	UserAgent      string
	Timeout        time.Duration
	Transport      http.RoundTripper // shared by all sessions; nil uses http.DefaultTransport
	TokenExtractor TokenExtractor    // nil matches DefaultTokenCookiePrefix
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig, logger *otelzap.Logger) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	tokens := cfg.TokenExtractor
	if tokens == nil {
		tokens = PrefixTokenExtractor{Prefix: DefaultTokenCookiePrefix}
	}

	headers := http.Header{}
	headers.Set("User-Agent", userAgent)
	headers.Set("Accept", defaultAccept)
	headers.Set("Accept-Language", defaultAcceptLanguage)

	return &HTTPAPIClient{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		checkoutAPIURL: cfg.CheckoutAPIURL,
		transport:      rt,
		timeout:        timeout,
		headers:        headers,
		tokens:         tokens,
		logger:         logger,
	}
}

// NewSession implements APIClient.
func (c *HTTPAPIClient) NewSession() (*Session, error) {
	sess, err := newSession(c.transport, c.timeout, c.headers)
	if err != nil {
		return nil, shipper.NewShipperError(carrierName, shipper.CodeTransport, "failed to create session").WithCause(err)
	}
	return sess, nil
}

// AddToCart posts one variant to the storefront cart.
// POST /comprar/ (form, XHR)
func (c *HTTPAPIClient) AddToCart(ctx context.Context, sess *Session, variant shipper.Variant) (*AddToCartResponse, error) {
	resp, err := c.perform(ctx, sess, call{
		method: http.MethodPost,
		url:    c.baseURL + cartPath,
		form: url.Values{
			"add_to_cart":          {variant.ProductID},
			"variant_id":           {variant.ID},
			"variant[0]":           {variant.Name},
			"quantity":             {strconv.Itoa(variant.Quantity)},
			"zipcode":              {""},
			"add_to_cart_enhanced": {"1"},
		},
		headers: map[string]string{
			"X-Requested-With": "XMLHttpRequest",
		},
	})
	if err != nil {
		return nil, err
	}

	result, err := parseAddToCart(resp)
	if err != nil {
		return nil, malformed(resp, err)
	}
	return result, nil
}

// GoToCheckout starts checkout for the cart products and extracts the
// access token from the session cookies.
// POST /comprar/ (form)
func (c *HTTPAPIClient) GoToCheckout(ctx context.Context, sess *Session, products []CartProduct) (string, bool, error) {
	form := url.Values{}
	for _, p := range products {
		form.Set(fmt.Sprintf("quantity[%s]", p.ID), p.Quantity.String())
	}
	form.Set("go_to_checkout", checkoutButton)

	if _, err := c.perform(ctx, sess, call{
		method: http.MethodPost,
		url:    c.baseURL + cartPath,
		form:   form,
	}); err != nil {
		return "", false, err
	}

	token, ok := c.tokens.ExtractBearerToken(sess.Cookies())
	return token, ok, nil
}

// GetShippingOptions queries the checkout microservice.
// GET {checkout api url}?cartId=..&orderId=..
func (c *HTTPAPIClient) GetShippingOptions(ctx context.Context, sess *Session, req *ShippingOptionsRequest) (*ShippingOptionsResponse, error) {
	query := url.Values{
		"zipcode":         {req.Zipcode},
		"country":         {countryCode},
		"keepCartAddress": {"false"},
		"city":            {""},
	}
	// The API takes the cart id twice; both must carry the same value.
	if req.CartID != "" {
		query.Set("cartId", req.CartID)
		query.Set("orderId", req.CartID)
	}

	resp, err := c.perform(ctx, sess, call{
		method: http.MethodGet,
		url:    c.checkoutAPIURL,
		query:  query,
		headers: map[string]string{
			"Authorization": "Bearer " + req.AccessToken,
		},
	})
	if err != nil {
		return nil, err
	}

	result, err := parseShippingOptions(resp)
	if err != nil {
		return nil, malformed(resp, err)
	}
	return result, nil
}

// call describes one outbound request.
type call struct {
	method  string
	url     string
	form    url.Values
	headers map[string]string
	query   url.Values
}

// perform issues a request on the session, logging the request and a
// truncated response. Transport failures are returned, never retried.
func (c *HTTPAPIClient) perform(ctx context.Context, sess *Session, cl call) (*Response, error) {
	target := cl.url
	if len(cl.query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + cl.query.Encode()
	}

	var body io.Reader
	if cl.form != nil {
		body = strings.NewReader(cl.form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return nil, shipper.NewShipperError(carrierName, shipper.CodeTransport, "failed to create request").WithCause(err)
	}
	for name, values := range sess.headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if cl.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for name, value := range cl.headers {
		req.Header.Set(name, value)
	}

	log := c.logger.Ctx(ctx)
	fields := []zap.Field{
		zap.String("session", sess.ID),
		zap.String("method", cl.method),
		zap.String("url", cl.url),
	}
	if len(cl.form) > 0 {
		fields = append(fields, zap.String("form", renderValues(cl.form)))
	}
	if len(cl.headers) > 0 {
		fields = append(fields, zap.String("headers", renderHeaders(cl.headers)))
	}
	if len(cl.query) > 0 {
		fields = append(fields, zap.String("query", renderValues(cl.query)))
	}
	log.Debug("Storefront request", fields...)

	resp, err := sess.client.Do(req)
	if err != nil {
		log.Error("Storefront request failed", zap.String("url", cl.url), zap.Error(err))
		return nil, shipper.NewShipperError(carrierName, shipper.CodeTransport, cl.method+" "+cl.url).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, shipper.NewShipperError(carrierName, shipper.CodeTransport, "failed to read response").
			WithCause(err).
			WithStatusCode(resp.StatusCode)
	}

	log.Debug("Storefront response",
		zap.String("session", sess.ID),
		zap.Int("status", resp.StatusCode),
		zap.String("body", truncate(string(data), logBodyLimit)),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
	}, nil
}

func malformed(resp *Response, err error) error {
	return shipper.NewShipperError(carrierName, shipper.CodeMalformedJSON, "unexpected storefront response").
		WithCause(err).
		WithStatusCode(resp.StatusCode)
}

// renderValues renders fields as "key: value" lines in key order.
func renderValues(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", k, strings.Join(values[k], ", "))
	}
	return b.String()
}

func renderHeaders(headers map[string]string) string {
	values := make(url.Values, len(headers))
	for k, v := range headers {
		values.Set(k, v)
	}
	return renderValues(values)
}

// truncate cuts s to limit characters, marking the cut with "...".
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
