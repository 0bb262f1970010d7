// Package transport builds the process-wide RoundTripper shared by every
// storefront session. Sessions own their cookie jars; connections are pooled here.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Config selects the transport flavour.
type Config struct {
	Timeout time.Duration

	// ChromeTLS presents a Chrome TLS fingerprint. Storefront CDNs throttle
	// clients whose ClientHello looks like Go's.
	ChromeTLS bool
}

// New returns a RoundTripper safe for concurrent use by independent requests.
func New(cfg Config) http.RoundTripper {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	if cfg.ChromeTLS {
		return NewChromeTransport(timeout)
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSHandshakeTimeout = timeout
	t.MaxIdleConnsPerHost = 16
	return t
}

// NewChromeTransport dials TLS with uTLS HelloChrome_Auto and lets ALPN pick
// HTTP/2 or HTTP/1.1.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	return newChromeTransport(timeout, nil)
}

// errNoH2 reports a server that declined h2 during ALPN. Nothing has been
// written on the connection when it is returned.
var errNoH2 = errors.New("server did not negotiate h2")

// newChromeTransport verifies servers against roots, or the system pool when nil.
func newChromeTransport(timeout time.Duration, roots *x509.CertPool) *chromeTransport {
	dialer := &net.Dialer{Timeout: timeout}

	return &chromeTransport{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				conn, err := dialChromeTLS(ctx, dialer, network, addr, roots)
				if err != nil {
					return nil, err
				}
				if conn.ConnectionState().NegotiatedProtocol != http2.NextProtoTLS {
					conn.Close()
					return nil, errNoH2
				}
				return conn, nil
			},
		},
		h1: &http.Transport{
			DialContext: dialer.DialContext,
			DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				conn, err := dialChromeTLS(ctx, dialer, network, addr, roots)
				if err != nil {
					return nil, err
				}
				if conn.ConnectionState().NegotiatedProtocol == http2.NextProtoTLS {
					conn.Close()
					return nil, fmt.Errorf("%s negotiated h2 on an HTTP/1.1 connection", addr)
				}
				return conn, nil
			},
			ForceAttemptHTTP2: false,
		},
	}
}

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport

	// h1Hosts holds the host:port of servers that declined h2.
	h1Hosts sync.Map
}

// RoundTrip sends https requests over HTTP/2 unless the server declined h2
// during ALPN, in which case the request goes over HTTP/1.1 instead. A request
// is never sent twice: any h2 failure after the handshake is returned as is.
// Plain http requests go straight to the HTTP/1.1 transport.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	key := hostPort(req.URL)
	if _, ok := t.h1Hosts.Load(key); ok {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if !errors.Is(err, errNoH2) {
		return resp, err
	}
	t.h1Hosts.Store(key, struct{}{})

	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, bodyErr
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

func hostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string, roots *x509.CertPool) (*utls.UConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host, RootCAs: roots}, utls.HelloChrome_Auto)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
