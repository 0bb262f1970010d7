package transport_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipping/internal/transport"
)

func TestNew_Default(t *testing.T) {
	rt := transport.New(transport.Config{Timeout: 5 * time.Second})

	ht, ok := rt.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, ht.TLSHandshakeTimeout)
	assert.NotSame(t, http.DefaultTransport, ht)
}

func TestNew_ChromeTLS(t *testing.T) {
	rt := transport.New(transport.Config{ChromeTLS: true})

	_, isStd := rt.(*http.Transport)
	assert.False(t, isStd)
}

func TestChromeTransport_PlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write([]byte(r.Method + " " + string(body)))
	}))
	defer srv.Close()

	client := &http.Client{Transport: transport.NewChromeTransport(time.Second)}

	resp, err := client.Post(srv.URL, "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "POST hello", string(body))
}
