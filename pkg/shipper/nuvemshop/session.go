package nuvemshop

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
)

// Session is the per-quote HTTP context: one cookie jar plus default headers.
// A Session belongs to exactly one quote and must not be shared.
type Session struct {
	ID      string
	client  *http.Client
	jar     *recordingJar
	headers http.Header
}

// newSession builds a session over a shared RoundTripper, so the
// connection pool lives per process while cookies live per quote.
func newSession(rt http.RoundTripper, timeout time.Duration, headers http.Header) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	recording := &recordingJar{jar: jar}

	return &Session{
		ID: uuid.New().String(),
		client: &http.Client{
			Transport: rt,
			Jar:       recording,
			Timeout:   timeout,
		},
		jar:     recording,
		headers: headers.Clone(),
	}, nil
}

// Cookies returns every live cookie the storefront set during this session,
// in the order they were first set.
func (s *Session) Cookies() []*http.Cookie {
	if s == nil || s.jar == nil {
		return nil
	}
	return s.jar.all()
}

// recordingJar delegates to a standard jar and keeps an ordered record of
// cookies regardless of their domain or path.
type recordingJar struct {
	jar *cookiejar.Jar

	mu      sync.Mutex
	cookies []*http.Cookie
}

func (j *recordingJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		j.record(c)
	}
}

func (j *recordingJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

func (j *recordingJar) record(c *http.Cookie) {
	expired := c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(time.Now()))
	for i, existing := range j.cookies {
		if existing.Name != c.Name {
			continue
		}
		if expired {
			j.cookies = append(j.cookies[:i], j.cookies[i+1:]...)
		} else {
			j.cookies[i] = c
		}
		return
	}
	if !expired {
		j.cookies = append(j.cookies, c)
	}
}

func (j *recordingJar) all() []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*http.Cookie, len(j.cookies))
	copy(out, j.cookies)
	return out
}

// Response is what perform hands back to the storefront calls. Cookies are
// not carried here; the session jar records them.
type Response struct {
	StatusCode int
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}
