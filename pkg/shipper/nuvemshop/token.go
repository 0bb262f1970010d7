package nuvemshop

import (
	"net/http"
	"strings"
)

// DefaultTokenCookiePrefix names the cookie the storefront sets once checkout starts.
const DefaultTokenCookiePrefix = "access_token_"

// TokenExtractor finds the checkout bearer token among session cookies.
type TokenExtractor interface {
	ExtractBearerToken(cookies []*http.Cookie) (string, bool)
}

// PrefixTokenExtractor returns the value of the first cookie whose name
// starts with Prefix.
type PrefixTokenExtractor struct {
	Prefix string
}

// ExtractBearerToken implements TokenExtractor.
func (e PrefixTokenExtractor) ExtractBearerToken(cookies []*http.Cookie) (string, bool) {
	prefix := e.Prefix
	if prefix == "" {
		prefix = DefaultTokenCookiePrefix
	}
	for _, c := range cookies {
		if strings.HasPrefix(c.Name, prefix) {
			return c.Value, true
		}
	}
	return "", false
}
