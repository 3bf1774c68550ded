package cache

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// RequestKey identifies a cached response: the request method and the
// absolute request URL without its fragment.
type RequestKey struct {
	Method string
	URL    string
}

// KeyFor builds the key for an outgoing request.
func KeyFor(req *http.Request) RequestKey {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return RequestKey{Method: method, URL: normalizeURL(req.URL)}
}

// KeyForURL builds the GET key for u.
func KeyForURL(u *url.URL) RequestKey {
	return RequestKey{Method: http.MethodGet, URL: normalizeURL(u)}
}

// String generates the storage form of the key.
// Format: METHOD absolute-url
//
// Example:
//
//	GET https://wallet.example.com/app.js?v=2
func (k RequestKey) String() string {
	return strings.ToUpper(k.Method) + " " + k.URL
}

// Validate reports ErrUnsupportedMethod for anything but GET.
func (k RequestKey) Validate() error {
	if !strings.EqualFold(k.Method, http.MethodGet) {
		return fmt.Errorf("%w: %s", ErrUnsupportedMethod, k.Method)
	}
	if k.URL == "" {
		return fmt.Errorf("%w: empty url", ErrInvalidKey)
	}
	return nil
}

// ParseRequestKey is the inverse of RequestKey.String.
func ParseRequestKey(s string) (RequestKey, error) {
	method, rawURL, ok := strings.Cut(s, " ")
	if !ok || method == "" || rawURL == "" {
		return RequestKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return RequestKey{Method: method, URL: rawURL}, nil
}

func normalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}
