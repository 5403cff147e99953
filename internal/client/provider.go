package client

import (
	"net/http"
	"strings"
)

// ProviderKey injects a third-party API key for requests to a matching host.
type ProviderKey struct {
	// HostSuffix matches the request host, e.g. "maps.googleapis.com".
	HostSuffix string
	// Header is the header the key is sent in, e.g. "X-Goog-Api-Key".
	Header string
	// Value is the key itself.
	Value string
}

// providerKeyTransport attaches provider API keys to requests bound for
// third-party hosts. First matching rule wins; platform requests pass
// through untouched.
type providerKeyTransport struct {
	next http.RoundTripper
	keys []ProviderKey
}

func (t *providerKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()
	for _, key := range t.keys {
		if strings.HasSuffix(host, key.HostSuffix) {
			req.Header.Set(key.Header, key.Value)
			break
		}
	}
	return t.next.RoundTrip(req)
}
