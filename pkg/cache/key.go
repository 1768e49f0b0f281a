package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every key written by the manager.
const KeyPrefix = "pagefeed"

// Key identifies a cached response.
type Key struct {
	// Host is the origin the response came from (e.g. "accounting.local:5000")
	Host string

	// Endpoint is the request path (e.g. "/api/invoices")
	Endpoint string

	// QueryParams are the query parameters, page and size included
	QueryParams url.Values
}

// KeyFromURL builds the key of a request URL.
func KeyFromURL(u *url.URL) Key {
	return Key{
		Host:        u.Host,
		Endpoint:    u.Path,
		QueryParams: u.Query(),
	}
}

// String generates a deterministic cache key string.
// Format: pagefeed:host:endpoint:query1=val1:query2=val2
//
// Example:
//
//	pagefeed:localhost:5000:api/invoices:page=2:size=20
func (k Key) String() string {
	parts := []string{KeyPrefix}

	if k.Host != "" {
		parts = append(parts, k.Host)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	return strings.Join(parts, ":")
}
