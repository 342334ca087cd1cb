package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "intercom"

// CacheKey identifies a cached Intercom response.
type CacheKey struct {
	// Scope separates workspaces sharing one Redis, e.g. API host plus a
	// token fingerprint. Empty means unscoped.
	Scope string

	// Endpoint is the request path (e.g., "/conversations/123")
	Endpoint string

	// QueryParams are the query parameters (e.g., {"display_as": "plaintext"})
	QueryParams url.Values

	// Version is the Intercom-Version the response was produced for.
	// Response shapes differ between API versions.
	Version string
}

// String generates a deterministic cache key string.
// Format: intercom[:SCOPE][:vVERSION]:endpoint:query1=val1:query2=val2
//
// Example:
//
//	intercom:api.intercom.io/3f2a9c1d:v2.11:conversations/123:display_as=plaintext
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if k.Scope != "" {
		parts = append(parts, k.Scope)
	}

	if k.Version != "" {
		parts = append(parts, "v"+k.Version)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Sorted for determinism
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}
