package cache

import (
	"crypto/md5"
	"fmt"
	"sort"
	"strings"
)

// KeyFor builds a stable cache key from an endpoint name and its
// parameters. Parameter order never matters: two queries for the same
// endpoint with the same parameters always share one key.
func KeyFor(endpoint string, params map[string]string) string {
	if len(params) == 0 {
		return endpoint
	}

	parts := make([]string, 0, len(params))
	for k, v := range params {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)

	key := endpoint + "?" + strings.Join(parts, "&")

	// Very long parameter sets collapse to a hash so keys stay bounded.
	if len(key) > 200 {
		return fmt.Sprintf("%s?h_%x", endpoint, md5.Sum([]byte(key)))
	}
	return key
}
