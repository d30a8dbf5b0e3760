package storekeys

import "fmt"

// Key naming for the persisted token store. Service names are used verbatim;
// they are short config-controlled identifiers ("inventory", "billing", ...),
// never user input.

// TokenEntry is the store key for a service's persisted token cache entry.
func TokenEntry(service string) string {
	return fmt.Sprintf("zoho_token:%s", service)
}

// RateLimitState is the store key for a service's persisted rate-limit window.
func RateLimitState(service string) string {
	return fmt.Sprintf("zoho_ratelimit:%s", service)
}

// InvalidationChannel is the pub/sub channel for cache invalidation broadcasts.
func InvalidationChannel() string {
	return "zoho_token:invalidate"
}
