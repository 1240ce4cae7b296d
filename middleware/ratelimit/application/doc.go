// Package application holds the admission use cases for rate limiting and
// concurrency limiting.
//
// It depends only on the domain package and knows nothing about net/http.
// Service.Decide(ctx, key, policy) returns a Decision (allow/deny + retry-after).
package application
