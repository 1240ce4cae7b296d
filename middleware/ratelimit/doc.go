// Package ratelimit provides net/http adapters for inbound rate limiting and
// concurrency limiting.
//
// Layers:
//
//   - domain: contracts and the fixed-window rule (no net/http)
//   - application: admission use cases (global + named policy, slot acquire) without net/http
//   - infra: concrete limiters (memory and Redis fixed windows, x/time token bucket),
//     the channel semaphore and the decision stats stores
//   - ratelimit (this package): HTTP middlewares, partition key extraction and
//     translation of decisions into status codes and headers
//
// Request flow in the gateway:
//
//  1. Derive the partition key (authenticated subject, then header/XFF/IP)
//  2. Resolve the route's named policy
//  3. Ask the application layer for a decision; global is checked first
//  4. If rejected, answer 429 with Retry-After (or 503 for concurrency)
//  5. Otherwise call the next handler
//
// Rejection is immediate: there is no queue of requests waiting for a slot.
package ratelimit
