// Package domain defines the contracts and types for rate limiting and
// concurrency limiting.
//
// It depends neither on net/http nor on concrete stores, so the window rule can
// be unit tested on its own and infrastructure stays swappable.
package domain
