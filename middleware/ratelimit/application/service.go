package application

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"bot-gateway/middleware/ratelimit/domain"
)

// Service applies the global policy to all traffic and, when the route is
// bound to one, a named policy on top. Both must admit the request.
//
// It knows nothing about HTTP; it only returns a decision.
type Service struct {
	Global domain.Limiter
	Named  map[string]domain.Limiter
}

// ErrUnknownPolicy is returned (alongside an allowing decision) when a route
// names a policy that was never configured.
var ErrUnknownPolicy = errors.New("ratelimit: unknown policy")

// Decide checks the global limiter first; a request rejected globally does not
// consume a permit of the named policy.
//
// Limiter failures fail open: the returned decision allows the request and
// err reports what went wrong so the caller can log it.
func (s Service) Decide(ctx context.Context, key domain.Key, policy string) (domain.Decision, error) {
	allowed := domain.Decision{Allowed: true}
	var errs []error

	if s.Global != nil {
		dec, err := s.Global.Take(ctx, key)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", s.Global.Policy().Name, err))
		case !dec.Allowed:
			return dec, nil
		default:
			allowed = dec
		}
	}

	if policy == "" {
		return allowed, errors.Join(errs...)
	}
	lim, ok := s.Named[policy]
	if !ok || lim == nil {
		errs = append(errs, fmt.Errorf("%w %q", ErrUnknownPolicy, policy))
		return allowed, errors.Join(errs...)
	}

	dec, err := lim.Take(ctx, key)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("%s: %w", policy, err))
	case !dec.Allowed:
		return dec, errors.Join(errs...)
	default:
		if allowed.Limit == 0 || dec.Remaining < allowed.Remaining {
			allowed = dec
		}
	}
	return allowed, errors.Join(errs...)
}

// Policies lists the configured policies, global first, then by name.
func (s Service) Policies() []domain.Policy {
	var out []domain.Policy
	if s.Global != nil {
		out = append(out, s.Global.Policy())
	}
	names := make([]string, 0, len(s.Named))
	for name := range s.Named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if lim := s.Named[name]; lim != nil {
			out = append(out, lim.Policy())
		}
	}
	return out
}
