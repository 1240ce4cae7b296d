// Package auth verifies HMAC signed bearer tokens (github.com/golang-jwt/jwt/v5).
//
// Identify runs early in the chain and only annotates the request with the
// token subject, so the rate limiter can partition by user. Require rejects
// requests without a verified subject. With an empty secret both are no-ops.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

type Options struct {
	Secret   []byte
	Issuer   string
	Audience string
	// Leeway tolerates clock skew on exp/nbf. Default 30s.
	Leeway time.Duration
	// OnUnauthorized writes the 401 response. Default: plain JSON body.
	OnUnauthorized func(w http.ResponseWriter, r *http.Request, err error)
}

type Verifier struct {
	opts   Options
	parser *jwt.Parser
}

func NewVerifier(opts Options) *Verifier {
	if opts.Leeway <= 0 {
		opts.Leeway = 30 * time.Second
	}
	if opts.OnUnauthorized == nil {
		opts.OnUnauthorized = defaultUnauthorized
	}

	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(opts.Leeway),
		jwt.WithExpirationRequired(),
	}
	if opts.Issuer != "" {
		popts = append(popts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		popts = append(popts, jwt.WithAudience(opts.Audience))
	}
	return &Verifier{opts: opts, parser: jwt.NewParser(popts...)}
}

// Enabled is false when no secret is configured.
func (v *Verifier) Enabled() bool { return len(v.opts.Secret) > 0 }

// Verify parses token and returns its registered claims.
func (v *Verifier) Verify(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.opts.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return claims, nil
}

type ctxKey struct{}

type identity struct {
	subject string
	err     error
}

// Subject returns the verified token subject of the request, or "".
func Subject(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(identity)
	return id.subject
}

func withIdentity(ctx context.Context, id identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// WithSubject returns ctx carrying subject as a verified identity.
func WithSubject(ctx context.Context, subject string) context.Context {
	return withIdentity(ctx, identity{subject: subject})
}

// Identify verifies the bearer token when present. It never rejects.
func (v *Verifier) Identify(next http.Handler) http.Handler {
	if !v.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r)
		if !ok {
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity{err: ErrMissingToken})))
			return
		}

		var id identity
		claims, err := v.Verify(raw)
		if err != nil {
			id.err = err
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("bearer token rejected")
		} else {
			id.subject = claims.Subject
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// Require answers 401 unless Identify attached a verified subject. It
// verifies the token itself when Identify did not run.
func (v *Verifier) Require(next http.Handler) http.Handler {
	if !v.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, seen := r.Context().Value(ctxKey{}).(identity)
		if !seen {
			raw, ok := bearer(r)
			if !ok {
				id.err = ErrMissingToken
			} else if claims, err := v.Verify(raw); err != nil {
				id.err = err
			} else {
				id.subject = claims.Subject
				r = r.WithContext(withIdentity(r.Context(), id))
			}
		}
		if id.subject == "" {
			err := id.err
			if err == nil {
				err = ErrMissingToken
			}
			v.opts.OnUnauthorized(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

func defaultUnauthorized(w http.ResponseWriter, _ *http.Request, _ error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}
