// Package session owns the lifecycle of user sessions kept in the external
// cache: creation, lookup with expiry enforcement, refresh of the last access
// time, explicit extension, deletion and the per-user index.
//
// Records are stored as JSON under "<prefix>session:<id>" with a cache TTL
// equal to the time left until ExpiresAt. Each user has a set
// "<prefix>user:sessions:<userId>" listing the ids created for them; entries
// may outlive an expired record and are dropped silently when listed.
//
// Updates are read-modify-write without a version check: two concurrent
// writers on the same id resolve as last writer wins.
package session

import (
	"errors"
	"maps"
	"time"
)

type Status string

const (
	StatusActive  Status = "Active"
	StatusExpired Status = "Expired"
)

var (
	ErrNotFound = errors.New("session: not found")
	// ErrInvalidUser is returned by Create for an empty user id.
	ErrInvalidUser = errors.New("session: user id is required")
	// ErrInvalidExtension is returned by Extend for a non-positive amount.
	ErrInvalidExtension = errors.New("session: additional minutes must be > 0")
)

type Session struct {
	SessionID      string            `json:"sessionId"`
	UserID         string            `json:"userId"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastAccessedAt time.Time         `json:"lastAccessedAt"`
	ExpiresAt      time.Time         `json:"expiresAt"`
	Status         Status            `json:"status"`
	Metadata       map[string]string `json:"metadata"`
}

// Live reports whether the session is usable at now.
func (s Session) Live(now time.Time) bool {
	return s.Status == StatusActive && now.Before(s.ExpiresAt)
}

func (s Session) clone() Session {
	s.Metadata = maps.Clone(s.Metadata)
	if s.Metadata == nil {
		s.Metadata = map[string]string{}
	}
	return s
}
