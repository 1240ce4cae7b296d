package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bot-gateway/cache"
	"bot-gateway/logging"
)

const DefaultTTL = 30 * time.Minute

// Recorder is notified of lifecycle events, e.g. for metrics.
type Recorder interface {
	SessionCreated()
	SessionExpired()
	SessionDeleted()
}

type Option func(*Store)

func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithKeyPrefix namespaces every key, e.g. "bff:".
func WithKeyPrefix(p string) Option {
	return func(s *Store) { s.prefix = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.rec = r }
}

// Store is safe for concurrent use; it holds no state besides the cache handle.
type Store struct {
	cache  cache.Store
	ttl    time.Duration
	prefix string
	now    func() time.Time
	newID  func() string
	log    zerolog.Logger
	rec    Recorder
}

func New(c cache.Store, opts ...Option) *Store {
	s := &Store{
		cache: c,
		ttl:   DefaultTTL,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) sessionKey(id string) string { return s.prefix + "session:" + id }

func (s *Store) userKey(userID string) string { return s.prefix + "user:sessions:" + userID }

// Create stores a new Active session for userID and indexes it under the user.
func (s *Store) Create(ctx context.Context, userID string, metadata map[string]string) (Session, error) {
	if userID == "" {
		return Session{}, ErrInvalidUser
	}

	now := s.now()
	sess := Session{
		SessionID:      s.newID(),
		UserID:         userID,
		CreatedAt:      now,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(s.ttl),
		Status:         StatusActive,
		Metadata:       metadata,
	}.clone()

	if err := s.write(ctx, sess, now); err != nil {
		return Session{}, err
	}
	if err := s.cache.SetAdd(ctx, s.userKey(userID), sess.SessionID); err != nil {
		// without an index entry the session could never be listed; undo it
		if _, derr := s.cache.Delete(ctx, s.sessionKey(sess.SessionID)); derr != nil {
			s.logger(ctx).Warn().Err(derr).Str("session_id", sess.SessionID).Msg("rollback of unindexed session failed")
		}
		return Session{}, fmt.Errorf("index session: %w", err)
	}

	s.logger(ctx).Info().
		Str("session_id", sess.SessionID).
		Str("user_id", userID).
		Time("expires_at", sess.ExpiresAt).
		Msg("session created")
	if s.rec != nil {
		s.rec.SessionCreated()
	}
	return sess.clone(), nil
}

// Get returns a live session and records the access. Missing, expired and
// already-expired-marked sessions all report ErrNotFound; a session found past
// its expiry is marked Expired in the cache first.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	sess, now, err := s.live(ctx, id)
	if err != nil {
		return Session{}, err
	}

	sess.LastAccessedAt = now
	if err := s.write(ctx, sess, now); err != nil {
		return Session{}, err
	}
	return sess.clone(), nil
}

// Validate reports whether id names a live session. Only cache failures are
// returned as errors.
func (s *Store) Validate(ctx context.Context, id string) (bool, error) {
	_, err := s.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Extend pushes ExpiresAt of a live session forward by minutes and re-arms
// the cache TTL to match. Missing or expired sessions report ErrNotFound and
// nothing is written.
func (s *Store) Extend(ctx context.Context, id string, minutes int) (Session, error) {
	if minutes <= 0 {
		return Session{}, ErrInvalidExtension
	}

	sess, now, err := s.live(ctx, id)
	if err != nil {
		return Session{}, err
	}

	sess.LastAccessedAt = now
	sess.ExpiresAt = sess.ExpiresAt.Add(time.Duration(minutes) * time.Minute)
	if err := s.write(ctx, sess, now); err != nil {
		return Session{}, err
	}

	s.logger(ctx).Info().
		Str("session_id", id).
		Int("additional_minutes", minutes).
		Time("expires_at", sess.ExpiresAt).
		Msg("session extended")
	return sess.clone(), nil
}

// Delete removes the record and its index entry. It reports whether a record
// existed; deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	sess, loadErr := s.load(ctx, id)
	if loadErr != nil && !errors.Is(loadErr, ErrNotFound) && !errors.Is(loadErr, errCorrupt) {
		return false, loadErr
	}

	existed, err := s.cache.Delete(ctx, s.sessionKey(id))
	if err != nil {
		return false, err
	}
	switch {
	case sess.UserID != "":
		if err := s.cache.SetRemove(ctx, s.userKey(sess.UserID), id); err != nil {
			return existed, fmt.Errorf("unindex session: %w", err)
		}
	case errors.Is(loadErr, errCorrupt):
		// the owner is unknown, ListByUser skips the dangling index entry
		s.logger(ctx).Warn().Err(loadErr).Str("session_id", id).Msg("deleted unreadable session, user index entry left behind")
	}

	if existed {
		s.logger(ctx).Info().Str("session_id", id).Msg("session deleted")
		if s.rec != nil {
			s.rec.SessionDeleted()
		}
	}
	return existed, nil
}

// ListByUser resolves every indexed id through Get, skipping the ones that no
// longer resolve. Index entries are never pruned here. The result is ordered
// by creation time.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	ids, err := s.cache.SetMembers(ctx, s.userKey(userID))
	if err != nil {
		return nil, err
	}

	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) || errors.Is(err, errCorrupt) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var errCorrupt = errors.New("session: corrupt record")

// live loads id and enforces expiry. An Active record found past ExpiresAt is
// persisted as Expired, keeping the remaining cache TTL.
func (s *Store) live(ctx context.Context, id string) (Session, time.Time, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		if errors.Is(err, errCorrupt) {
			s.logger(ctx).Error().Err(err).Str("session_id", id).Msg("unreadable session record")
			return Session{}, time.Time{}, ErrNotFound
		}
		return Session{}, time.Time{}, err
	}

	now := s.now()
	if sess.Status == StatusExpired {
		return Session{}, now, ErrNotFound
	}
	if !sess.Live(now) {
		sess.Status = StatusExpired
		if err := s.markExpired(ctx, sess); err != nil {
			return Session{}, now, err
		}
		return Session{}, now, ErrNotFound
	}
	return sess, now, nil
}

func (s *Store) markExpired(ctx context.Context, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if _, err := s.cache.Replace(ctx, s.sessionKey(sess.SessionID), string(data)); err != nil {
		return err
	}

	s.logger(ctx).Info().Str("session_id", sess.SessionID).Time("expired_at", sess.ExpiresAt).Msg("session expired")
	if s.rec != nil {
		s.rec.SessionExpired()
	}
	return nil
}

func (s *Store) load(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrNotFound
	}
	raw, err := s.cache.Get(ctx, s.sessionKey(id))
	if errors.Is(err, cache.ErrMiss) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return Session{}, fmt.Errorf("%w %s: %v", errCorrupt, id, err)
	}
	return sess, nil
}

// write stores the full record with a TTL equal to the time left until
// ExpiresAt. A record with no time left is not written.
func (s *Store) write(ctx context.Context, sess Session, now time.Time) error {
	ttl := sess.ExpiresAt.Sub(now)
	if ttl <= 0 {
		s.logger(ctx).Warn().Str("session_id", sess.SessionID).Msg("skipping write of session without remaining ttl")
		return nil
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.cache.Set(ctx, s.sessionKey(sess.SessionID), string(data), ttl)
}

func (s *Store) logger(ctx context.Context) *zerolog.Logger {
	return logging.FromContext(ctx, &s.log)
}
