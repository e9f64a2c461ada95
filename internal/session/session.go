// Package session holds the signed-in user and bearer token. It is the only
// shared mutable state of the client; every mutation goes through Store and
// is persisted under the keys "token" and "user".
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"trade-journal/internal/events"
	"trade-journal/internal/journal"
	"trade-journal/internal/logging"

	"github.com/golang-jwt/jwt/v5"
)

const (
	KeyToken = "token"
	KeyUser  = "user"
)

var (
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrUserMismatch     = errors.New("session: user id does not match the signed-in user")
)

// Authenticator exchanges credentials for a token
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*journal.LoginResponse, error)
}

// Snapshot is a value copy of the session
type Snapshot struct {
	User          *journal.User `json:"user"`
	Authenticated bool          `json:"authenticated"`
	ExpiresAt     *time.Time    `json:"expiresAt,omitempty"`
}

type Store struct {
	mu        sync.RWMutex
	user      *journal.User
	token     string
	expiresAt time.Time

	persister Persister
	auth      Authenticator
	bus       *events.EventBus
	logger    *logging.Logger
	now       func() time.Time
}

// NewStore creates an empty store. Call Restore to load a persisted session.
func NewStore(p Persister, auth Authenticator, bus *events.EventBus) *Store {
	if p == nil {
		p = NewMemoryPersister()
	}
	return &Store{
		persister: p,
		auth:      auth,
		bus:       bus,
		logger:    logging.SessionContext(p.Name()),
		now:       time.Now,
	}
}

// Restore loads token and user from the persister. A token that has
// already expired is discarded together with the user.
func (s *Store) Restore(ctx context.Context) error {
	token, err := s.persister.Get(ctx, KeyToken)
	if errors.Is(err, ErrNoValue) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore token: %w", err)
	}

	var user *journal.User
	raw, err := s.persister.Get(ctx, KeyUser)
	switch {
	case errors.Is(err, ErrNoValue):
	case err != nil:
		return fmt.Errorf("failed to restore user: %w", err)
	default:
		var u journal.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil || u.Validate() != nil {
			s.logger.Warn("Discarding unreadable persisted user")
		} else {
			user = &u
		}
	}

	expiresAt := tokenExpiry(token)
	if !expiresAt.IsZero() && !s.now().Before(expiresAt) {
		s.logger.Info("Persisted token expired, clearing session", "expired_at", expiresAt.Format(time.RFC3339))
		return s.clear(ctx)
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.expiresAt = expiresAt
	s.mu.Unlock()

	s.publish()
	return nil
}

// Login authenticates against the backend and persists the result
func (s *Store) Login(ctx context.Context, email, password string) (*journal.User, error) {
	if s.auth == nil {
		return nil, errors.New("session: no authenticator configured")
	}
	resp, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if err := s.persist(ctx, resp.Token, &resp.User); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.token = resp.Token
	user := resp.User
	s.user = &user
	s.expiresAt = tokenExpiry(resp.Token)
	s.mu.Unlock()

	s.logger.Info("Signed in", "user_id", user.ID)
	s.publish()
	return &user, nil
}

// Logout clears memory and persisted state
func (s *Store) Logout(ctx context.Context) error {
	if err := s.clear(ctx); err != nil {
		return err
	}
	s.logger.Info("Signed out")
	return nil
}

// UpdateUser replaces the stored profile of the signed-in user
func (s *Store) UpdateUser(ctx context.Context, user journal.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	s.mu.RLock()
	current, token := s.user, s.token
	s.mu.RUnlock()

	if token == "" {
		return ErrNotAuthenticated
	}
	if current != nil && current.ID != user.ID {
		return ErrUserMismatch
	}

	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.persister.Set(ctx, KeyUser, string(data)); err != nil {
		return fmt.Errorf("failed to persist user: %w", err)
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()

	s.publish()
	return nil
}

// Snapshot returns a copy safe to hand to other goroutines
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Authenticated: s.authenticatedLocked()}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	if !s.expiresAt.IsZero() {
		t := s.expiresAt
		snap.ExpiresAt = &t
	}
	return snap
}

// Token implements journal.TokenSource
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticatedLocked() {
		return ""
	}
	return s.token
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticatedLocked()
}

// HasRole reports whether the signed-in user has one of roles
func (s *Store) HasRole(roles ...journal.Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.authenticatedLocked() || s.user == nil {
		return false
	}
	for _, r := range roles {
		if s.user.Role == r {
			return true
		}
	}
	return false
}

// UserID returns the signed-in user's id or ""
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

func (s *Store) authenticatedLocked() bool {
	if s.token == "" {
		return false
	}
	return s.expiresAt.IsZero() || s.now().Before(s.expiresAt)
}

func (s *Store) persist(ctx context.Context, token string, user *journal.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.persister.Set(ctx, KeyToken, token); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	if err := s.persister.Set(ctx, KeyUser, string(data)); err != nil {
		return fmt.Errorf("failed to persist user: %w", err)
	}
	return nil
}

func (s *Store) clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	err := s.persister.Remove(ctx, KeyToken, KeyUser)
	s.publish()
	if err != nil {
		return fmt.Errorf("failed to clear persisted session: %w", err)
	}
	return nil
}

func (s *Store) publish() {
	snap := s.Snapshot()
	data := map[string]interface{}{
		"authenticated": snap.Authenticated,
	}
	userID := ""
	if snap.User != nil {
		userID = snap.User.ID
		data["user"] = snap.User
	}
	s.bus.Publish(events.Event{
		Type:   events.EventSessionChanged,
		UserID: userID,
		Data:   data,
	})
}

// tokenExpiry reads the exp claim without verifying the signature; the
// backend remains the authority on validity. Opaque tokens have no expiry.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
