package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trade-journal/internal/events"
	"trade-journal/internal/journal"

	"github.com/golang-jwt/jwt/v5"
)

type fakeAuth struct {
	resp *journal.LoginResponse
	err  error
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (*journal.LoginResponse, error) {
	return f.resp, f.err
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return s
}

func TestLoginPersistsAndPublishes(t *testing.T) {
	p := NewMemoryPersister()
	bus := events.NewSyncEventBus()
	var changes []bool
	bus.Subscribe(events.EventSessionChanged, func(e events.Event) {
		changes = append(changes, e.Data["authenticated"].(bool))
	})

	token := signedToken(t, time.Now().Add(time.Hour))
	store := NewStore(p, &fakeAuth{resp: &journal.LoginResponse{
		Token: token,
		User:  journal.User{ID: "u1", Name: "Ann", Role: journal.RoleAdmin},
	}}, bus)

	user, err := store.Login(context.Background(), "ann@example.com", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("Expected user u1, got %s", user.ID)
	}
	if store.Token() != token {
		t.Error("Expected token to be exposed")
	}
	if !store.HasRole(journal.RoleAdmin) {
		t.Error("Expected admin role")
	}
	if store.HasRole(journal.RoleUser) {
		t.Error("Did not expect user role")
	}

	stored, err := p.Get(context.Background(), KeyToken)
	if err != nil || stored != token {
		t.Errorf("Expected persisted token, got %q (%v)", stored, err)
	}
	rawUser, _ := p.Get(context.Background(), KeyUser)
	if !strings.Contains(rawUser, `"id":"u1"`) {
		t.Errorf("Expected serialised user, got %s", rawUser)
	}

	if len(changes) != 1 || !changes[0] {
		t.Errorf("Expected one authenticated change event, got %v", changes)
	}
}

func TestLoginFailureLeavesStateUntouched(t *testing.T) {
	store := NewStore(nil, &fakeAuth{err: journal.ErrUnauthorized}, nil)

	if _, err := store.Login(context.Background(), "a", "b"); !errors.Is(err, journal.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
	if store.IsAuthenticated() {
		t.Error("Expected store to stay signed out")
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	p := NewMemoryPersister()
	store := NewStore(p, &fakeAuth{resp: &journal.LoginResponse{
		Token: "opaque-token",
		User:  journal.User{ID: "u1"},
	}}, nil)
	ctx := context.Background()

	if _, err := store.Login(ctx, "a", "b"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := store.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if store.IsAuthenticated() || store.Token() != "" || store.Snapshot().User != nil {
		t.Error("Expected empty session after logout")
	}
	if _, err := p.Get(ctx, KeyToken); !errors.Is(err, ErrNoValue) {
		t.Errorf("Expected token removed, got %v", err)
	}
}

func TestRestore(t *testing.T) {
	tests := []struct {
		name          string
		token         string
		user          string
		authenticated bool
		wantUser      bool
	}{
		{"valid jwt", "", `{"id":"u1","role":"user"}`, true, true},
		{"opaque token", "opaque", `{"id":"u1"}`, true, true},
		{"unreadable user", "opaque", `not json`, true, false},
		{"expired jwt", "expired", `{"id":"u1"}`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := tt.token
			switch token {
			case "":
				token = signedToken(t, time.Now().Add(time.Hour))
			case "expired":
				token = signedToken(t, time.Now().Add(-time.Minute))
			}

			p := NewMemoryPersister()
			ctx := context.Background()
			p.Set(ctx, KeyToken, token)
			p.Set(ctx, KeyUser, tt.user)

			store := NewStore(p, nil, nil)
			if err := store.Restore(ctx); err != nil {
				t.Fatalf("Restore failed: %v", err)
			}
			if store.IsAuthenticated() != tt.authenticated {
				t.Errorf("Expected authenticated=%v", tt.authenticated)
			}
			if (store.Snapshot().User != nil) != tt.wantUser {
				t.Errorf("Expected user present=%v", tt.wantUser)
			}
			if !tt.authenticated {
				if _, err := p.Get(ctx, KeyToken); !errors.Is(err, ErrNoValue) {
					t.Error("Expected expired token to be removed from storage")
				}
			}
		})
	}
}

func TestRestoreEmpty(t *testing.T) {
	store := NewStore(NewMemoryPersister(), nil, nil)
	if err := store.Restore(context.Background()); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if store.IsAuthenticated() {
		t.Error("Expected signed-out store")
	}
}

func TestTokenExpiresInMemory(t *testing.T) {
	store := NewStore(nil, &fakeAuth{resp: &journal.LoginResponse{
		Token: signedToken(t, time.Now().Add(time.Hour)),
		User:  journal.User{ID: "u1"},
	}}, nil)
	if _, err := store.Login(context.Background(), "a", "b"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if store.IsAuthenticated() {
		t.Error("Expected expired session to be unauthenticated")
	}
	if store.Token() != "" {
		t.Error("Expected no token once expired")
	}
}

func TestUpdateUser(t *testing.T) {
	store := NewStore(nil, &fakeAuth{resp: &journal.LoginResponse{
		Token: "opaque",
		User:  journal.User{ID: "u1", Name: "Ann"},
	}}, nil)
	ctx := context.Background()

	if err := store.UpdateUser(ctx, journal.User{ID: "u1"}); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}

	store.Login(ctx, "a", "b")

	if err := store.UpdateUser(ctx, journal.User{ID: "u2"}); !errors.Is(err, ErrUserMismatch) {
		t.Errorf("Expected ErrUserMismatch, got %v", err)
	}
	if err := store.UpdateUser(ctx, journal.User{ID: "u1", Name: "Annie"}); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	if store.Snapshot().User.Name != "Annie" {
		t.Errorf("Expected name Annie, got %s", store.Snapshot().User.Name)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store := NewStore(nil, &fakeAuth{resp: &journal.LoginResponse{
		Token: "opaque",
		User:  journal.User{ID: "u1", Name: "Ann"},
	}}, nil)
	store.Login(context.Background(), "a", "b")

	snap := store.Snapshot()
	snap.User.Name = "changed"

	if store.Snapshot().User.Name != "Ann" {
		t.Error("Expected snapshot mutation not to leak into the store")
	}
}

func TestFilePersisterSealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	key := strings.Repeat("ab", 32)
	ctx := context.Background()

	fp, err := NewFilePersister(path, key)
	if err != nil {
		t.Fatalf("NewFilePersister failed: %v", err)
	}
	if err := fp.Set(ctx, KeyToken, "secret-token"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "secret-token") {
		t.Error("Expected sealed file not to contain the token in clear")
	}

	again, _ := NewFilePersister(path, key)
	if v, err := again.Get(ctx, KeyToken); err != nil || v != "secret-token" {
		t.Errorf("Expected secret-token, got %q (%v)", v, err)
	}

	wrong, _ := NewFilePersister(path, strings.Repeat("cd", 32))
	if _, err := wrong.Get(ctx, KeyToken); err == nil {
		t.Error("Expected error with the wrong key")
	}
}

func TestFilePersisterPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()
	fp, _ := NewFilePersister(path, "")

	if _, err := fp.Get(ctx, KeyUser); !errors.Is(err, ErrNoValue) {
		t.Errorf("Expected ErrNoValue for missing file, got %v", err)
	}
	fp.Set(ctx, KeyToken, "t")
	fp.Set(ctx, KeyUser, `{"id":"u1"}`)
	fp.Remove(ctx, KeyToken)

	if _, err := fp.Get(ctx, KeyToken); !errors.Is(err, ErrNoValue) {
		t.Errorf("Expected token removed, got %v", err)
	}
	if v, _ := fp.Get(ctx, KeyUser); v != `{"id":"u1"}` {
		t.Errorf("Expected user kept, got %s", v)
	}
}

func TestFilePersisterBadKey(t *testing.T) {
	if _, err := NewFilePersister("x", "zz"); err == nil {
		t.Error("Expected error for non-hex key")
	}
	if _, err := NewFilePersister("x", "abcd"); err == nil {
		t.Error("Expected error for short key")
	}
}
