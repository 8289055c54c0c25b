package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/abdusco/linkdash/internal"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*internal.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: map[string]*internal.User{}}
}

func (m *memoryUsers) Create(_ context.Context, username, hash string) (*internal.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return nil, internal.ErrUserExists
		}
	}
	u := &internal.User{ID: uuid.NewString(), Username: username, PasswordHash: hash, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return u, nil
}

func (m *memoryUsers) GetByUsername(_ context.Context, username string) (*internal.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, internal.ErrUserNotFound
}

func (m *memoryUsers) GetByID(_ context.Context, id string) (*internal.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, internal.ErrUserNotFound
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *internal.User) {
	t.Helper()
	a := NewAuthenticator(newMemoryUsers(), "test-secret", time.Hour, false)
	user, err := a.Register(context.Background(), Credentials{Username: "alice", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return a, user
}

func TestNewCredentials(t *testing.T) {
	tests := []struct {
		in      string
		want    Credentials
		wantErr bool
	}{
		{in: "admin:admin", want: Credentials{Username: "admin", Password: "admin"}},
		{in: "admin:pa:ss", want: Credentials{Username: "admin", Password: "pa:ss"}},
		{in: "admin", wantErr: true},
		{in: ":secret", wantErr: true},
		{in: "admin:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NewCredentials(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewCredentials() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NewCredentials() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("s3cret")

	token, err := signToken("user-1", secret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if id, err := parseToken(token, secret); err != nil || id != "user-1" {
		t.Errorf("parseToken() = %q, %v", id, err)
	}
	if _, err := parseToken(token, []byte("other")); err == nil {
		t.Error("parseToken() accepted a token signed with another secret")
	}

	expired, _ := signToken("user-1", secret, -time.Minute)
	if _, err := parseToken(expired, secret); err == nil {
		t.Error("parseToken() accepted an expired token")
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	a, user := newTestAuthenticator(t)

	if user.PasswordHash == "correct-horse" {
		t.Error("password stored in plain text")
	}

	tests := []struct {
		name     string
		op       func() error
		wantKind internal.Kind
	}{
		{"duplicate username", func() error {
			_, err := a.Register(ctx, Credentials{Username: "alice", Password: "another-pass"})
			return err
		}, internal.KindConflict},
		{"short password", func() error {
			_, err := a.Register(ctx, Credentials{Username: "bob", Password: "short"})
			return err
		}, internal.KindValidation},
		{"colon in username", func() error {
			_, err := a.Register(ctx, Credentials{Username: "b:ob", Password: "long-enough"})
			return err
		}, internal.KindValidation},
		{"wrong password", func() error {
			_, err := a.Authenticate(ctx, Credentials{Username: "alice", Password: "wrong-horse"})
			return err
		}, internal.KindAuth},
		{"unknown user", func() error {
			_, err := a.Authenticate(ctx, Credentials{Username: "mallory", Password: "correct-horse"})
			return err
		}, internal.KindAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			if err == nil {
				t.Fatal("error = nil")
			}
			if kind := internal.KindOf(err); kind != tt.wantKind {
				t.Errorf("error kind = %v, want %v", kind, tt.wantKind)
			}
		})
	}

	got, err := a.Authenticate(ctx, Credentials{Username: "alice", Password: "correct-horse"})
	if err != nil || got.ID != user.ID {
		t.Errorf("Authenticate() = %+v, %v", got, err)
	}
}

func TestEnsureUser(t *testing.T) {
	ctx := context.Background()
	a := NewAuthenticator(newMemoryUsers(), "test-secret", time.Hour, false)
	creds := Credentials{Username: "admin", Password: "admin"}

	for range 2 {
		if err := a.EnsureUser(ctx, creds); err != nil {
			t.Fatalf("EnsureUser() error = %v", err)
		}
	}
	if _, err := a.Authenticate(ctx, creds); err != nil {
		t.Errorf("bootstrap user cannot log in: %v", err)
	}
}

func TestAuthMiddleware(t *testing.T) {
	a, user := newTestAuthenticator(t)
	cookie, err := a.SessionCookie(user.ID)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		setup   func(r *http.Request)
		wantID  string
		wantErr bool
	}{
		{"session cookie", func(r *http.Request) { r.AddCookie(cookie) }, user.ID, false},
		{"bearer token", func(r *http.Request) { r.Header.Set(echo.HeaderAuthorization, "Bearer "+cookie.Value) }, user.ID, false},
		{"basic auth", func(r *http.Request) { r.SetBasicAuth("alice", "correct-horse") }, user.ID, false},
		{"bad basic auth", func(r *http.Request) { r.SetBasicAuth("alice", "nope-nope") }, "", true},
		{"garbage bearer", func(r *http.Request) { r.Header.Set(echo.HeaderAuthorization, "Bearer abc.def.ghi") }, "", true},
		{"no credentials", func(r *http.Request) {}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/links", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var seen string
			handler := NewAuthMiddleware(a)(func(c echo.Context) error {
				seen = UserID(c)
				return c.NoContent(http.StatusOK)
			})

			err := handler(c)
			if tt.wantErr {
				if internal.KindOf(err) != internal.KindAuth {
					t.Errorf("error = %v, want auth error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("handler error = %v", err)
			}
			if seen != tt.wantID {
				t.Errorf("UserID() = %q, want %q", seen, tt.wantID)
			}
		})
	}
}
