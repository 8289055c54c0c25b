package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/abdusco/linkdash/internal"
	"github.com/abdusco/linkdash/internal/validation"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	cookieName = "auth_token"
	userIDKey  = "user_id"
)

type UserStore interface {
	Create(ctx context.Context, username, passwordHash string) (*internal.User, error)
	GetByUsername(ctx context.Context, username string) (*internal.User, error)
	GetByID(ctx context.Context, id string) (*internal.User, error)
}

type Credentials struct {
	Username string `json:"username" validate:"required,min=3,max=64,excludesall=:"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// NewCredentials parses "username:password".
func NewCredentials(s string) (Credentials, error) {
	username, password, ok := strings.Cut(s, ":")
	if !ok || username == "" || password == "" {
		return Credentials{}, fmt.Errorf("invalid credentials format")
	}
	return Credentials{Username: username, Password: password}, nil
}

type Authenticator struct {
	users        UserStore
	jwtSecret    []byte
	tokenTTL     time.Duration
	secureCookie bool
}

func NewAuthenticator(users UserStore, jwtSecret string, tokenTTL time.Duration, secureCookie bool) *Authenticator {
	return &Authenticator{
		users:        users,
		jwtSecret:    []byte(jwtSecret),
		tokenTTL:     tokenTTL,
		secureCookie: secureCookie,
	}
}

func (a *Authenticator) Register(ctx context.Context, creds Credentials) (*internal.User, error) {
	if err := validation.Struct(&creds); err != nil {
		return nil, err
	}
	return a.createUser(ctx, creds)
}

func (a *Authenticator) createUser(ctx context.Context, creds Credentials) (*internal.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, internal.Upstream(fmt.Errorf("hash password: %w", err))
	}

	user, err := a.users.Create(ctx, creds.Username, string(hash))
	if err != nil {
		if errors.Is(err, internal.ErrUserExists) {
			return nil, internal.Conflict(err)
		}
		return nil, internal.Upstream(err)
	}
	return user, nil
}

// Authenticate checks a username and password pair.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (*internal.User, error) {
	user, err := a.users.GetByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return nil, internal.Unauthorized(internal.ErrInvalidCredentials.Error())
		}
		return nil, internal.Upstream(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, internal.Unauthorized(internal.ErrInvalidCredentials.Error())
	}
	return user, nil
}

// EnsureUser creates the bootstrap account unless the username already exists.
// Its password is not subject to the registration policy.
func (a *Authenticator) EnsureUser(ctx context.Context, creds Credentials) error {
	_, err := a.users.GetByUsername(ctx, creds.Username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, internal.ErrUserNotFound) {
		return err
	}

	user, err := a.createUser(ctx, creds)
	if err != nil {
		return err
	}
	log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("bootstrap user created")
	return nil
}

func (a *Authenticator) User(ctx context.Context, id string) (*internal.User, error) {
	user, err := a.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return nil, internal.Unauthorized("session user no longer exists")
		}
		return nil, internal.Upstream(err)
	}
	return user, nil
}

// SessionCookie issues a signed session for userID.
func (a *Authenticator) SessionCookie(userID string) (*http.Cookie, error) {
	token, err := signToken(userID, a.jwtSecret, a.tokenTTL)
	if err != nil {
		return nil, err
	}

	return &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(a.tokenTTL.Seconds()),
	}, nil
}

func (a *Authenticator) ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	}
}

// UserID returns the authenticated principal set by the middleware.
func UserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

// NewAuthMiddleware accepts a session cookie, a bearer token or HTTP basic
// credentials, in that order, and rejects the request with 401 otherwise.
func NewAuthMiddleware(a *Authenticator) echo.MiddlewareFunc {
	type authStrategy func(c echo.Context) (string, bool)
	strategies := []authStrategy{
		a.authWithCookie,
		a.authWithBearer,
		a.authWithBasicAuth,
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, strategy := range strategies {
				if userID, ok := strategy(c); ok {
					c.Set(userIDKey, userID)
					return next(c)
				}
			}
			return internal.Unauthorized("authentication required")
		}
	}
}

func (a *Authenticator) authWithCookie(c echo.Context) (string, bool) {
	cookie, err := c.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	userID, err := parseToken(cookie.Value, a.jwtSecret)
	if err != nil {
		log.Debug().Err(err).Msg("rejected session cookie")
		return "", false
	}

	// sliding session
	if refreshed, err := a.SessionCookie(userID); err == nil {
		c.SetCookie(refreshed)
	}
	return userID, true
}

func (a *Authenticator) authWithBearer(c echo.Context) (string, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}

	userID, err := parseToken(token, a.jwtSecret)
	if err != nil {
		log.Debug().Err(err).Msg("rejected bearer token")
		return "", false
	}
	return userID, true
}

func (a *Authenticator) authWithBasicAuth(c echo.Context) (string, bool) {
	username, password, ok := c.Request().BasicAuth()
	if !ok {
		return "", false
	}

	user, err := a.Authenticate(c.Request().Context(), Credentials{Username: username, Password: password})
	if err != nil {
		return "", false
	}

	if cookie, err := a.SessionCookie(user.ID); err == nil {
		cookie.Secure = cookie.Secure || c.IsTLS()
		c.SetCookie(cookie)
	}
	return user.ID, true
}
