package handler

import (
	"net/http"

	"github.com/abdusco/linkdash/internal"
	"github.com/abdusco/linkdash/internal/auth"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type AuthHandler struct {
	authenticator *auth.Authenticator
}

func NewAuthHandler(authenticator *auth.Authenticator) *AuthHandler {
	return &AuthHandler{authenticator: authenticator}
}

type SessionResponse struct {
	User  *internal.User `json:"user"`
	Token string         `json:"token"`
}

// Register handles POST /auth/register and starts a session for the new user.
func (h *AuthHandler) Register(c echo.Context) error {
	var req auth.Credentials
	if err := c.Bind(&req); err != nil {
		return internal.Validation("invalid request body")
	}

	user, err := h.authenticator.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}

	log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return h.startSession(c, http.StatusCreated, user)
}

// Login handles POST /auth/login - validates credentials and sets the JWT cookie
func (h *AuthHandler) Login(c echo.Context) error {
	var req auth.Credentials
	if err := c.Bind(&req); err != nil {
		return internal.Validation("invalid request body")
	}

	user, err := h.authenticator.Authenticate(c.Request().Context(), req)
	if err != nil {
		log.Warn().Str("username", req.Username).Msg("failed login attempt")
		return err
	}
	return h.startSession(c, http.StatusOK, user)
}

func (h *AuthHandler) startSession(c echo.Context, status int, user *internal.User) error {
	cookie, err := h.authenticator.SessionCookie(user.ID)
	if err != nil {
		return internal.Upstream(err)
	}
	c.SetCookie(cookie)

	return c.JSON(status, SessionResponse{User: user, Token: cookie.Value})
}

// Logout handles POST /auth/logout - clears the JWT cookie
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(h.authenticator.ExpiredCookie())
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) Me(c echo.Context) error {
	user, err := h.authenticator.User(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"user": user})
}
