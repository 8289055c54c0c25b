package handler

import (
	"net/http"

	"github.com/abdusco/linkdash/internal"
	"github.com/abdusco/linkdash/internal/service"
	"github.com/labstack/echo/v4"
)

type RedirectConfig struct {
	Permanent   bool
	ExpiredURL  string
	NotFoundURL string
}

type RedirectHandler struct {
	resolver *service.Resolver
	cfg      RedirectConfig
}

func NewRedirectHandler(resolver *service.Resolver, cfg RedirectConfig) *RedirectHandler {
	return &RedirectHandler{resolver: resolver, cfg: cfg}
}

// Redirect serves GET /:shortCode. It never answers with an error body: every
// outcome is a redirect.
func (h *RedirectHandler) Redirect(c echo.Context) error {
	req := c.Request()
	res := h.resolver.Resolve(req.Context(), c.Param("shortCode"), internal.ClickMeta{
		ForwardedFor: req.Header.Get(echo.HeaderXForwardedFor),
		RealIP:       req.Header.Get(echo.HeaderXRealIP),
		UserAgent:    req.UserAgent(),
		Referer:      req.Referer(),
	})

	switch res.Outcome {
	case service.OutcomeRedirect:
		status := http.StatusFound
		if h.cfg.Permanent {
			status = http.StatusMovedPermanently
		}
		return c.Redirect(status, res.URL)
	case service.OutcomeExpired:
		return c.Redirect(http.StatusFound, h.cfg.ExpiredURL)
	default:
		return c.Redirect(http.StatusFound, h.cfg.NotFoundURL)
	}
}
