package handler

import (
	"net/http"

	"github.com/abdusco/linkdash/web"
	"github.com/labstack/echo/v4"
)

type PageHandler struct{}

func NewPageHandler() *PageHandler {
	return &PageHandler{}
}

func (h *PageHandler) Expired(c echo.Context) error {
	return h.serve(c, "expired.html", http.StatusGone)
}

func (h *PageHandler) NotFound(c echo.Context) error {
	return h.serve(c, "not-found.html", http.StatusNotFound)
}

func (h *PageHandler) serve(c echo.Context, name string, status int) error {
	data, err := web.FS.ReadFile(name)
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to read "+name)
	}
	return c.HTMLBlob(status, data)
}
