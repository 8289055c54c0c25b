package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSetup(t *testing.T) {
	if err := Setup("debug", false); err != nil {
		t.Errorf("Setup(debug) error = %v", err)
	}
	if err := Setup("loud", false); err == nil {
		t.Error("Setup(loud) error = nil, want error")
	}
}

func TestRequestLoggerHandlesErrorOnce(t *testing.T) {
	tests := []struct {
		name       string
		handler    echo.HandlerFunc
		wantCalls  int
		wantStatus int
	}{
		{"ok", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, 0, http.StatusNoContent},
		{"http error", func(c echo.Context) error { return echo.ErrNotFound }, 1, http.StatusNotFound},
		{"plain error", func(c echo.Context) error { return errors.New("boom") }, 1, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			calls := 0
			e.HTTPErrorHandler = func(err error, c echo.Context) {
				calls++
				code := http.StatusInternalServerError
				var httpErr *echo.HTTPError
				if errors.As(err, &httpErr) {
					code = httpErr.Code
				}
				_ = c.NoContent(code)
			}
			e.Use(RequestLogger())
			e.GET("/", tt.handler)

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			if calls != tt.wantCalls {
				t.Errorf("error handler calls = %d, want %d", calls, tt.wantCalls)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
