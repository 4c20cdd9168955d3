package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/occupancy-go/internal/logger"
)

func TestRequestIDGeneratesUUID(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewRequestID())
	var seen string
	e.GET("/ping", func(c echo.Context) error {
		seen = RequestID(c)
		return c.NoContent(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))

	header := rec.Header().Get(echo.HeaderXRequestID)
	_, err := uuid.Parse(header)
	require.NoError(t, err)
	assert.Equal(t, header, seen)
}

func TestRequestIDKeepsIncomingHeader(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewRequestID())
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
	req.Header.Set(echo.HeaderXRequestID, "upstream-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "upstream-1", rec.Header().Get(echo.HeaderXRequestID))
}

func TestRequestLoggerWritesErrors(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)

	e := echo.New()
	e.Use(NewRequestID(), NewRequestLogger(log))
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", http.NoBody))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	out := buf.String()
	assert.Contains(t, out, "uri=/fail")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "short and stout")
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewCORS(SecurityConfig{AllowedOrigins: []string{"http://dashboard.local"}}))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
	req.Header.Set(echo.HeaderOrigin, "http://dashboard.local")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "http://dashboard.local", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
