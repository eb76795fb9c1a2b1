package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/syncbridge/internal/logger"
)

func TestRequestLoggerSkipsPathsAndWarnsOnServerErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	e := echo.New()
	e.Use(NewRequestLoggerWithSkipper(logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC), SkipPaths("/health")))
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/boom", func(c echo.Context) error { return c.NoContent(http.StatusBadGateway) })

	for _, path := range []string{"/health", "/ok", "/boom"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	var lines []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "/ok", lines[0]["uri"])
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "/boom", lines[1]["uri"])
	assert.Equal(t, "WARN", lines[1]["level"])
}
