/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, mutate func(*Config)) http.Handler {
	t.Helper()

	cfg := validConfig()
	cfg.metrics = true
	if mutate != nil {
		mutate(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return newRouter(ctx, cfg, newMetrics(), make(chan error, 8))
}

func get(t *testing.T, h http.Handler, path string) (*http.Response, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func TestStaticRoutes(t *testing.T) {
	h := newTestRouter(t, nil)

	tests := []struct {
		path        string
		status      int
		contentType string
		contains    string
	}{
		{path: "/healthz", status: http.StatusOK, contentType: "text/plain; charset=utf-8", contains: "Ok"},
		{path: "/version", status: http.StatusOK, contentType: "text/plain; charset=utf-8", contains: "whopays v" + releaseVersion},
		{path: "/robots.txt", status: http.StatusOK, contentType: "text/plain; charset=utf-8", contains: "Disallow: /"},
		{path: "/assets/whopays/app.js", status: http.StatusOK, contentType: "text/javascript; charset=utf-8", contains: "WebSocket"},
		{path: "/assets/whopays/app.css", status: http.StatusOK, contentType: "text/css; charset=utf-8", contains: ".wheel"},
		{path: "/assets/whopays/missing.js", status: http.StatusNotFound},
		{path: "/favicon.svg", status: http.StatusOK, contentType: "image/svg+xml", contains: "<svg"},
		{path: "/metrics", status: http.StatusOK, contains: "whopays_games_created_total"},
		{path: "/nowhere", status: http.StatusNotFound, contentType: "text/html; charset=utf-8", contains: "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := get(t, h, tt.path)

			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			}
			assert.Contains(t, body, tt.contains)
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := newTestRouter(t, nil)

	resp, _ := get(t, h, "/healthz")
	assert.Equal(t, "default-src 'self'", resp.Header.Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Empty(t, resp.Header.Get("Strict-Transport-Security"))
}

func TestHomeRedirectsToGame(t *testing.T) {
	h := newTestRouter(t, func(c *Config) { c.prefix = "/party" })

	resp, _ := get(t, h, "/party/")
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "/party/whopays", resp.Header.Get("Location"))

	resp, _ = get(t, h, "/party/whopays")
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Regexp(t, `^/party/whopays/[A-Za-z0-9]{8}$`, resp.Header.Get("Location"))
}

func TestOptionalRoutesStayOff(t *testing.T) {
	h := newTestRouter(t, func(c *Config) { c.metrics = false })

	resp, _ := get(t, h, "/metrics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, h, "/pprof/heap")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", realIP(r))

	r.Header.Set("X-Real-IP", "192.0.2.7")
	assert.Equal(t, "192.0.2.7:1234", realIP(r))

	r.Header.Set("CF-Connecting-IP", "2001:db8::1")
	assert.Equal(t, "[2001:db8::1]:1234", realIP(r))
}
