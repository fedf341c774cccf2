package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestAuthMiddleware(t *testing.T) {
	const key = "secret-key-123"

	tests := []struct {
		name       string
		masterKey  string
		path       string
		authHeader string
		wantStatus int
		wantBody   string
	}{
		{"no master key configured", "", "/v1/projects", "", http.StatusOK, "ok"},
		{"valid key", key, "/v1/projects", "Bearer " + key, http.StatusOK, "ok"},
		{"skip path needs no key", key, "/health", "", http.StatusOK, "ok"},
		{
			"missing header", key, "/v1/projects", "", http.StatusUnauthorized,
			`{"error":{"message":"missing authorization header","type":"authentication_error"}}`,
		},
		{
			"not a bearer token", key, "/v1/projects", key, http.StatusUnauthorized,
			`{"error":{"message":"invalid authorization header format, expected 'Bearer <token>'","type":"authentication_error"}}`,
		},
		{
			"wrong key", key, "/v1/projects", "Bearer wrong-key", http.StatusUnauthorized,
			`{"error":{"message":"invalid master key","type":"authentication_error"}}`,
		},
		{
			"empty bearer token", key, "/v1/projects", "Bearer ", http.StatusUnauthorized,
			`{"error":{"message":"invalid master key","type":"authentication_error"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Use(AuthMiddleware(tt.masterKey, []string{"/health"}))
			ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
			e.GET("/health", ok)
			e.GET("/v1/projects", ok)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			} else {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}
