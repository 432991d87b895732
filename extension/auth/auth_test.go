package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/routing"
)

const testSecret = "test-secret-test-secret"

func testRoute(cfg map[string]any) extension.Route {
	return extension.Route{
		Path:    "/api/users",
		Methods: []string{http.MethodGet},
		Kind:    extension.KindAPI,
		Config:  routing.ResolvedConfig(cfg),
	}
}

func TestServiceIssueAndValidate(t *testing.T) {
	svc := NewService(testSecret, time.Hour, "test")

	token, err := svc.Issue("user123", "testuser", []string{"admin"})
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user123", claims.UserID)
	assert.Equal(t, "testuser", claims.Username)
	assert.Equal(t, "test", claims.Issuer)
	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("editor"))
}

func TestServiceRejectsExpiredToken(t *testing.T) {
	svc := NewService(testSecret, -time.Minute, "test")

	token, err := svc.Issue("user123", "testuser", nil)
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.Error(t, err)
}

func TestServiceRejectsWrongSecret(t *testing.T) {
	svc := NewService(testSecret, time.Hour, "test")
	other := NewService("another-secret-another", time.Hour, "test")

	token, err := other.Issue("user123", "testuser", nil)
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.Error(t, err)
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	ext, err := New(map[string]any{"secret": testSecret})
	require.NoError(t, err)
	assert.Equal(t, Name, ext.Name())
	assert.Equal(t, extension.ClassSecurity, ext.Class())
}

func TestValidateConfig(t *testing.T) {
	ext, err := New(map[string]any{"secret": testSecret})
	require.NoError(t, err)

	assert.Empty(t, ext.ValidateConfig(map[string]any{"secret": testSecret, "ttl": "30m"}))
	assert.NotEmpty(t, ext.ValidateConfig(map[string]any{}))
	assert.NotEmpty(t, ext.ValidateConfig(map[string]any{"secret": "short"}))
}

func TestApplies(t *testing.T) {
	ext, err := New(map[string]any{"secret": testSecret})
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  map[string]any
		want bool
	}{
		{"absent", map[string]any{}, false},
		{"false", map[string]any{"auth": false}, false},
		{"true", map[string]any{"auth": true}, true},
		{"mapping", map[string]any{"auth": map[string]any{"roles": []any{"admin"}}}, true},
		{"mapping not required", map[string]any{"auth": map[string]any{"required": false}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ext.Applies(testRoute(tt.cfg)))
		})
	}
}

func TestMiddleware(t *testing.T) {
	ext, err := New(map[string]any{"secret": testSecret})
	require.NoError(t, err)

	validToken, err := ext.Service().Issue("user123", "testuser", []string{"player"})
	require.NoError(t, err)

	mw, err := ext.Middleware(testRoute(map[string]any{"auth": true}))
	require.NoError(t, err)
	require.NotNil(t, mw)

	handler := mw(func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"user_id": UserID(c)})
	})

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "Bearer " + validToken, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"invalid format", "InvalidFormat", http.StatusUnauthorized},
		{"invalid token", "Bearer invalid-token", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
			if tt.authHeader != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.authHeader)
			}
			rec := httptest.NewRecorder()
			c := echo.New().NewContext(req, rec)

			err := handler(c)
			if tt.wantStatus == http.StatusOK {
				require.NoError(t, err)
				assert.Contains(t, rec.Body.String(), "user123")
			} else {
				require.Error(t, err)
				httpErr, ok := err.(*echo.HTTPError)
				require.True(t, ok)
				assert.Equal(t, tt.wantStatus, httpErr.Code)
			}
		})
	}
}

func TestMiddlewareRoles(t *testing.T) {
	ext, err := New(map[string]any{"secret": testSecret})
	require.NoError(t, err)

	adminToken, err := ext.Service().Issue("u1", "admin", []string{"admin"})
	require.NoError(t, err)
	playerToken, err := ext.Service().Issue("u2", "player", []string{"player"})
	require.NoError(t, err)

	mw, err := ext.Middleware(testRoute(map[string]any{
		"auth": map[string]any{"roles": []any{"admin", "editor"}},
	}))
	require.NoError(t, err)

	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	run := func(token string) error {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		rec := httptest.NewRecorder()
		return handler(echo.New().NewContext(req, rec))
	}

	assert.NoError(t, run(adminToken))

	err = run(playerToken)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
}

func TestClaimsFrom(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	assert.Nil(t, ClaimsFrom(c))
	assert.Empty(t, UserID(c))

	c.Set(ClaimsKey, &Claims{UserID: "user123"})
	require.NotNil(t, ClaimsFrom(c))
	assert.Equal(t, "user123", UserID(c))
}
