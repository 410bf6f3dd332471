package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

type stubValidator map[string][2]string

func (s stubValidator) Identify(token string) (string, string, error) {
	id, ok := s[token]
	if !ok {
		return "", "", errors.New("invalid token")
	}
	return id[0], id[1], nil
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	validator := stubValidator{
		"user-token":  {"USR_1", types.RoleUser},
		"admin-token": {"USR_ADMIN", types.RoleAdmin},
	}

	router := gin.New()
	router.GET("/me", JWTAuth(validator), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c)+"|"+Role(c))
	})
	router.GET("/admin", JWTAuth(validator), AdminOnly(), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func serve(router *gin.Engine, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	router := newRouter()

	tests := []struct {
		name   string
		path   string
		header string
		want   int
		body   string
	}{
		{"bearer header", "/me", "Bearer user-token", http.StatusOK, "USR_1|user"},
		{"lowercase scheme", "/me", "bearer user-token", http.StatusOK, "USR_1|user"},
		{"query token", "/me?token=admin-token", "", http.StatusOK, "USR_ADMIN|admin"},
		{"missing", "/me", "", http.StatusUnauthorized, ""},
		{"malformed header", "/me", "Token user-token", http.StatusUnauthorized, ""},
		{"unknown token", "/me", "Bearer nope", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.path, tt.header)
			assert.Equal(t, tt.want, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestAdminOnly(t *testing.T) {
	router := newRouter()

	assert.Equal(t, http.StatusForbidden, serve(router, "/admin", "Bearer user-token").Code)
	assert.Equal(t, http.StatusOK, serve(router, "/admin", "Bearer admin-token").Code)
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(map[string]rate.Limit{
		"/limited": rate.Limit(0.001),
	}, 2)

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/limited", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/open", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(router, "/limited", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, "/limited", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, "/limited", "").Code)

	// Paths without a configured limit are not throttled
	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, serve(router, "/open", "").Code)
	}
}

func TestRateLimiter_KeysByUserAfterJWTAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(map[string]rate.Limit{
		"/trades": rate.Limit(0.001),
	}, 1)
	validator := stubValidator{
		"user-token":  {"USR_1", types.RoleUser},
		"admin-token": {"USR_ADMIN", types.RoleAdmin},
	}

	router := gin.New()
	group := router.Group("/trades")
	group.Use(JWTAuth(validator), rl.Middleware())
	group.GET("", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Both requests come from the same IP
	assert.Equal(t, http.StatusOK, serve(router, "/trades", "Bearer user-token").Code)
	assert.Equal(t, http.StatusOK, serve(router, "/trades", "Bearer admin-token").Code)

	assert.Equal(t, http.StatusTooManyRequests, serve(router, "/trades", "Bearer user-token").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, "/trades", "Bearer admin-token").Code)
}

func TestRateLimiter_LongestPrefixWins(t *testing.T) {
	rl := NewRateLimiter(nil, 1)

	assert.Equal(t, defaultLimits["/api/v1/trades"], rl.limitFor("/api/v1/trades/:trade_id"))
	assert.Equal(t, defaultLimits["/api/v1/auth"], rl.limitFor("/api/v1/auth/token"))
	assert.Equal(t, rate.Inf, rl.limitFor("/health"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(nil, 1)
	rl.getLimiter("/api/v1/trades", "10.0.0.1")
	rl.getLimiter("/api/v1/trades", "10.0.0.2")

	rl.mu.Lock()
	rl.visitors["10.0.0.1:/api/v1/trades"].lastSeen = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.Cleanup(time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "10.0.0.2:/api/v1/trades")
}
