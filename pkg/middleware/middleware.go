package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/ksred/tradedesk-api/pkg/response"
	"golang.org/x/time/rate"
)

// Context keys set by JWTAuth
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// TokenValidator resolves a bearer token to the caller's identity
type TokenValidator interface {
	Identify(token string) (userID, role string, err error)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client and path
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limits   map[string]rate.Limit // path prefix -> limit
	burst    int
}

// Configure limits per endpoint type
var defaultLimits = map[string]rate.Limit{
	"/api/v1/auth":   rate.Limit(10.0 / 60.0),   // 10 requests per minute
	"/api/v1/trades": rate.Limit(100.0 / 60.0),  // 100 requests per minute
	"/api/v1/wallet": rate.Limit(60.0 / 60.0),   // 60 requests per minute
	"/api/v1/me":     rate.Limit(1000.0 / 60.0), // 1000 requests per minute
}

// NewRateLimiter uses the default per-path limits when limits is nil
func NewRateLimiter(limits map[string]rate.Limit, burst int) *RateLimiter {
	if limits == nil {
		limits = defaultLimits
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limits:   limits,
		burst:    burst,
	}
}

func (rl *RateLimiter) limitFor(path string) rate.Limit {
	best, limit := "", rate.Inf
	for prefix, l := range rl.limits {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best, limit = prefix, l
		}
	}
	return limit
}

func (rl *RateLimiter) getLimiter(path, clientKey string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := clientKey + ":" + path
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{
			limiter: rate.NewLimiter(rl.limitFor(path), rl.burst),
		}
		rl.visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// Cleanup drops visitors idle for longer than maxIdle
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if time.Since(v.lastSeen) > maxIdle {
			delete(rl.visitors, key)
		}
	}
}

// Middleware keys buckets by the authenticated user when it runs after
// JWTAuth and by client IP otherwise.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.GetString(ContextUserID)
		if clientKey == "" {
			clientKey = c.ClientIP()
		}

		if !rl.getLimiter(c.FullPath(), clientKey).Allow() {
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth requires a bearer token (or a token query parameter, which
// browsers need for websocket upgrades) and stores the caller's identity in
// the context.
func JWTAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "Invalid authorization header")
			c.Abort()
			return
		}

		userID, role, err := validator.Identify(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextRole, role)
		c.Next()
	}
}

// AdminOnly must run after JWTAuth
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			response.Forbidden(c, "Admin role required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// UserID returns the authenticated caller's user ID
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func Role(c *gin.Context) string {
	return c.GetString(ContextRole)
}

func IsAdmin(c *gin.Context) bool {
	return Role(c) == types.RoleAdmin
}
