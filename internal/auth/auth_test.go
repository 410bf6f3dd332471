package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/tradedesk-api/internal/accounts"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthenticator struct{}

func (stubAuthenticator) Authenticate(apiKey, apiSecret string) (*accounts.User, error) {
	if apiKey == "key" && apiSecret == "secret" {
		return &accounts.User{UserID: "USR_1", Role: types.RoleAdmin}, nil
	}
	return nil, accounts.ErrInvalidCredentials
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewService("test-secret", time.Hour, stubAuthenticator{})

	resp, err := svc.GenerateToken(Credentials{APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "USR_1", resp.UserID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.Expiration, 5*time.Second)

	userID, role, err := svc.Identify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "USR_1", userID)
	assert.Equal(t, types.RoleAdmin, role)
}

func TestGenerateToken_InvalidCredentials(t *testing.T) {
	svc := NewService("test-secret", time.Hour, stubAuthenticator{})

	_, err := svc.GenerateToken(Credentials{APIKey: "key", APISecret: "nope"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateToken_Rejects(t *testing.T) {
	svc := NewService("test-secret", time.Hour, stubAuthenticator{})
	other := NewService("other-secret", time.Hour, stubAuthenticator{})
	expired := NewService("test-secret", time.Nanosecond, stubAuthenticator{})

	foreign, err := other.GenerateToken(Credentials{APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign.Token)
	assert.Error(t, err)

	stale, err := expired.GenerateToken(Credentials{APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	_, err = svc.ValidateToken(stale.Token)
	assert.Error(t, err)

	_, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestGenerateTokenHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/token", NewGinHandlers(NewService("s", time.Hour, stubAuthenticator{})).GenerateTokenHandler())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"api_key":"key","api_secret":"secret"}`, http.StatusCreated},
		{"wrong secret", `{"api_key":"key","api_secret":"bad"}`, http.StatusUnauthorized},
		{"missing fields", `{"api_key":"key"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
