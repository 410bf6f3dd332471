package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestToken_RetriesWhenRateLimited(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"RATE_LIMITED","message":"slow down"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"jwt_token":"tok","user_id":"USR_1","role":"user"}}`))
	}))
	defer srv.Close()

	sc := newSimulationClient(srv.URL, rate.NewLimiter(rate.Inf, 1))
	sc.client.SetRetryWaitTime(10 * time.Millisecond).SetRetryMaxWaitTime(50 * time.Millisecond)

	token, err := sc.token(context.Background(), "key", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestToken_PacedToServerAuthLimit(t *testing.T) {
	sc := newSimulationClient("http://localhost", rate.NewLimiter(rate.Inf, 1))

	// Five tokens fit the burst; the sixth has to wait for a refill
	for i := 0; i < 5; i++ {
		assert.True(t, sc.authLimiter.Allow())
	}
	assert.False(t, sc.authLimiter.Allow())
}
