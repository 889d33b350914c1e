// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimitConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimitConfig
		wantErr bool
		wantMax int
	}{
		{name: "disabled", cfg: RateLimitConfig{}, wantMax: defaultMaxVisitors},
		{name: "valid", cfg: RateLimitConfig{RequestsPerSecond: 2, Burst: 5, MaxVisitors: 50}, wantMax: 50},
		{name: "negative rate", cfg: RateLimitConfig{RequestsPerSecond: -1}, wantErr: true},
		{name: "rate without burst", cfg: RateLimitConfig{RequestsPerSecond: 1}, wantErr: true},
		{name: "negative visitors", cfg: RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxVisitors: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.True(t, apperr.HasCode(err, apperr.CodeServerConfigInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMax, tt.cfg.MaxVisitors)
		})
	}
}

func TestLimiterBurstAndRefill(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)}
	l := newLimiter(RateLimitConfig{RequestsPerSecond: 2, Burst: 3}, clock.now)

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"), "buckets are per ip")

	clock.advance(500 * time.Millisecond)
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))

	clock.advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("10.0.0.1"))
	}
	assert.False(t, l.allow("10.0.0.1"), "refill is capped at burst")
}

func TestLimiterSweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)}
	l := newLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxVisitors: 2}, clock.now)

	l.allow("stale")
	clock.advance(visitorStaleAfter + time.Second)
	for i := 0; i < 3; i++ {
		l.allow(fmt.Sprintf("10.0.0.%d", i))
		clock.advance(time.Second)
	}

	assert.Equal(t, 1, l.sweep())
	assert.Equal(t, 2, l.size())

	l.mu.Lock()
	_, oldest := l.visitors["10.0.0.0"]
	_, stale := l.visitors["stale"]
	l.mu.Unlock()
	assert.False(t, oldest)
	assert.False(t, stale)
}

func TestRateLimitMiddleware(t *testing.T) {
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	passthrough := rateLimitMiddleware(RateLimitConfig{}, done)(ok)
	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		passthrough.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/agents/waiter", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	limited := rateLimitMiddleware(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, MaxVisitors: 10}, done)(ok)
	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/agents/waiter", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("192.168.1.1:1000").Code)
	w := send("192.168.1.1:2000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "ports share one bucket")
	assert.Equal(t, rateLimitRetryAfter, w.Header().Get("Retry-After"))
	assert.JSONEq(t, string(rateLimitedBody), w.Body.String())
	assert.Equal(t, http.StatusOK, send("192.168.1.2:1000").Code)
}
