package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/notes/backend/pkg/config"
	"github.com/wonny/notes/backend/pkg/logger"
	"github.com/wonny/notes/backend/pkg/redis"
)

func testConfig() *config.Config {
	return &config.Config{Env: "development", LogLevel: "error"}
}

func TestNew_Defaults(t *testing.T) {
	client := New(testConfig(), logger.Nop())
	require.NotNil(t, client)
	assert.Equal(t, defaultTimeout, client.httpClient.Timeout)
	assert.Equal(t, int64(defaultMaxBodyBytes), client.maxBodyBytes)
	assert.Equal(t, 0, client.retries)
}

func TestNew_FromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP = config.HTTPConfig{Timeout: 5 * time.Second, MaxRetries: 2, MaxBodyBytes: 64, UserAgent: "notes-test"}

	client := New(cfg, logger.Nop())
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
	assert.Equal(t, 2, client.retries)
	assert.Equal(t, int64(64), client.maxBodyBytes)
}

func TestGetBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "notes-test", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<table></table>`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.HTTP.UserAgent = "notes-test"
	body, err := New(cfg, logger.Nop()).GetBody(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "<table></table>", string(body))
}

func TestGetBody_TooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.HTTP.MaxBodyBytes = 10
	_, err := New(cfg, logger.Nop()).GetBody(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestGetBody_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(testConfig(), logger.Nop()).GetBody(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestRetryIsBounded(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(testConfig(), logger.Nop()).WithRetry(2, time.Millisecond)
	_, err := client.GetBody(context.Background(), server.URL)
	assert.ErrorContains(t, err, "unexpected status 503")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDisableRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(testConfig(), logger.Nop()).WithRetry(3, time.Millisecond).DisableRetry()
	_, err := client.GetBody(context.Background(), server.URL)
	assert.Error(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLocalLimiterWhenRedisDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rc, err := redis.New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)

	client := New(testConfig(), logger.Nop()).
		WithRateLimiter(redis.NewRateLimiter(rc, "test"), redis.HolidayRateLimit)
	require.NotNil(t, client.localLimiter)

	_, err = client.GetBody(context.Background(), server.URL)
	assert.NoError(t, err)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(500))
	assert.True(t, IsRetryableError(503))
	assert.True(t, IsRetryableError(429))
	assert.False(t, IsRetryableError(404))
	assert.False(t, IsRetryableError(200))
}
