package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-API-KEY"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"value": 42}`))
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	var out struct{ Value int }
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, map[string]string{"X-API-KEY": "k"}, &out))
	assert.Equal(t, 42, out.Value)
}

func TestClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	var out struct{ OK bool }
	require.NoError(t, NewClient(time.Second).PostJSON(context.Background(), srv.URL, nil, map[string]int{"a": 1}, &out))
	assert.True(t, out.OK)
}

func TestClient_StatusErrors(t *testing.T) {
	code := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	err := c.GetJSON(context.Background(), srv.URL, nil, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Temporary())
	assert.Equal(t, "slow down", se.Body)

	code = http.StatusNotFound
	err = c.GetJSON(context.Background(), srv.URL, nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	code = http.StatusBadRequest
	err = c.GetJSON(context.Background(), srv.URL, nil, nil)
	require.True(t, errors.As(err, &se))
	assert.False(t, se.Temporary())
}

func TestLimiter_PerHost(t *testing.T) {
	l := NewLimiter(1, 1)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "hosts are independent")

	l.SetHostRPS("c", 1000)
	assert.True(t, l.Allow("c"))

	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow("x"))
	assert.NoError(t, nilLimiter.Wait(context.Background(), "x"))
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := NewLimiter(0.001, 1)
	require.True(t, l.Allow("h"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "h"))
}
