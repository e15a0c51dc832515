package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() (*Client, *[]time.Duration) {
	c := NewClient("test", 1000, 5*time.Second)
	sleeps := &[]time.Duration{}
	c.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	return c, sleeps
}

func TestGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, _ := testClient()
	body, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestGetNotFound(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := testClient()
	_, err := c.Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, calls, "404 must not be retried")
}

func TestGetClientErrorNoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := testClient()
	_, err := c.Get(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestGetRetriesServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, sleeps := testClient()
	_, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	// one jitter per attempt plus two backoffs of 1s and 2s
	backoffs := []time.Duration{}
	for _, d := range *sleeps {
		if d >= time.Second {
			backoffs = append(backoffs, d)
		}
	}
	require.Len(t, backoffs, 2)
	assert.Equal(t, time.Second, backoffs[0])
	assert.Equal(t, 2*time.Second, backoffs[1])
}

func TestGetRetriesThrottling(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, sleeps := testClient()
	_, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	// the throttle backoff is the exponential base plus 1-3s extra
	var throttleWait time.Duration
	for _, d := range *sleeps {
		if d >= time.Second {
			throttleWait = d
		}
	}
	assert.GreaterOrEqual(t, throttleWait, 2*time.Second)
	assert.LessOrEqual(t, throttleWait, 4*time.Second)
}

func TestGetExhaustsRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := testClient()
	_, err := c.Get(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.Equal(t, clientMaxAttempts, calls)
}

func TestBackoffFor(t *testing.T) {
	assert.Equal(t, time.Second, backoffFor(http.StatusInternalServerError, 0))
	assert.Equal(t, 2*time.Second, backoffFor(http.StatusBadGateway, 1))
	assert.Equal(t, 4*time.Second, backoffFor(0, 2))

	for i := 0; i < 50; i++ {
		wait := backoffFor(http.StatusTooManyRequests, 0)
		assert.GreaterOrEqual(t, wait, 2*time.Second)
		assert.LessOrEqual(t, wait, 4*time.Second)
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Llet sencera"}`))
	}))
	defer srv.Close()

	c, _ := testClient()
	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, "Llet sencera", out.Name)
}

func TestGetJSONMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c, _ := testClient()
	var out map[string]interface{}
	assert.Error(t, c.GetJSON(context.Background(), srv.URL, &out))
}
