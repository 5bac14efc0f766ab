package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newClient(t *testing.T, opts Options) *Client {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = time.Millisecond
	}
	return New(opts)
}

func TestNewPacerClampsRate(t *testing.T) {
	assert.Equal(t, rate.Limit(5), NewPacer(5).Limit())
	assert.Equal(t, rate.Limit(0.1), NewPacer(0).Limit())
	assert.Equal(t, rate.Limit(0.1), NewPacer(-3).Limit())
	assert.Equal(t, rate.Limit(0.1), NewPacer(0.01).Limit())
}

func TestGetJSONSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "v", r.URL.Query().Get("k"))
		fmt.Fprint(w, `{"answer":42}`)
	}))
	defer server.Close()

	client := newClient(t, Options{MaxAttempts: 1})
	var out struct {
		Answer int `json:"answer"`
	}
	require.NoError(t, client.GetJSON(context.Background(), server.URL, map[string][]string{"k": {"v"}}, &out))
	assert.Equal(t, 42, out.Answer)
}

func TestRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	client := newClient(t, Options{MaxAttempts: 5})
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, client.GetJSON(context.Background(), server.URL, nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBackoffScheduleAndExhaustion(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "unavailable")
	}))
	defer server.Close()

	// Scale the curve down a millionfold so the doubling-to-a-cap shape
	// is observable without sleeping for real: 1s..16s becomes 1us..16us.
	const unit = time.Microsecond
	client := newClient(t, Options{MaxAttempts: 7, InitialBackoff: unit})

	var delays []time.Duration
	client.backoffNotify = func(d time.Duration) { delays = append(delays, d) }

	_, err := client.Do(context.Background(), http.MethodGet, server.URL, nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(7), calls.Load(), "exactly maxAttempts calls")

	// Delays double from the initial interval and cap at 16x.
	require.Len(t, delays, 6)
	assert.Equal(t, []time.Duration{1 * unit, 2 * unit, 4 * unit, 8 * unit, 16 * unit, 16 * unit}, delays)

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 7, exhausted.Attempts)

	api, ok := AsAPIError(err)
	require.True(t, ok, "the last upstream error stays inspectable")
	assert.Equal(t, http.StatusServiceUnavailable, api.StatusCode)
	assert.Contains(t, api.Body, "unavailable")
}

func TestClientErrorsAreRetriedToo(t *testing.T) {
	// All >=400 statuses share the same attempt budget; capacity-limit
	// classification happens above this layer.
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"interval is too long"}`)
	}))
	defer server.Close()

	client := newClient(t, Options{MaxAttempts: 3})
	_, err := client.Do(context.Background(), http.MethodGet, server.URL, nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	api, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, api.StatusCode)
}

func TestMalformedBodyIsFatalNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"broken":`)
	}))
	defer server.Close()

	client := newClient(t, Options{MaxAttempts: 5})
	var out map[string]any
	err := client.GetJSON(context.Background(), server.URL, nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed response body")
	assert.Equal(t, int32(1), calls.Load(), "a broken contract must not be retried")
}

func TestEmptyBodyLeavesOutUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := newClient(t, Options{MaxAttempts: 1})
	out := map[string]string{"pre": "existing"}
	require.NoError(t, client.GetJSON(context.Background(), server.URL, nil, &out))
	assert.Equal(t, "existing", out["pre"])
}

func TestContextCancellationStopsRetrying(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := newClient(t, Options{MaxAttempts: 100, InitialBackoff: 50 * time.Millisecond})
	client.backoffNotify = func(time.Duration) { cancel() }

	_, err := client.Do(ctx, http.MethodGet, server.URL, nil, nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPostJSONSendsBodyAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"model":"m","n":1}`, string(body))
		fmt.Fprint(w, `{"id":"resp-1"}`)
	}))
	defer server.Close()

	client := newClient(t, Options{MaxAttempts: 1})
	headers := http.Header{"Authorization": {"Bearer sk-test"}}
	payload := map[string]any{"model": "m", "n": 1}
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, client.PostJSON(context.Background(), server.URL, headers, payload, &out))
	assert.Equal(t, "resp-1", out.ID)
}

func TestPacerSpacesRequests(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	// 50 rps -> 20ms spacing. Three requests need at least ~40ms.
	limiter := NewPacer(50)
	client := newClient(t, Options{MaxAttempts: 1, Limiter: limiter})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Do(context.Background(), http.MethodGet, server.URL, nil, nil, nil)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}
