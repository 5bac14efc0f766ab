package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyharvest/polyharvest/internal/transport"
)

func newTestTransport(t *testing.T) *transport.Client {
	t.Helper()
	return transport.New(transport.Options{
		Timeout:        5 * time.Second,
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func newTestClient(t *testing.T, serverURL string, maxAttempts int) *Client {
	t.Helper()
	c := NewClient(newTestTransport(t), Options{
		APIBase:     serverURL,
		APIKey:      "sk-test",
		Model:       "test-model",
		MaxAttempts: maxAttempts,
		RetryDelay:  time.Millisecond,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestClassificationValid(t *testing.T) {
	tests := []struct {
		name string
		c    Classification
		want bool
	}{
		{"single date", Classification{Type: "1", Domain: "politics", Date: "05/11/2026"}, true},
		{"range deadline", Classification{Type: "2", Domain: "finance", Date: "31/12/2026"}, true},
		{"undated", Classification{Type: "U", Domain: "misc", Date: ""}, true},
		{"unknown type", Classification{Type: "3", Domain: "misc", Date: ""}, false},
		{"unknown domain", Classification{Type: "U", Domain: "weather", Date: ""}, false},
		{"bad date format", Classification{Type: "1", Domain: "sports", Date: "2026-11-05"}, false},
		{"impossible date", Classification{Type: "1", Domain: "sports", Date: "32/13/2026"}, false},
		{"dated U", Classification{Type: "U", Domain: "misc", Date: "01/01/2026"}, false},
		{"undated type 1", Classification{Type: "1", Domain: "misc", Date: ""}, false},
		{"undated type 2", Classification{Type: "2", Domain: "misc", Date: ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Valid())
		})
	}
}

func TestClassifySuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])
		assert.Len(t, req["messages"], 2)
		assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])

		fmt.Fprint(w, completionBody(`{"type":"2","domain":"finance","date":"31/12/2026","reason":"by end of 2026"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 1)
	verdict, err := client.Classify(context.Background(), "Will BTC hit 200k in 2026?", "Resolves YES if...")
	require.NoError(t, err)
	assert.Equal(t, Classification{Type: "2", Domain: "finance", Date: "31/12/2026"}, verdict)
}

func TestClassifyRetriesInvalidThenSucceeds(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch calls {
		case 1:
			fmt.Fprint(w, completionBody(`not json at all`))
		case 2:
			// Parses but violates the type/date pairing rule.
			fmt.Fprint(w, completionBody(`{"type":"U","domain":"misc","date":"01/01/2026"}`))
		default:
			fmt.Fprint(w, completionBody(`{"type":"U","domain":"misc","date":""}`))
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 5)
	verdict, err := client.Classify(context.Background(), "Will something happen?", "")
	require.NoError(t, err)
	assert.Equal(t, TypeUndated, verdict.Type)
	assert.Equal(t, 3, calls)
}

func TestClassifyExhaustsAttempts(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, completionBody(`{"type":"9","domain":"nope","date":""}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 3)
	_, err := client.Classify(context.Background(), "t", "d")
	require.ErrorIs(t, err, ErrInvalidResponse)
	assert.Equal(t, 3, calls)
}

func TestClassifyPropagatesTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid api key"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 3)
	_, err := client.Classify(context.Background(), "t", "d")
	require.Error(t, err)
	api, ok := transport.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, api.StatusCode)
}
