package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPReporter_Delivers(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Event
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "skillsync/"))

		var e Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	r := NewHTTPReporter(server.URL)
	r.Report(context.Background(), Event{
		Name:      "sync",
		Version:   "1.2.3",
		Skills:    []string{"root-skill"},
		Targets:   []string{"codex"},
		Installed: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.Flush(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.NotEmpty(t, received[0].ID)
	assert.Equal(t, "1.2.3", received[0].Version)
	assert.Equal(t, []string{"root-skill"}, received[0].Skills)
}

func TestHTTPReporter_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := NewHTTPReporter(server.URL, WithRetry(3, time.Millisecond))
	r.Report(context.Background(), Event{Name: "sync"})
	r.Flush(context.Background())

	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPReporter_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	r := NewHTTPReporter(server.URL, WithRetry(3, time.Millisecond))
	r.Report(context.Background(), Event{Name: "sync"})
	r.Flush(context.Background())

	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPReporter_NeverBlocks(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	r := NewHTTPReporter(server.URL, WithRetry(1, time.Millisecond))

	start := time.Now()
	r.Report(context.Background(), Event{Name: "sync"})
	assert.Less(t, time.Since(start), time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r.Flush(ctx)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestHTTPReporter_UnreachableEndpoint(t *testing.T) {
	r := NewHTTPReporter("http://127.0.0.1:1/events", WithRetry(2, time.Millisecond))
	r.Report(context.Background(), Event{Name: "sync"})
	r.Flush(context.Background())
}

func TestNopReporter(t *testing.T) {
	var r Reporter = NopReporter{}
	r.Report(context.Background(), Event{Name: "sync"})
	r.Flush(context.Background())
}

func TestDisabled(t *testing.T) {
	t.Setenv("DO_NOT_TRACK", "")
	t.Setenv("SKILLSYNC_TELEMETRY_DISABLED", "")
	assert.False(t, Disabled())

	t.Setenv("DO_NOT_TRACK", "1")
	assert.True(t, Disabled())
}
