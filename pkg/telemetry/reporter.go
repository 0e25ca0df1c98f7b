package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/jingkaihe/skillsync/pkg/logger"
	"github.com/jingkaihe/skillsync/pkg/version"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// Event describes a completed sync for outbound reporting
type Event struct {
	ID        string   `json:"id"`
	Name      string   `json:"event"`
	Version   string   `json:"version"`
	Skills    []string `json:"skills"`
	Sources   []string `json:"sources"`
	Targets   []string `json:"targets"`
	Installed int      `json:"installed"`
	Failed    int      `json:"failed"`
}

// Reporter delivers events. Report must return immediately; delivery
// problems never reach the caller.
type Reporter interface {
	Report(ctx context.Context, event Event)
	Flush(ctx context.Context)
}

// NopReporter drops every event
type NopReporter struct{}

// Report implements Reporter
func (NopReporter) Report(context.Context, Event) {}

// Flush implements Reporter
func (NopReporter) Flush(context.Context) {}

// Disabled reports whether the user opted out of telemetry via the
// environment.
func Disabled() bool {
	return os.Getenv("DO_NOT_TRACK") != "" || os.Getenv("SKILLSYNC_TELEMETRY_DISABLED") != ""
}

// HTTPReporter posts events as JSON to an endpoint in the background
type HTTPReporter struct {
	endpoint string
	client   *http.Client
	attempts uint
	delay    time.Duration
	wg       sync.WaitGroup
}

// HTTPReporterOption configures an HTTPReporter
type HTTPReporterOption func(*HTTPReporter)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) HTTPReporterOption {
	return func(r *HTTPReporter) {
		r.client = c
	}
}

// WithRetry sets the delivery attempts and the initial delay between them
func WithRetry(attempts uint, delay time.Duration) HTTPReporterOption {
	return func(r *HTTPReporter) {
		r.attempts = attempts
		r.delay = delay
	}
}

// NewHTTPReporter creates a reporter for endpoint
func NewHTTPReporter(endpoint string, opts ...HTTPReporterOption) *HTTPReporter {
	r := &HTTPReporter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 3 * time.Second},
		attempts: 3,
		delay:    200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report implements Reporter
func (r *HTTPReporter) Report(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	AddEvent(ctx, "telemetry.report",
		attribute.String("event.id", event.ID),
		attribute.String("event.name", event.Name),
	)

	// Delivery outlives the caller's context; Flush bounds the wait.
	sendCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.send(sendCtx, event); err != nil {
			logger.G(sendCtx).WithError(err).WithField("event", event.Name).Debug("telemetry delivery failed")
		}
	}()
}

// Flush waits for in-flight deliveries until ctx is done
func (r *HTTPReporter) Flush(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (r *HTTPReporter) send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal telemetry event")
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("User-Agent", version.UserAgent())

			resp, err := r.client.Do(req)
			if err != nil {
				return err
			}
			resp.Body.Close()

			if resp.StatusCode >= 500 {
				return errors.Errorf("telemetry endpoint returned %d", resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(errors.Errorf("telemetry endpoint rejected event: %d", resp.StatusCode))
			}
			return nil
		},
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}
