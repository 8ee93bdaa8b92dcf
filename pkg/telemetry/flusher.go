package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/homelead/askdb/pkg/config"
)

const telemetryPath = "/v2/telemetry"

// Flusher periodically drains the collector and POSTs batches to the
// telemetry endpoint. Failed batches are retried a bounded number of times
// and then discarded; telemetry must never wedge the host.
type Flusher struct {
	collector *Collector
	cfg       config.TelemetryConfig
	client    *http.Client

	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(time.Duration)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFlusher creates a flusher for the collector.
func NewFlusher(collector *Collector, cfg config.TelemetryConfig) *Flusher {
	return &Flusher{
		collector: collector,
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.RequestTimeout()},
		sleep:     time.Sleep,
	}
}

// Start launches the background flush loop.
func (f *Flusher) Start(ctx context.Context) {
	if f.cancel != nil || !f.collector.Enabled() {
		return
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})

	go f.run(ctx)

	slog.Info("Telemetry flusher started",
		"interval", f.cfg.FlushInterval(),
		"buffer_size", f.cfg.BufferSize)
}

// Stop signals the loop to exit, waits for it, and performs one final
// best-effort flush with a short deadline.
func (f *Flusher) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	f.flush(ctx)

	slog.Info("Telemetry flusher stopped")
}

func (f *Flusher) run(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(f.cfg.FlushInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.flush(ctx)
		}
	}
}

// flush drains the buffer and delivers the batch. On permanent failure the
// batch is dropped; events are never re-queued.
func (f *Flusher) flush(ctx context.Context) {
	events := f.collector.Drain()
	if len(events) == 0 {
		return
	}

	body, err := encodeBatch(events)
	if err != nil {
		slog.Error("Telemetry batch serialization failed, dropping batch",
			"events", len(events), "error", err)
		return
	}

	url := strings.TrimRight(f.cfg.APIBaseURL, "/") + telemetryPath

	for attempt := 1; attempt <= f.maxAttempts(); attempt++ {
		status, err := f.post(ctx, url, body)
		switch {
		case err == nil && status >= 200 && status < 300:
			slog.Debug("Telemetry batch delivered", "events", len(events))
			return
		case err == nil && status >= 400 && status < 500:
			// Client error: the endpoint rejected the batch; retrying the
			// same payload cannot succeed.
			slog.Warn("Telemetry batch rejected, dropping",
				"status", status, "events", len(events))
			return
		case err != nil:
			slog.Warn("Telemetry delivery failed",
				"attempt", attempt, "error", err)
		default:
			slog.Warn("Telemetry delivery failed",
				"attempt", attempt, "status", status)
		}

		if attempt < f.maxAttempts() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			f.sleep(time.Duration(attempt) * time.Second)
		}
	}

	slog.Warn("Telemetry batch dropped after retries", "events", len(events))
}

func (f *Flusher) maxAttempts() int {
	if f.cfg.MaxRetries < 1 {
		return 1
	}
	return f.cfg.MaxRetries
}

func (f *Flusher) post(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(f.cfg.ClientID, f.cfg.ClientSecret)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

// encodeBatch serializes events with the BSON extended-JSON codec so that
// ObjectId and date values inside recorded arguments survive intact.
func encodeBatch(events []Event) ([]byte, error) {
	doc := bson.M{"events": events}
	body, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("marshal telemetry batch: %w", err)
	}
	return body, nil
}
