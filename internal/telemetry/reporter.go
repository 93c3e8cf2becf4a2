package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/aonescu/driftguard/internal/types"
)

// Timeout caps each delivery attempt. Telemetry is best-effort; a slow
// monitoring endpoint must never hold up reconciliation.
const Timeout = 5 * time.Second

// Reporter pushes reconciliation outcomes to a monitoring endpoint.
// Delivery failures are logged and swallowed, never surfaced in guard status.
type Reporter struct {
	endpoint   string
	httpClient *http.Client
}

func NewReporter(endpoint string) *Reporter {
	return &Reporter{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: Timeout},
	}
}

// Enabled reports whether a delivery target is configured.
func (r *Reporter) Enabled() bool {
	return r != nil && r.endpoint != ""
}

// Report posts one telemetry event. Callers dispatch it on its own goroutine;
// Report itself is synchronous and bounded by Timeout.
func (r *Reporter) Report(event types.TelemetryEvent) {
	if !r.Enabled() {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("telemetry: encode event for %s/%s: %v", event.Namespace, event.DriftGuard, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		log.Printf("telemetry: build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		log.Printf("telemetry: post %s/%s: %v", event.Namespace, event.DriftGuard, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("telemetry: endpoint returned %d for %s/%s", resp.StatusCode, event.Namespace, event.DriftGuard)
	}
}
