package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/trapline/trapline/pkg/httputil"
)

// Dispatcher delivers a report to the external sink. Delivery is
// at-most-once from the pipeline's point of view: the session is already
// marked reported before Dispatch is called, and failures never unmark it.
type Dispatcher interface {
	Dispatch(ctx context.Context, report Report) error
}

// HTTPDispatcher posts reports to the sink endpoint with a small fixed
// retry budget.
type HTTPDispatcher struct {
	url     string
	client  *http.Client
	retries int // extra attempts after the first failure
	sem     *httputil.Semaphore
	archive *Archive // optional, nil-safe
}

// NewHTTPDispatcher creates a dispatcher for the sink URL. capacity bounds
// concurrent fire-and-forget deliveries.
func NewHTTPDispatcher(url string, retries, capacity int, archive *Archive) *HTTPDispatcher {
	return &HTTPDispatcher{
		url:     url,
		client:  httputil.CallbackClient(),
		retries: retries,
		sem:     httputil.NewSemaphore(capacity),
		archive: archive,
	}
}

// Dispatch posts the report once. Non-2xx responses are errors.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, report Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := httputil.ReadResponseBody(resp.Body, 4096)
		return fmt.Errorf("sink returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// DispatchAsync delivers the report off the reply path. The report is
// archived regardless of sink outcome; sink failures are logged and the
// report is considered attempted. If the dispatcher is saturated the report
// is dropped with a log line rather than blocking the caller.
func (d *HTTPDispatcher) DispatchAsync(report Report) {
	if !d.sem.TryAcquire() {
		log.Printf("[REPORT] dispatcher saturated, dropping report %s for session %s (dropped=%d)",
			report.ID, report.SessionID, d.sem.DroppedCount())
		return
	}

	go func() {
		defer d.sem.Release()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := d.archive.Save(ctx, report); err != nil {
			log.Printf("[REPORT] archive failed for %s: %v", report.ID, err)
		}

		var err error
		for attempt := 0; attempt <= d.retries; attempt++ {
			if attempt > 0 {
				select {
				case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
				case <-ctx.Done():
					log.Printf("[REPORT] giving up on %s: %v", report.ID, ctx.Err())
					return
				}
			}
			if err = d.Dispatch(ctx, report); err == nil {
				log.Printf("[REPORT] delivered %s for session %s (%d msgs, type=%s)",
					report.ID, report.SessionID, report.TotalMessagesExchanged, report.ScamType)
				return
			}
			log.Printf("[REPORT] attempt %d/%d failed for %s: %v",
				attempt+1, d.retries+1, report.ID, err)
		}
		// At-most-once: the session stays marked reported even though
		// delivery failed, trading lost reports for no duplicates.
		log.Printf("[REPORT] undelivered after %d attempts: %s session=%s", d.retries+1, report.ID, report.SessionID)
	}()
}

// LogDispatcher is the no-sink stand-in: it logs the report payload instead
// of delivering it. Used when no callback URL is configured.
type LogDispatcher struct{}

// Dispatch logs the serialized report and always succeeds.
func (LogDispatcher) Dispatch(_ context.Context, report Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	log.Printf("[REPORT] no sink configured, report %s: %s", report.ID, payload)
	return nil
}
