package intel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testReport() Report {
	s := sessionWithMessages(10, true)
	s.ScamType = ScamTypeUPIPayment
	s.Intelligence.UPIIDs = []string{"rahul123@upi"}
	return BuildReport(s)
}

func TestHTTPDispatcher_Dispatch(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	d := NewHTTPDispatcher(srv.URL, 0, 4, nil)
	if err := d.Dispatch(context.Background(), testReport()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if received["sessionId"] != "s1" {
		t.Errorf("payload sessionId = %v", received["sessionId"])
	}
	if received["scamType"] != string(ScamTypeUPIPayment) {
		t.Errorf("payload scamType = %v", received["scamType"])
	}
}

func TestHTTPDispatcher_NonSuccessIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sink rejected", http.StatusUnprocessableEntity)
	}))
	t.Cleanup(srv.Close)

	d := NewHTTPDispatcher(srv.URL, 0, 4, nil)
	if err := d.Dispatch(context.Background(), testReport()); err == nil {
		t.Fatal("non-2xx must be an error")
	}
}

func TestHTTPDispatcher_DispatchAsyncDelivers(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		close(done)
	}))
	t.Cleanup(srv.Close)

	d := NewHTTPDispatcher(srv.URL, 0, 4, nil)
	d.DispatchAsync(testReport())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async dispatch did not reach the sink")
	}
}

func TestHTTPDispatcher_RetriesThenDelivers(t *testing.T) {
	var attempts int64
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&attempts, 1) == 1 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
		close(done)
	}))
	t.Cleanup(srv.Close)

	d := NewHTTPDispatcher(srv.URL, 2, 4, nil)
	d.DispatchAsync(testReport())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("retry never delivered")
	}
	if got := atomic.LoadInt64(&attempts); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestHTTPDispatcher_SaturationDropsInsteadOfBlocking(t *testing.T) {
	gate := make(chan struct{})
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		<-gate
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(gate) })

	d := NewHTTPDispatcher(srv.URL, 0, 1, nil)
	d.DispatchAsync(testReport())

	// Wait for the first delivery to occupy the only slot.
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&hits) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first dispatch never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Saturated: this one must return immediately and drop.
	start := time.Now()
	d.DispatchAsync(testReport())
	if time.Since(start) > 100*time.Millisecond {
		t.Error("saturated dispatch blocked the caller")
	}
}

func TestLogDispatcher_AlwaysSucceeds(t *testing.T) {
	var d LogDispatcher
	if err := d.Dispatch(context.Background(), testReport()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	d.DispatchAsync(testReport())
}
