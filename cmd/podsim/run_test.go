package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/internal/logging"
	"github.com/signalsfoundry/pod-mover-simulator/internal/report"
	"github.com/signalsfoundry/pod-mover-simulator/kb"
	"github.com/signalsfoundry/pod-mover-simulator/timectrl"
)

func TestDeliveriesFlushOnSimulatedSchedule(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	store, err := report.Open(ctx, filepath.Join(t.TempDir(), "runs.db"), logging.Noop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	rec, err := store.StartRun(ctx, report.RunInfo{StartedAt: start, Pods: 1})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	tc := timectrl.NewTimeController(start, time.Minute, timectrl.Accelerated)
	flusher := newDeliveryFlusher(tc, rec, logging.Noop())
	rec.Observe(kb.Event{Type: kb.EventRiderDelivered, At: start, Pod: 1, Station: 2, Rider: 1, OnTime: true})

	for i := 1; i <= 10; i++ {
		if err := tc.Step(ctx); err != nil {
			t.Fatalf("Step: %v", err)
		}
		flusher.poll(ctx)
		if i < 10 && rec.Pending() != 1 {
			t.Fatalf("flushed early at minute %d", i)
		}
	}
	if rec.Pending() != 0 {
		t.Fatalf("pending = %d after ten simulated minutes", rec.Pending())
	}
	rows, err := store.Deliveries(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Deliveries: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(rows))
	}

	rec.Observe(kb.Event{Type: kb.EventRiderDelivered, At: start.Add(11 * time.Minute), Pod: 1, Station: 2, Rider: 2})
	for range 9 {
		if err := tc.Step(ctx); err != nil {
			t.Fatalf("Step: %v", err)
		}
		flusher.poll(ctx)
	}
	if rec.Pending() != 1 {
		t.Fatalf("timer was not re-armed for the next interval")
	}
	if err := tc.Step(ctx); err != nil {
		t.Fatalf("Step: %v", err)
	}
	flusher.poll(ctx)
	if rec.Pending() != 0 {
		t.Fatalf("second interval did not flush")
	}
}

type warnRecorder struct {
	logging.Logger
	mu    sync.Mutex
	warns []string
	errs  []error
}

func (w *warnRecorder) Warn(_ context.Context, msg string, fields ...logging.Field) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.warns = append(w.warns, msg)
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			w.errs = append(w.errs, err)
		}
	}
}

func TestShutdownHTTPLogsTimeout(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
	})}
	go srv.Serve(lis)
	go http.Get("http://" + lis.Addr().String() + "/")
	<-entered
	defer close(release)

	log := &warnRecorder{Logger: logging.Noop()}
	shutdownHTTP(context.Background(), srv, 10*time.Millisecond, log)

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.warns) != 1 || log.warns[0] != "http server shutdown failed" {
		t.Fatalf("warnings = %v", log.warns)
	}
	if len(log.errs) != 1 || !errors.Is(log.errs[0], context.DeadlineExceeded) {
		t.Fatalf("logged errors = %v", log.errs)
	}
}
