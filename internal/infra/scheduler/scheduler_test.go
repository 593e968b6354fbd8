package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/telemetry"
)

func TestRegisterRejectsDuplicatesAndBadSpecs(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	noop := func(context.Context) error { return nil }

	if err := s.Register("retention", "0 2 * * *", noop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register("retention", "@every 1h", noop); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := s.Register("broken", "not a schedule", noop); err == nil {
		t.Fatal("expected invalid schedule to fail")
	}

	tasks := s.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
}

func TestStopAndStartTask(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	noop := func(context.Context) error { return nil }

	if err := s.Register("sessions", "@every 1h", noop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.StopTask("sessions"); err != nil {
		t.Fatalf("StopTask: %v", err)
	}
	if _, ok := s.Tasks()["sessions"]; ok {
		t.Fatal("stopped task should not be listed")
	}
	if err := s.StartTask("sessions"); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	if _, ok := s.Tasks()["sessions"]; !ok {
		t.Fatal("restarted task should be listed")
	}
	if err := s.StopTask("missing"); err == nil {
		t.Fatal("expected error for unknown task")
	}
}

func TestRunNowRecordsMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(telemetry.MetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	s := New(zaptest.NewLogger(t), WithMetrics(metrics), WithTaskTimeout(time.Second))
	boom := errors.New("boom")

	if err := s.Register("monitor", "@every 5m", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected task context to carry a deadline")
		}
		return boom
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	err = s.RunNow(context.Background(), "monitor")
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if got := testutil.ToFloat64(metrics.SchedulerRuns.WithLabelValues("monitor", "error")); got != 1 {
		t.Fatalf("expected 1 error run, got %f", got)
	}
}

func TestScheduledTaskRunsAndShutdownCancels(t *testing.T) {
	s := New(zaptest.NewLogger(t))

	var runs atomic.Int32
	started := make(chan struct{}, 1)
	if err := s.Register("ticker", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	s.Start()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("task never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// SkipIfStillRunning keeps the blocked task from stacking.
	if got := runs.Load(); got != 1 {
		t.Fatalf("expected a single run, got %d", got)
	}
}
