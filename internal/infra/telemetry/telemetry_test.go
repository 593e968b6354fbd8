package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordLoginAndLockout(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(MetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	metrics.ObserveLogin("failure")
	metrics.ObserveLogin("locked")

	if got := testutil.ToFloat64(metrics.LoginAttempts.WithLabelValues("failure")); got != 1 {
		t.Fatalf("expected 1 failure, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Lockouts); got != 1 {
		t.Fatalf("expected 1 lockout, got %f", got)
	}
}

func TestMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewMetrics(MetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	second, err := NewMetrics(MetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("second NewMetrics: %v", err)
	}

	first.ObserveSchedulerRun("retention", nil)
	second.ObserveSchedulerRun("retention", errors.New("boom"))

	if got := testutil.ToFloat64(first.SchedulerRuns.WithLabelValues("retention", "error")); got != 1 {
		t.Fatalf("expected shared collector to see error run, got %f", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var metrics *Metrics

	metrics.ObserveLogin("success")
	metrics.ObserveAlert("high_risk_event", "critical")
	metrics.ObserveRetention("user_sessions", "hard_delete", "completed", 3, time.Second)
}

func TestObserveRetentionSkipsEmptyCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(MetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	metrics.ObserveRetention("user_sessions", "hard_delete", "completed", 0, time.Second)
	metrics.ObserveRetention("user_sessions", "hard_delete", "completed", 4, time.Second)

	if got := testutil.ToFloat64(metrics.RetentionRecords.WithLabelValues("user_sessions", "hard_delete")); got != 4 {
		t.Fatalf("expected 4 records, got %f", got)
	}
	if got := testutil.CollectAndCount(metrics.RetentionDuration); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}
