package jobs

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	// Double registration is rejected by the registry.
	if err := m.Register(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestObserve_CountsStatusAndItems(t *testing.T) {
	m := NewMetrics()

	m.observe(JobAuditAnonymize, 5*time.Millisecond, 3, nil)
	m.observe(JobAuditAnonymize, 5*time.Millisecond, 0, errors.New("boom"))

	if got := counterValue(t, m.runsTotal.WithLabelValues(JobAuditAnonymize, StatusSuccess)); got != 1 {
		t.Errorf("expected 1 success run, got %g", got)
	}
	if got := counterValue(t, m.runsTotal.WithLabelValues(JobAuditAnonymize, StatusFailure)); got != 1 {
		t.Errorf("expected 1 failed run, got %g", got)
	}
	if got := counterValue(t, m.itemsTotal.WithLabelValues(JobAuditAnonymize)); got != 3 {
		t.Errorf("expected 3 items, got %g", got)
	}
}

func TestObserve_NilReceiver(t *testing.T) {
	var m *Metrics
	// Must not panic.
	m.observe(JobIdempotencyCleanup, time.Millisecond, 1, nil)
}

func TestRunPeriodic(t *testing.T) {
	var runs atomic.Int64
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		RunPeriodic("test_job", 5*time.Millisecond, nil, nil, stop, func() (int64, error) {
			runs.Add(1)
			return 1, nil
		})
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 runs, got %d", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPeriodic did not stop")
	}
}

func TestRunPeriodic_ContinuesAfterFailure(t *testing.T) {
	var runs atomic.Int64
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		RunPeriodic("flaky_job", 5*time.Millisecond, NewMetrics(), nil, stop, func() (int64, error) {
			if runs.Add(1) == 1 {
				return 0, errors.New("transient")
			}
			return 0, nil
		})
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected the loop to survive a failure, got %d runs", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(stop)
	<-done
}
