package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestNewMetrics_Registry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.FeedRequests.WithLabelValues("default", StatusOK).Inc()
	m.SwapsImported.Add(3)

	if got := value(t, m.FeedRequests.WithLabelValues("default", StatusOK)); got != 1 {
		t.Errorf("expected 1 feed request, got %v", got)
	}
	if got := value(t, m.SwapsImported); got != 3 {
		t.Errorf("expected 3 imported swaps, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected registered metric families")
	}
}

func TestRecordPipelineRun_MarksSuccess(t *testing.T) {
	RecordPipelineRun("unit_test_job", StatusOK, time.Second)

	got := value(t, DefaultMetrics.LastSuccessfulRun.WithLabelValues("unit_test_job"))
	if got == 0 {
		t.Error("expected last successful run timestamp to be set")
	}

	RecordPipelineRun("unit_test_failing", StatusError, time.Second)
	if got := value(t, DefaultMetrics.LastSuccessfulRun.WithLabelValues("unit_test_failing")); got != 0 {
		t.Errorf("expected no success timestamp for failed job, got %v", got)
	}
}

func TestUpdateWatermarkLag(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	UpdateWatermarkLag(now.Add(-25*time.Hour), now)

	if got := value(t, DefaultMetrics.WatermarkLag); got != 90000 {
		t.Errorf("expected 90000s lag, got %v", got)
	}
}
