package telemetry

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if r.counters == nil || r.histograms == nil || r.gauges == nil {
		t.Fatal("expected all three metric maps to be initialized")
	}
}

func TestIncrementCounter(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("axcore_refreshes_total", `trigger="lookup_miss"`)
	r.IncrementCounter("axcore_refreshes_total", `trigger="lookup_miss"`)
	r.IncrementCounter("axcore_refreshes_total", `trigger="interval"`)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `axcore_refreshes_total{trigger="lookup_miss"} 2`) {
		t.Errorf("want lookup_miss counter = 2, got:\n%s", out)
	}
	if !strings.Contains(out, `axcore_refreshes_total{trigger="interval"} 1`) {
		t.Errorf("want interval counter = 1, got:\n%s", out)
	}
}

func TestObserveHistogramCumulativeBuckets(t *testing.T) {
	r := NewRegistry()
	r.ObserveHistogram("axcore_command_duration_seconds", `op="FocusClient"`, 0.0007)
	r.ObserveHistogram("axcore_command_duration_seconds", `op="FocusClient"`, 0.02)
	r.ObserveHistogram("axcore_command_duration_seconds", `op="FocusClient"`, 8.0)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `axcore_command_duration_seconds_count{op="FocusClient"} 3`) {
		t.Errorf("want count=3, got:\n%s", out)
	}
	if !strings.Contains(out, `axcore_command_duration_seconds_bucket{op="FocusClient",le="+Inf"} 3`) {
		t.Errorf("want +Inf bucket=3, got:\n%s", out)
	}
	if !strings.Contains(out, `axcore_command_duration_seconds_bucket{op="FocusClient",le="0.001"} 1`) {
		t.Errorf("want le=0.001 bucket=1 (only the 0.0007 observation), got:\n%s", out)
	}
}

func TestStartTimerRecordsOneObservation(t *testing.T) {
	r := NewRegistry()
	stop := r.StartTimer("PositionClient")
	stop()

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `axcore_commands_total{op="PositionClient"} 1`) {
		t.Errorf("want one PositionClient command recorded, got:\n%s", out)
	}
	if !strings.Contains(out, `axcore_command_duration_seconds_count{op="PositionClient"} 1`) {
		t.Errorf("want one duration observation recorded, got:\n%s", out)
	}
}

func TestSetGaugeKeepsLastValue(t *testing.T) {
	r := NewRegistry()
	r.SetGauge("axcore_event_channel_depth", "", 3)
	r.SetGauge("axcore_event_channel_depth", "", 7)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	if !strings.Contains(buf.String(), "axcore_event_channel_depth 7") {
		t.Errorf("want gauge = 7 (last write wins), got:\n%s", buf.String())
	}
}

func TestSetTrackedCounts(t *testing.T) {
	r := NewRegistry()
	r.SetTrackedCounts(12, 4)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "axcore_tracked_windows 12") {
		t.Errorf("want 12 tracked windows, got:\n%s", out)
	}
	if !strings.Contains(out, "axcore_tracked_apps 4") {
		t.Errorf("want 4 tracked apps, got:\n%s", out)
	}
}

func TestUnknownMetricNamesAreSilentlyIgnored(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("not_a_real_counter", "")
	r.ObserveHistogram("not_a_real_histogram", "", 1.0)
	r.SetGauge("not_a_real_gauge", "", 1.0)
	r.IncrementGauge("not_a_real_gauge", "", 1.0)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	if strings.Contains(buf.String(), "not_a_real") {
		t.Errorf("unregistered metric names should never appear in output, got:\n%s", buf.String())
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stop := r.StartTimer("concurrent_op")
			stop()
			r.SetEventChannelDepth(i)
			r.RecordRefresh("interval")
		}(i)
	}
	wg.Wait()

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus after concurrent access: %v", err)
	}
	if !strings.Contains(buf.String(), "axcore_refreshes_total") {
		t.Error("expected axcore_refreshes_total in output")
	}
}
