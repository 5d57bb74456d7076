package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func gatheredValue(t *testing.T, m *Metrics, name, label string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("failed to gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			match := label == ""
			for _, lp := range metric.GetLabel() {
				if lp.GetValue() == label {
					match = true
				}
			}
			if !match {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if h := metric.GetHistogram(); h != nil {
				total += float64(h.GetSampleCount())
			}
		}
	}
	return total
}

func TestMetrics_ObserveChunk(t *testing.T) {
	m, err := NewMetrics("", "")
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	m.ObserveChunk(map[string]int{"2020": 3, "unknown": 1}, 200*time.Millisecond, map[string]int64{"fiber_100g": 2, "fat_100g": 0})
	m.ObserveChunk(map[string]int{"2020": 2}, 100*time.Millisecond, nil)
	m.AddMalformed(4)

	if v := gatheredValue(t, m, "nutrisage_rows_written_total", "2020"); v != 5 {
		t.Errorf("expected 5 rows for 2020, got %v", v)
	}
	if v := gatheredValue(t, m, "nutrisage_chunks_total", ""); v != 2 {
		t.Errorf("expected 2 chunks, got %v", v)
	}
	if v := gatheredValue(t, m, "nutrisage_malformed_lines_total", ""); v != 4 {
		t.Errorf("expected 4 malformed lines, got %v", v)
	}
	if v := gatheredValue(t, m, "nutrisage_null_cells_total", "fiber_100g"); v != 2 {
		t.Errorf("expected 2 fiber nulls, got %v", v)
	}
	if v := gatheredValue(t, m, "nutrisage_null_cells_total", "fat_100g"); v != 0 {
		t.Errorf("zero null counts must not create series, got %v", v)
	}
	if v := gatheredValue(t, m, "nutrisage_chunk_write_seconds", ""); v != 2 {
		t.Errorf("expected 2 duration samples, got %v", v)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveChunk(map[string]int{"2020": 1}, time.Second, nil)
	m.AddMalformed(1)
	if err := m.Push(context.Background()); err != nil {
		t.Errorf("nil metrics push should succeed, got %v", err)
	}
	if m.Registry() != nil {
		t.Error("nil metrics has no registry")
	}
}

func TestMetrics_Push(t *testing.T) {
	var calls int32
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if !strings.Contains(r.URL.Path, "/metrics/job/nutrisage-ingest") {
			t.Errorf("unexpected push path %s", r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, err := NewMetrics("nutrisage-ingest", srv.URL)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	m.ObserveChunk(map[string]int{"2021": 1}, time.Millisecond, nil)

	if err := m.Push(context.Background()); err != nil {
		t.Fatalf("failed to push: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected one push, got %d", calls)
	}
	if len(body) == 0 {
		t.Error("expected a non-empty push body")
	}
}

func TestMetrics_PushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m, err := NewMetrics("nutrisage", srv.URL)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	if err := m.Push(context.Background()); err == nil {
		t.Error("expected push error on 500")
	}
}
