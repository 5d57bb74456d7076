package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the ingest collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	rowsWritten *prometheus.CounterVec
	chunks      prometheus.Counter
	malformed   prometheus.Counter
	nullCells   *prometheus.CounterVec
	chunkWrite  prometheus.Histogram
}

// NewMetrics creates the collectors. gatewayURL may be empty, in which case
// Push is a no-op.
func NewMetrics(jobName, gatewayURL string) (*Metrics, error) {
	if jobName == "" {
		jobName = "nutrisage"
	}

	reg := prometheus.NewRegistry()

	rowsWritten := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrisage_rows_written_total",
			Help: "Rows appended to the dataset, by year partition.",
		},
		[]string{"year"},
	)
	chunks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nutrisage_chunks_total",
		Help: "Chunks written to the dataset.",
	})
	malformed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nutrisage_malformed_lines_total",
		Help: "Input lines skipped because they were not JSON objects.",
	})
	nullCells := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrisage_null_cells_total",
			Help: "Null cells produced by coercion, by column.",
		},
		[]string{"column"},
	)
	chunkWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nutrisage_chunk_write_seconds",
		Help:    "Time spent writing one chunk to the dataset.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	for _, c := range []prometheus.Collector{rowsWritten, chunks, malformed, nullCells, chunkWrite} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("observability: register collector: %w", err)
		}
	}

	return &Metrics{
		gatewayURL:  gatewayURL,
		jobName:     jobName,
		reg:         reg,
		rowsWritten: rowsWritten,
		chunks:      chunks,
		malformed:   malformed,
		nullCells:   nullCells,
		chunkWrite:  chunkWrite,
	}, nil
}

// Registry exposes the registry for tests and scrape handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// ObserveChunk records one written chunk.
func (m *Metrics) ObserveChunk(rowsByYear map[string]int, took time.Duration, nulls map[string]int64) {
	if m == nil {
		return
	}
	for year, n := range rowsByYear {
		m.rowsWritten.WithLabelValues(year).Add(float64(n))
	}
	for col, n := range nulls {
		if n > 0 {
			m.nullCells.WithLabelValues(col).Add(float64(n))
		}
	}
	m.chunks.Inc()
	m.chunkWrite.Observe(took.Seconds())
}

// AddMalformed records skipped input lines.
func (m *Metrics) AddMalformed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.malformed.Add(float64(n))
}

// Push sends the registry to the Pushgateway.
func (m *Metrics) Push(ctx context.Context) error {
	if m == nil || m.gatewayURL == "" {
		return nil
	}
	if err := push.New(m.gatewayURL, m.jobName).Gatherer(m.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("observability: push to %s: %w", m.gatewayURL, err)
	}
	return nil
}
