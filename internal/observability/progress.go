// Package observability tracks ingest progress and exports it as Prometheus
// metrics.
package observability

import (
	"sort"
	"sync"
	"time"
)

// Progress accumulates totals of an ingest run. It is safe for concurrent use.
type Progress struct {
	mu        sync.RWMutex
	started   time.Time
	rows      int64
	chunks    int64
	malformed int64
	chunkTime []time.Duration
	nulls     map[string]*ColumnNulls
	now       func() time.Time
}

// ColumnNulls holds the null statistics of one column.
type ColumnNulls struct {
	Column   string
	Nulls    int64
	LastSeen time.Time
}

// Snapshot is a point-in-time copy of a Progress.
type Snapshot struct {
	Rows           int64
	Chunks         int64
	MalformedLines int64
	Elapsed        time.Duration
}

// Throughput returns rows per second over the elapsed time.
func (s Snapshot) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Rows) / s.Elapsed.Seconds()
}

// NewProgress starts a tracker at the current time.
func NewProgress() *Progress {
	return newProgressAt(time.Now)
}

func newProgressAt(now func() time.Time) *Progress {
	return &Progress{
		started: now(),
		nulls:   make(map[string]*ColumnNulls),
		now:     now,
	}
}

// RecordChunk records one written chunk.
func (p *Progress) RecordChunk(rows int, took time.Duration, nulls map[string]int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rows += int64(rows)
	p.chunks++
	p.chunkTime = append(p.chunkTime, took)

	seen := p.now()
	for col, n := range nulls {
		stats, ok := p.nulls[col]
		if !ok {
			stats = &ColumnNulls{Column: col}
			p.nulls[col] = stats
		}
		stats.Nulls += n
		stats.LastSeen = seen
	}
}

// RecordMalformed records skipped input lines.
func (p *Progress) RecordMalformed(n int) {
	p.mu.Lock()
	p.malformed += int64(n)
	p.mu.Unlock()
}

// Snapshot returns the current totals.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		Rows:           p.rows,
		Chunks:         p.chunks,
		MalformedLines: p.malformed,
		Elapsed:        p.now().Sub(p.started),
	}
}

// ChunkDurations returns the write duration of every chunk, in order.
func (p *Progress) ChunkDurations() []time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]time.Duration(nil), p.chunkTime...)
}

// TopNullColumns returns the n columns with the most nulls, most first.
// Ties are ordered by column name.
func (p *Progress) TopNullColumns(n int) []ColumnNulls {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if n <= 0 || len(p.nulls) == 0 {
		return []ColumnNulls{}
	}

	stats := make([]ColumnNulls, 0, len(p.nulls))
	for _, s := range p.nulls {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Nulls != stats[j].Nulls {
			return stats[i].Nulls > stats[j].Nulls
		}
		return stats[i].Column < stats[j].Column
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}
