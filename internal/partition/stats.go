package partition

import (
	"github.com/nutrisage/nutrisage/pkg/types"
)

// StatsTracker tracks per-column null counts and numeric min/max while a
// fragment is built.
type StatsTracker struct {
	rowCount int64
	nulls    map[string]int64
	ints     map[string]*MinMax
	floats   map[string]*MinMax
}

// NewStatsTracker creates a new statistics tracker.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{
		nulls:  make(map[string]int64),
		ints:   make(map[string]*MinMax),
		floats: make(map[string]*MinMax),
	}
}

// Observe folds every row of batch into the statistics.
func (s *StatsTracker) Observe(batch *types.Batch) {
	s.rowCount += int64(batch.Len())
	for i := range batch.Columns {
		vec := &batch.Columns[i]
		name := vec.Column.Name
		s.nulls[name] += int64(vec.NullCount())

		switch vec.Column.Kind {
		case types.KindInt64:
			for j, ok := range vec.Valid {
				if ok {
					s.updateInt(name, vec.Ints[j])
				}
			}
		case types.KindFloat32:
			for j, ok := range vec.Valid {
				if ok {
					s.updateFloat(name, vec.Floats[j])
				}
			}
		}
	}
}

func (s *StatsTracker) updateInt(name string, v int64) {
	mm, ok := s.ints[name]
	if !ok {
		s.ints[name] = &MinMax{Min: v, Max: v}
		return
	}
	if v < mm.Min.(int64) {
		mm.Min = v
	}
	if v > mm.Max.(int64) {
		mm.Max = v
	}
}

func (s *StatsTracker) updateFloat(name string, v float32) {
	if v != v { // NaN
		return
	}
	mm, ok := s.floats[name]
	if !ok {
		s.floats[name] = &MinMax{Min: v, Max: v}
		return
	}
	if v < mm.Min.(float32) {
		mm.Min = v
	}
	if v > mm.Max.(float32) {
		mm.Max = v
	}
}

// GetMinMaxStats returns min/max for every numeric column with at least one
// non-null value.
func (s *StatsTracker) GetMinMaxStats() map[string]MinMax {
	stats := make(map[string]MinMax, len(s.ints)+len(s.floats))
	for name, mm := range s.ints {
		stats[name] = *mm
	}
	for name, mm := range s.floats {
		stats[name] = *mm
	}
	return stats
}

// NullCounts returns the null count of every observed column.
func (s *StatsTracker) NullCounts() map[string]int64 {
	out := make(map[string]int64, len(s.nulls))
	for k, v := range s.nulls {
		out[k] = v
	}
	return out
}

// RowCount returns the number of rows tracked.
func (s *StatsTracker) RowCount() int64 {
	return s.rowCount
}
