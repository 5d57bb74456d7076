package sink

import (
	"context"
	"sync"

	"github.com/nutrisage/nutrisage/pkg/types"
)

// MemorySink keeps appended batches in memory.
type MemorySink struct {
	mu      sync.Mutex
	batches []*types.Batch

	// FailOn makes the Nth append (1-based) fail with Err. Zero disables.
	FailOn int
	Err    error
	calls  int
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append stores batch.
func (m *MemorySink) Append(ctx context.Context, batch *types.Batch) (AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return AppendResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.FailOn > 0 && m.calls == m.FailOn {
		return AppendResult{}, m.Err
	}

	result := AppendResult{RowsByPartition: make(map[types.PartitionValues]int)}
	for _, pv := range batch.Partitions {
		result.RowsByPartition[pv]++
	}
	result.Rows = batch.Len()
	m.batches = append(m.batches, batch)
	return result, nil
}

// Batches returns the stored batches in append order.
func (m *MemorySink) Batches() []*types.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.Batch(nil), m.batches...)
}

// Rows returns the total number of stored rows.
func (m *MemorySink) Rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += b.Len()
	}
	return n
}
