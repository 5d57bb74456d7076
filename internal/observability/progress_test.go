package observability

import (
	"sync"
	"testing"
	"time"
)

func TestProgress_ConcurrentRecords(t *testing.T) {
	p := NewProgress()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p.RecordChunk(10, time.Millisecond, map[string]int64{"sugars_100g": 1})
				p.RecordMalformed(1)
			}
		}()
	}
	wg.Wait()

	s := p.Snapshot()
	if s.Rows != 4000 || s.Chunks != 400 || s.MalformedLines != 400 {
		t.Errorf("unexpected totals: %+v", s)
	}
	if got := len(p.ChunkDurations()); got != 400 {
		t.Errorf("expected 400 chunk durations, got %d", got)
	}
}

func TestProgress_Throughput(t *testing.T) {
	now := time.Unix(1000, 0)
	p := newProgressAt(func() time.Time { return now })
	p.RecordChunk(500, time.Second, nil)
	now = now.Add(2 * time.Second)

	s := p.Snapshot()
	if s.Elapsed != 2*time.Second {
		t.Fatalf("expected 2s elapsed, got %v", s.Elapsed)
	}
	if s.Throughput() != 250 {
		t.Errorf("expected 250 rows/s, got %v", s.Throughput())
	}
	if (Snapshot{Rows: 10}).Throughput() != 0 {
		t.Error("zero elapsed must yield zero throughput")
	}
}

func TestProgress_TopNullColumns(t *testing.T) {
	p := NewProgress()
	p.RecordChunk(10, 0, map[string]int64{"fiber_100g": 7, "sugars_100g": 2, "salt_100g": 7})
	p.RecordChunk(10, 0, map[string]int64{"sugars_100g": 1})

	top := p.TopNullColumns(2)
	if len(top) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(top))
	}
	if top[0].Column != "fiber_100g" || top[1].Column != "salt_100g" {
		t.Errorf("unexpected order: %+v", top)
	}
	if got := p.TopNullColumns(0); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	if got := p.TopNullColumns(10); len(got) != 3 || got[2].Nulls != 3 {
		t.Errorf("unexpected full list: %+v", got)
	}
}
