package types

import (
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFragmentIDGenerator_Monotonic(t *testing.T) {
	g := NewFragmentIDGenerator()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var prev FragmentID
	for i := 0; i < 500; i++ {
		id, err := g.NextAt(ts)
		if err != nil {
			t.Fatalf("failed to generate id: %v", err)
		}
		if i > 0 && prev.Compare(id) >= 0 {
			t.Fatalf("id %d not greater than previous: %s >= %s", i, prev, id)
		}
		prev = id
	}
}

func TestFragmentID_StringSortsLikeBytes(t *testing.T) {
	g := NewFragmentIDGenerator()
	base := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

	var ids []FragmentID
	for i := 0; i < 50; i++ {
		id, err := g.NextAt(base.Add(time.Duration(i%7) * time.Second))
		if err != nil {
			t.Fatalf("failed to generate id: %v", err)
		}
		ids = append(ids, id)
	}

	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
		if len(strs[i]) != 26 {
			t.Fatalf("expected 26 characters, got %d (%s)", len(strs[i]), strs[i])
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	sort.Strings(strs)
	for i := range ids {
		if ids[i].String() != strs[i] {
			t.Errorf("order mismatch at %d: %s vs %s", i, ids[i].String(), strs[i])
		}
	}
}

func TestProperty_FragmentIDTime(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("timestamp component round-trips", prop.ForAll(
		func(ms int64) bool {
			id, err := NewFragmentIDGenerator().NextAt(time.UnixMilli(ms))
			if err != nil {
				return false
			}
			return id.Millis() == uint64(ms)
		},
		gen.Int64Range(0, 281474976710655),
	))

	properties.Property("later timestamps give greater ids", prop.ForAll(
		func(a, b int64) bool {
			if a == b {
				return true
			}
			if a > b {
				a, b = b, a
			}
			g := NewFragmentIDGenerator()
			first, err := g.NextAt(time.UnixMilli(a))
			if err != nil {
				return false
			}
			second, err := g.NextAt(time.UnixMilli(b))
			if err != nil {
				return false
			}
			return first.Compare(second) < 0 && first.String() < second.String()
		},
		gen.Int64Range(1000000000000, 2000000000000),
		gen.Int64Range(1000000000000, 2000000000000),
	))

	properties.TestingRun(t)
}
