package types

import (
	"crypto/rand"
	"sync"
	"time"
)

// FragmentID names a written dataset fragment. It is a ULID: a 48-bit
// millisecond timestamp followed by 80 random bits, so fragment object names
// sort by creation time within a partition directory.
type FragmentID [16]byte

const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// FragmentIDGenerator produces fragment IDs that increase monotonically,
// including within the same millisecond.
type FragmentIDGenerator struct {
	mu      sync.Mutex
	lastMs  uint64
	lastRnd [10]byte
}

// NewFragmentIDGenerator creates a generator.
func NewFragmentIDGenerator() *FragmentIDGenerator {
	return &FragmentIDGenerator{}
}

// Next returns an ID stamped with the current time.
func (g *FragmentIDGenerator) Next() (FragmentID, error) {
	return g.NextAt(time.Now())
}

// NextAt returns an ID stamped with t.
func (g *FragmentIDGenerator) NextAt(t time.Time) (FragmentID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := uint64(t.UnixMilli())
	var id FragmentID
	for i := 0; i < 6; i++ {
		id[i] = byte(ms >> (40 - 8*uint(i)))
	}

	if ms == g.lastMs {
		for i := 9; i >= 0; i-- {
			g.lastRnd[i]++
			if g.lastRnd[i] != 0 {
				break
			}
		}
	} else {
		if _, err := rand.Read(g.lastRnd[:]); err != nil {
			return FragmentID{}, err
		}
		g.lastMs = ms
	}
	copy(id[6:], g.lastRnd[:])
	return id, nil
}

// Millis returns the timestamp component in Unix milliseconds.
func (id FragmentID) Millis() uint64 {
	var ms uint64
	for i := 0; i < 6; i++ {
		ms = ms<<8 | uint64(id[i])
	}
	return ms
}

// Time returns the timestamp component.
func (id FragmentID) Time() time.Time {
	return time.UnixMilli(int64(id.Millis())).UTC()
}

// Compare orders IDs bytewise.
func (id FragmentID) Compare(other FragmentID) int {
	for i := range id {
		switch {
		case id[i] < other[i]:
			return -1
		case id[i] > other[i]:
			return 1
		}
	}
	return 0
}

// String encodes the ID as 26 Crockford base32 characters.
func (id FragmentID) String() string {
	// 128 bits are encoded as 130 bits with two leading zero bits.
	var buf [26]byte
	var acc uint32
	bits := 2
	pos := 0
	for _, b := range id {
		acc = acc<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			buf[pos] = crockfordBase32[(acc>>uint(bits))&31]
			pos++
		}
	}
	return string(buf[:])
}
