package dedup

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/marketlink/internal/candidate"
	"github.com/alanyoungcy/marketlink/internal/fingerprint"
)

// CapCounter hands out per-key quota slots. Implementations must make
// TryAcquire atomic per key.
type CapCounter interface {
	TryAcquire(key string, quota int) bool
	Count(key string) int
}

// MemoryCapCounter is an arena of atomic counters, one per key. Keys are
// created lazily; increments are compare-and-swap so the quota is exact
// under concurrent callers.
type MemoryCapCounter struct {
	counters sync.Map // string -> *atomic.Int64
}

// NewMemoryCapCounter creates an empty arena.
func NewMemoryCapCounter() *MemoryCapCounter {
	return &MemoryCapCounter{}
}

func (m *MemoryCapCounter) counter(key string) *atomic.Int64 {
	if v, ok := m.counters.Load(key); ok {
		return v.(*atomic.Int64)
	}
	v, _ := m.counters.LoadOrStore(key, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// TryAcquire takes one slot under key if fewer than quota are taken. A quota
// of zero or less is unlimited.
func (m *MemoryCapCounter) TryAcquire(key string, quota int) bool {
	c := m.counter(key)
	if quota <= 0 {
		c.Add(1)
		return true
	}
	for {
		n := c.Load()
		if n >= int64(quota) {
			return false
		}
		if c.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Count returns the slots taken under key.
func (m *MemoryCapCounter) Count(key string) int {
	if v, ok := m.counters.Load(key); ok {
		return int(v.(*atomic.Int64).Load())
	}
	return 0
}

// CapKey builds the right-cap key (target id, entity, period or date bucket).
func CapKey(kind candidate.Kind, rightID string, fp *fingerprint.Fingerprint) string {
	var bucket string
	switch kind {
	case candidate.KindMacro:
		if fp.Period != nil {
			bucket = fp.Period.Key()
		}
	case candidate.KindIntraday:
		bucket = fp.TimeBucket
	default:
		bucket = fp.SettleDate
	}
	return strings.Join([]string{rightID, fp.PrimaryEntity(), bucket}, "|")
}

// ApplyRightCap admits candidates in order while their right key has quota.
func ApplyRightCap(kind candidate.Kind, counter CapCounter, quota int, cands []Candidate) ([]Candidate, Drops) {
	drops := Drops{}
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if !counter.TryAcquire(CapKey(kind, c.RightID, c.Right), quota) {
			drops[DropRightCap]++
			continue
		}
		out = append(out, c)
	}
	return out, drops
}
