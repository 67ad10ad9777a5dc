// Package candidate builds the per-run inverted indexes that narrow the
// right-hand venue down to the markets worth scoring for one left market.
package candidate

import (
	"fmt"
	"sort"

	"github.com/alanyoungcy/marketlink/internal/fingerprint"
)

// Kind selects how markets are keyed.
type Kind string

const (
	KindGeneral  Kind = "general"
	KindMacro    Kind = "macro"
	KindCrypto   Kind = "crypto"
	KindIntraday Kind = "intraday"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindGeneral, KindMacro, KindCrypto, KindIntraday:
		return k, nil
	}
	return "", fmt.Errorf("candidate: unknown index kind %q", s)
}

// DefaultCap is the candidate cap used when none is configured.
func DefaultCap(k Kind) int {
	switch k {
	case KindMacro, KindIntraday:
		return 200
	case KindCrypto:
		return 1000
	default:
		return 500
	}
}

// Index maps keys to right-side market ids. It is read-only after Build and
// safe for concurrent lookups.
type Index struct {
	kind    Kind
	cap     int
	buckets map[string][]string
	fps     map[string]*fingerprint.Fingerprint
}

// Build indexes fps under kind. A cap of zero or less uses DefaultCap.
// Duplicate market ids keep the first fingerprint.
func Build(kind Kind, fps []fingerprint.Fingerprint, cap int) *Index {
	if cap <= 0 {
		cap = DefaultCap(kind)
	}
	ix := &Index{
		kind:    kind,
		cap:     cap,
		buckets: make(map[string][]string),
		fps:     make(map[string]*fingerprint.Fingerprint, len(fps)),
	}
	for i := range fps {
		fp := &fps[i]
		if _, dup := ix.fps[fp.MarketID]; dup {
			continue
		}
		ix.fps[fp.MarketID] = fp
		for _, key := range IndexKeys(kind, fp) {
			ix.buckets[key] = append(ix.buckets[key], fp.MarketID)
		}
	}
	for key := range ix.buckets {
		sort.Strings(ix.buckets[key])
	}
	return ix
}

// Kind returns the index kind.
func (ix *Index) Kind() Kind { return ix.kind }

// Len returns the number of indexed markets.
func (ix *Index) Len() int { return len(ix.fps) }

// Keys returns the number of distinct index keys.
func (ix *Index) Keys() int { return len(ix.buckets) }

// Get returns the fingerprint of an indexed market.
func (ix *Index) Get(id string) (*fingerprint.Fingerprint, bool) {
	fp, ok := ix.fps[id]
	return fp, ok
}

// Bucket returns the ids stored under one key, sorted.
func (ix *Index) Bucket(key string) []string {
	return ix.buckets[key]
}

type hit struct {
	id     string
	keys   int
	tokens int
}

// Candidates returns the right-side markets sharing at least one probe key
// with left. When more than the cap match, the members with the most shared
// keys (then most shared title tokens, then lowest id) are kept. The result
// is ordered by id.
func (ix *Index) Candidates(left *fingerprint.Fingerprint) []string {
	hits := make(map[string]*hit)
	for _, key := range ProbeKeys(ix.kind, left) {
		for _, id := range ix.buckets[key] {
			h, ok := hits[id]
			if !ok {
				h = &hit{id: id}
				hits[id] = h
			}
			h.keys++
		}
	}
	if len(hits) == 0 {
		return nil
	}

	list := make([]*hit, 0, len(hits))
	for _, h := range hits {
		list = append(list, h)
	}
	if len(list) > ix.cap {
		for _, h := range list {
			h.tokens = sharedTokens(left.Tokens, ix.fps[h.id].Tokens)
		}
		sort.Slice(list, func(i, j int) bool {
			a, b := list[i], list[j]
			if a.keys != b.keys {
				return a.keys > b.keys
			}
			if a.tokens != b.tokens {
				return a.tokens > b.tokens
			}
			return a.id < b.id
		})
		list = list[:ix.cap]
	}

	out := make([]string, len(list))
	for i, h := range list {
		out[i] = h.id
	}
	sort.Strings(out)
	return out
}

// sharedTokens counts common members of two sorted token sets.
func sharedTokens(a, b []string) int {
	n, i, j := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			n++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return n
}
