// Package filter provides packet filters and transformers applied to report
// envelopes before they reach the tracker.
package filter

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/coastwatch/aistracker/internal/schema"
)

// PacketFilter decides whether an envelope should be dropped before ingest.
type PacketFilter interface {
	Rejected(env schema.Envelope) bool
}

// Chain rejects an envelope when any member filter does.
type Chain []PacketFilter

// Rejected reports whether any filter in the chain rejects the envelope.
func (c Chain) Rejected(env schema.Envelope) bool {
	for _, f := range c {
		if f != nil && f.Rejected(env) {
			return true
		}
	}
	return false
}

// DefaultDuplicateWindow is the suppression window applied when none is
// configured.
const DefaultDuplicateWindow = 10 * time.Second

// DuplicateFilter suppresses envelopes whose raw payload was already seen
// within a sliding window. Reports relayed by multiple receivers arrive
// byte-identical; only the first within the window passes.
type DuplicateFilter struct {
	window time.Duration

	mu   sync.Mutex
	seen map[uint64]int64
}

// NewDuplicateFilter creates a duplicate filter with the given window.
// Non-positive windows fall back to DefaultDuplicateWindow.
func NewDuplicateFilter(window time.Duration) *DuplicateFilter {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	f := new(DuplicateFilter)
	f.window = window
	f.seen = make(map[uint64]int64)
	return f
}

// Rejected reports whether the envelope's payload is a duplicate within the
// window. Recording and pruning happen against the envelope's own timestamp,
// not the wall clock.
func (f *DuplicateFilter) Rejected(env schema.Envelope) bool {
	digest := payloadDigest(env.Raw)
	windowMillis := f.window.Milliseconds()

	f.mu.Lock()
	defer f.mu.Unlock()

	if last, ok := f.seen[digest]; ok && env.Timestamp-last < windowMillis {
		return true
	}
	f.seen[digest] = env.Timestamp

	if len(f.seen) > 1<<16 {
		f.prune(env.Timestamp - windowMillis)
	}
	return false
}

func (f *DuplicateFilter) prune(cutoff int64) {
	for digest, last := range f.seen {
		if last < cutoff {
			delete(f.seen, digest)
		}
	}
}

// KindFilter passes only envelopes whose target kind is in the allow set. An
// empty set passes everything.
type KindFilter struct {
	allowed map[schema.TargetKind]struct{}
}

// NewKindFilter builds a kind filter from the allowed set.
func NewKindFilter(kinds ...schema.TargetKind) *KindFilter {
	f := new(KindFilter)
	if len(kinds) > 0 {
		f.allowed = make(map[schema.TargetKind]struct{}, len(kinds))
		for _, k := range kinds {
			f.allowed[k] = struct{}{}
		}
	}
	return f
}

// Rejected reports whether the envelope's kind falls outside the allow set.
func (f *KindFilter) Rejected(env schema.Envelope) bool {
	if len(f.allowed) == 0 {
		return false
	}
	_, ok := f.allowed[env.Kind]
	return !ok
}

func payloadDigest(raw []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(raw)
	return h.Sum64()
}
