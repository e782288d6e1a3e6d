package align

import "sync/atomic"

// Stats aggregates per-worker counters across a run. Each worker owns one
// Stats and merges into a shared total at exit, so the hot path never
// contends on a shared counter.
type Stats struct {
	PairsProcessed      int64
	PairsAlignedAsPair  int64
	PairsSingleFallback int64
	PairsUnmapped       int64
	PairsClustered      int64

	CandidatePoolOverflows int64
	SecondaryBufferRetries int64
}

// NewStats returns a zeroed Stats.
func NewStats() *Stats { return &Stats{} }

// observe folds one finished pair's outcome into the counters. Called once
// per pair, after emission, from the Orchestrator's loop.
func (s *Stats) observe(p *PairProgress) {
	atomic.AddInt64(&s.PairsProcessed, 1)
	r := p.PairedResults[0]
	switch {
	case r.AlignedAsPair:
		atomic.AddInt64(&s.PairsAlignedAsPair, 1)
	case r.Status[0] != NotFound || r.Status[1] != NotFound:
		atomic.AddInt64(&s.PairsSingleFallback, 1)
	default:
		atomic.AddInt64(&s.PairsUnmapped, 1)
	}
	if p.clusterID >= 0 {
		atomic.AddInt64(&s.PairsClustered, 1)
	}
}

// Merge adds other's counters into s. Intended for use once per worker at
// shutdown, not on the hot path.
func (s *Stats) Merge(other *Stats) {
	atomic.AddInt64(&s.PairsProcessed, atomic.LoadInt64(&other.PairsProcessed))
	atomic.AddInt64(&s.PairsAlignedAsPair, atomic.LoadInt64(&other.PairsAlignedAsPair))
	atomic.AddInt64(&s.PairsSingleFallback, atomic.LoadInt64(&other.PairsSingleFallback))
	atomic.AddInt64(&s.PairsUnmapped, atomic.LoadInt64(&other.PairsUnmapped))
	atomic.AddInt64(&s.PairsClustered, atomic.LoadInt64(&other.PairsClustered))
	atomic.AddInt64(&s.CandidatePoolOverflows, atomic.LoadInt64(&other.CandidatePoolOverflows))
	atomic.AddInt64(&s.SecondaryBufferRetries, atomic.LoadInt64(&other.SecondaryBufferRetries))
}
