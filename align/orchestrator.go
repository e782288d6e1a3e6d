package align

import (
	"context"
	"sync/atomic"

	"github.com/grailbio/base/log"
)

// maxStageRetries bounds the overflow-and-retry loop within one stage.
// Each retry doubles the relevant buffer, so this many retries would only
// be exhausted by a candidate pool many times larger than
// MaxCandidatePoolSize; hitting it indicates the buffer is growing without
// bound and the pair is abandoned rather than looping forever.
const maxStageRetries = 16

// Orchestrator drives every pair in a barcode batch through seeding,
// paired scoring, single-end fallback and emission. One
// Orchestrator processes one batch at a time; a worker pool owns one
// Orchestrator per goroutine (see the worker loop).
type Orchestrator struct {
	opts    *Options
	index   ReferenceIndex
	arena   *Arena
	cluster *ClusterIndex
	emitter *Emitter
	stats   *Stats

	// aligners holds one PairAligner (and its candidate pool) per pair
	// position in the current batch, reserved the same way the arena
	// reserves PairProgress records. A single shared PairAligner cannot
	// work here: stage 1 seeds every pair in the batch, in full, before
	// stage 2 scores any of them (so cluster discovery can run in between),
	// which means each pair's candidates have to survive until its own
	// turn in stage 2 rather than being overwritten by the next pair's.
	aligners []*PairAligner
}

// NewOrchestrator returns an Orchestrator bound to index (nil selects the
// fast, no-alignment path) and opts, emitting through emitter.
func NewOrchestrator(index ReferenceIndex, opts *Options, emitter *Emitter, stats *Stats) *Orchestrator {
	return &Orchestrator{
		opts:    opts,
		index:   index,
		arena:   NewArena(opts),
		cluster: NewClusterIndex(opts),
		emitter: emitter,
		stats:   stats,
	}
}

// alignerFor returns the PairAligner reserved for pair position i, growing
// the reservation as needed. Aligners persist across batches, like the
// arena, so their scratch buffers amortize instead of reallocating.
func (o *Orchestrator) alignerFor(i int) *PairAligner {
	for len(o.aligners) <= i {
		o.aligners = append(o.aligners, NewPairAligner(o.index, o.opts))
	}
	return o.aligners[i]
}

// ProcessBatch runs every pair in batch through the full state machine and
// emits each one, in order. It returns the first fatal error encountered;
// per-pair errors (candidate pool overflow) are logged and the affected
// pair is emitted as unmapped rather than aborting the batch. Pair IDs are
// not checked here; the worker loop checks them before calling it.
func (o *Orchestrator) ProcessBatch(ctx context.Context, batch *BarcodeBatch) error {
	n := batch.Len()
	if n == 0 {
		return nil
	}
	if n > o.opts.MaxBarcodeSize {
		log.Error.Printf("barcode %s: %d pairs exceeds MaxBarcodeSize %d, truncating", batch.Barcode, n, o.opts.MaxBarcodeSize)
		n = o.opts.MaxBarcodeSize
		batch.Pairs = batch.Pairs[:n]
	}

	o.arena.Reserve(n)
	o.arena.Reset()
	progress := o.arena.Progress(n)
	o.cluster.Reset()

	for i := 0; i < n; i++ {
		progress[i].NotDone = true
		progress[i].stage = stageSeeding
	}

	// Stage 1: seeding. Never short-circuits the batch: every pair reaches
	// stage assignment even if seeding itself errors for that pair. Every
	// surviving joint candidate location is recorded in o.cluster as it's
	// found, so cluster membership is known before any pair is scored:
	// candidates resident in a cluster take priority when scoring breaks
	// ties, which only works if discovery runs before stage 2 starts.
	for i, pair := range batch.Pairs {
		p := &progress[i]
		if err := o.arena.CheckCanaries(); err != nil {
			return err
		}
		o.seedOne(i, pair, p)
	}
	if err := o.arena.CheckCanaries(); err != nil {
		return err
	}
	o.cluster.DiscoverClusters()

	// Stage 2: paired scoring, with overflow-and-retry.
	if err := o.arena.CheckCanaries(); err != nil {
		return err
	}
	for i, pair := range batch.Pairs {
		p := &progress[i]
		if p.stage != stagePairedScoring {
			continue
		}
		o.scorePairedOne(i, pair, p)
	}
	if err := o.arena.CheckCanaries(); err != nil {
		return err
	}

	// Stage 3: single-end fallback for pairs that didn't resolve as a pair.
	for i, pair := range batch.Pairs {
		p := &progress[i]
		if p.stage != stageSingleFallback {
			continue
		}
		o.singleFallbackOne(i, pair, p)
	}
	if err := o.arena.CheckCanaries(); err != nil {
		return err
	}

	// Cross-pair clustering: boosts MAPQ for pairs whose winning location
	// co-occurs with many others', evidence no single pair's scoring pass
	// can see (package doc comment). Looked up by the finalized primary
	// location, not by pair index: two candidates of the same pair can
	// belong to different clusters, so cluster membership only makes sense
	// once a location has actually been chosen.
	for i := range progress {
		p := &progress[i]
		loc := p.PairedResults[0].Location[0]
		if o.index != nil && loc != InvalidGenomeLocation {
			contig, _ := o.index.ContigOf(loc)
			strand := p.PairedResults[0].Strand[0]
			if c, ok := o.cluster.ClusterAt(loc, contig, strand); ok {
				p.clusterID = c.ID
				for j := range p.PairedResults {
					p.PairedResults[j].Mapq[0] = clusterMapqBoost(p.PairedResults[j].Mapq[0], len(c.PairIdxs))
					p.PairedResults[j].Mapq[1] = clusterMapqBoost(p.PairedResults[j].Mapq[1], len(c.PairIdxs))
				}
			}
		}
		p.stage = stageEmitted
	}

	if err := o.arena.CheckCanaries(); err != nil {
		return err
	}
	for i, pair := range batch.Pairs {
		p := &progress[i]
		if o.opts.ForceSpacing {
			forceSpacingDemote(&p.PairedResults[0])
		}
		if err := o.emitter.Emit(ctx, pair, p); err != nil {
			return err
		}
		o.stats.observe(p)
		p.NotDone = false
	}
	return nil
}

// seedOne runs stage 1 for a single pair, deciding its next stage. The
// fast path (no reference index, or a degenerate pair with neither mate
// useful) skips straight to emission with an unmapped result, matching the
// original's behavior when alignment is pointless. Every joint candidate
// location seedAndIntersect finds for this pair is inserted into o.cluster
// under index i, so cluster membership reflects every pair's candidates by
// the time stage 2 scores any of them.
func (o *Orchestrator) seedOne(i int, pair *ReadPair, p *PairProgress) {
	if o.index == nil || !pair.AnyUseful() {
		p.PairedResults = append(p.PairedResults[:0], NewUnmappedPairedResult())
		p.SingleResults[0] = p.SingleResults[0][:0]
		p.SingleResults[1] = p.SingleResults[1][:0]
		p.stage = stageEmitted
		return
	}

	aligner := o.alignerFor(i)
	aligner.Reset()
	skipped, err := aligner.seedAndIntersect(pair)
	p.PopularSeedsSkipped = skipped
	if err != nil {
		if _, ok := err.(*ErrCandidatePoolOverflow); ok {
			atomic.AddInt64(&o.stats.CandidatePoolOverflows, 1)
			log.Error.Printf("barcode %s: candidate pool overflow, dropping pair %s", pair.Barcode, pair.A.ID)
		} else {
			log.Error.Printf("barcode %s: pair %s: %v", pair.Barcode, pair.A.ID, err)
		}
		p.PairedResults = append(p.PairedResults[:0], NewUnmappedPairedResult())
		p.stage = stageEmitted
		return
	}
	for _, c := range aligner.pool.paired {
		contigA, _ := o.index.ContigOf(c.LocA)
		contigB, _ := o.index.ContigOf(c.LocB)
		o.cluster.Insert(i, c.LocA, contigA, c.StrandA)
		o.cluster.Insert(i, c.LocB, contigB, c.StrandB)
	}
	p.stage = stagePairedScoring
}

// scorePairedOne runs stage 2 for the pair seeded into position i,
// doubling the secondary buffer and retrying on overflow up to
// maxStageRetries times.
func (o *Orchestrator) scorePairedOne(i int, pair *ReadPair, p *PairProgress) {
	aligner := o.aligners[i]
	for attempt := 0; attempt < maxStageRetries; attempt++ {
		if aligner.bestAndSecondary(pair, p, o.cluster) {
			break
		}
		atomic.AddInt64(&o.stats.SecondaryBufferRetries, 1)
		p.PairedSecondaryCap *= 2
		if attempt == maxStageRetries-1 {
			log.Error.Printf("pair %s: %v after %d retries", pair.A.ID, ErrSecondaryBufferOverflow, maxStageRetries)
		}
	}
	if p.PairedResults[0].Status[0] == NotFound {
		p.stage = stageSingleFallback
		return
	}
	p.stage = stageEmitted
}

// singleFallbackOne runs stage 3 for the pair seeded into position i,
// independently for each mate, then folds each mate's best single-end
// placement into PairedResults[0] so the Emitter and ForceSpacing always
// have one place to look regardless of whether the pair resolved jointly.
func (o *Orchestrator) singleFallbackOne(i int, pair *ReadPair, p *PairProgress) {
	aligner := o.aligners[i]
	mates := [2]*Read{pair.A, pair.B}
	for m, r := range mates {
		if !r.Useful() {
			p.SingleResults[m] = append(p.SingleResults[m][:0], SingleResult{Status: NotFound, Location: InvalidGenomeLocation})
			continue
		}
		for attempt := 0; attempt < maxStageRetries; attempt++ {
			if aligner.singleFallback(r, m, p) {
				break
			}
			atomic.AddInt64(&o.stats.SecondaryBufferRetries, 1)
			p.SingleSecondaryCap[m] *= 2
			if attempt == maxStageRetries-1 {
				log.Error.Printf("pair %s: mate %d: %v after %d retries", pair.A.ID, m, ErrSecondaryBufferOverflow, maxStageRetries)
			}
		}
	}
	best := p.PairedResults[0]
	for m := 0; m < 2; m++ {
		single := p.SingleResults[m][0]
		best.Status[m] = single.Status
		best.Location[m] = single.Location
		best.Strand[m] = single.Strand
		best.Score[m] = single.Score
		best.Mapq[m] = single.Mapq
	}
	p.PairedResults[0] = best
	p.stage = stageEmitted
}

// forceSpacingDemote implements Options.ForceSpacing: a pair whose primary
// result placed exactly one mate is demoted to fully NotFound rather than
// reported half-mapped, matching the original's forceSpacing semantics.
func forceSpacingDemote(r *PairedResult) {
	if r.AlignedAsPair {
		return
	}
	oneFound := r.Status[0] != NotFound || r.Status[1] != NotFound
	bothFound := r.Status[0] != NotFound && r.Status[1] != NotFound
	if oneFound && !bothFound {
		*r = NewUnmappedPairedResult()
	}
}
