package align

import "github.com/grailbio/base/errors"

// arenaCanary is the guard value the arena keeps in two slots, set by
// Reserve and checked at stage boundaries. A mismatch means something
// overwrote the arena's guard state; treated as fatal for the whole
// process, since the corruption's extent is unknown.
const arenaCanary = 0xA11A11A1

// Arena is a bulk-reservation allocator for one barcode batch's working
// set: PairProgress records and their nested result slices. Reserving once
// per batch (instead of once per pair) is what makes the per-pair state
// machine allocation-free in steady state.
type Arena struct {
	opts *Options

	progress []PairProgress
	canaries []uint32
}

// NewArena returns an empty Arena bound to opts. Reserve must be called
// before use.
func NewArena(opts *Options) *Arena {
	return &Arena{opts: opts}
}

// clusterAlignerReservation is the number of PairProgress records to
// reserve for a batch of the given size: exactly one per pair, since the
// Orchestrator processes every pair whether or not clustering applies. It
// is a pure function so callers can size a reservation before constructing
// an Arena.
func clusterAlignerReservation(batchSize int) int {
	return batchSize
}

// singleAlignerReservation is the per-mate secondary-result buffer size to
// reserve up front, derived from Options.InitialSecondaryCapacity. Kept
// separate from clusterAlignerReservation because the two scale
// independently: batch size drives the former, secondary-reporting policy
// drives the latter.
func singleAlignerReservation(opts *Options) int {
	return opts.InitialSecondaryCapacity()
}

// Reserve grows the arena to hold batchSize pairs and sets the arena's two
// canary values. It is safe to call again with a larger
// batchSize (e.g. after MaxBarcodeSize was raised); it never shrinks.
func (a *Arena) Reserve(batchSize int) {
	want := clusterAlignerReservation(batchSize)
	if len(a.progress) >= want {
		return
	}
	grown := make([]PairProgress, want)
	copy(grown, a.progress)
	a.progress = grown

	secondaryCap := singleAlignerReservation(a.opts)
	for i := range a.progress {
		p := &a.progress[i]
		if p.PairedResults == nil {
			p.PairedResults = make([]PairedResult, 0, secondaryCap+1)
		}
		if p.SingleResults[0] == nil {
			p.SingleResults[0] = make([]SingleResult, 0, secondaryCap+1)
		}
		if p.SingleResults[1] == nil {
			p.SingleResults[1] = make([]SingleResult, 0, secondaryCap+1)
		}
		p.PairedSecondaryCap = secondaryCap
		p.SingleSecondaryCap = [2]int{secondaryCap, secondaryCap}
		p.clusterID = -1
		p.stage = stageSeeding
	}

	a.canaries = []uint32{arenaCanary, arenaCanary}
}

// Progress returns the first batchSize reserved PairProgress records. Reserve must have been called with a batchSize at least this
// large.
func (a *Arena) Progress(batchSize int) []PairProgress {
	return a.progress[:batchSize]
}

// ErrArenaCorruption is returned by CheckCanaries when a reservation's
// guard values have been overwritten. It is fatal process-wide: the
// caller should abort rather than continue operating on a working set of
// unknown integrity.
var ErrArenaCorruption = errors.New("arena canary corrupted")

// CheckCanaries verifies the arena's guard values are intact. Call this at
// every stage boundary in the Orchestrator's loop.
func (a *Arena) CheckCanaries() error {
	for _, c := range a.canaries {
		if c != arenaCanary {
			return ErrArenaCorruption
		}
	}
	return nil
}

// Reset clears per-pair state for reuse on the next barcode batch without
// releasing the underlying arrays.
func (a *Arena) Reset() {
	for i := range a.progress {
		p := &a.progress[i]
		p.NotDone = false
		p.PopularSeedsSkipped = [2]int{}
		p.NSecondaryResults = 0
		p.NSingleSecondaryRes = [2]int{}
		p.PairedResults = p.PairedResults[:0]
		p.SingleResults[0] = p.SingleResults[0][:0]
		p.SingleResults[1] = p.SingleResults[1][:0]
		p.clusterID = -1
		p.stage = stageSeeding
	}
}
