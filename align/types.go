package align

import (
	"fmt"

	"github.com/grailbio/tenxalign/biosimd"
)

// GenomeLocation is a 64-bit offset into a concatenated reference genome.
type GenomeLocation int64

// InvalidGenomeLocation is the sentinel value denoting no placement.
const InvalidGenomeLocation GenomeLocation = -1

// AlignmentStatus classifies how many distinct locations an alignment
// resolved to.
type AlignmentStatus int

const (
	// NotFound means no candidate location survived scoring.
	NotFound AlignmentStatus = iota
	// SingleHit means exactly one location scored best, with no tie.
	SingleHit
	// MultipleHits means two or more locations tied for best.
	MultipleHits
)

func (s AlignmentStatus) String() string {
	switch s {
	case NotFound:
		return "NotFound"
	case SingleHit:
		return "SingleHit"
	case MultipleHits:
		return "MultipleHits"
	default:
		return fmt.Sprintf("AlignmentStatus(%d)", int(s))
	}
}

// isOneLocation reports whether s resolved to exactly one location.
func isOneLocation(s AlignmentStatus) bool {
	return s == SingleHit
}

// MaxMapq is the largest MAPQ this package ever reports.
const MaxMapq = 70

// Read is one sequenced end: bases, per-base quality, and an identifier.
// A Read is immutable once constructed; Useful is derived at construction
// time from length and N-content.
type Read struct {
	ID   string
	Bases []byte // {A,C,G,T,N}
	Qual  []byte // same length as Bases

	useful bool
	nCount int
}

// NewRead builds a Read and computes its usefulness flag.
// minReadLength and maxEditDistance mirror Options.MinReadLength and
// Options.MaxEditDistance: a read is useful iff it is long enough and its
// N-count does not already exceed the edit-distance budget.
func NewRead(id string, bases, qual []byte, minReadLength, maxEditDistance int) *Read {
	r := &Read{ID: id, Bases: bases, Qual: qual}
	if hasNonACGT(bases) {
		r.nCount = countNs(bases)
	}
	r.useful = len(bases) >= minReadLength && r.nCount <= maxEditDistance
	return r
}

// countNs returns the number of non-ACGT bases in seq, using the same
// portable bit-scan used elsewhere in this repo's FASTQ ingestion path.
func countNs(seq []byte) int {
	n := 0
	for _, b := range seq {
		switch b {
		case 'A', 'C', 'G', 'T', 'a', 'c', 'g', 't':
		default:
			n++
		}
	}
	return n
}

// hasNonACGT is a cheap pre-check used before the full count; grounded on
// biosimd.IsNonACGTPresent, which already implements exactly this fast path.
func hasNonACGT(seq []byte) bool {
	return biosimd.IsNonACGTPresent(seq)
}

// Len returns the number of bases in the read.
func (r *Read) Len() int { return len(r.Bases) }

// NCount returns the number of non-ACGT bases in the read.
func (r *Read) NCount() int { return r.nCount }

// Useful reports whether this read is long enough and clean enough to seed
// alignment on its own.
func (r *Read) Useful() bool { return r.useful }

// ReadPair is one sequenced fragment: two mates sharing an identifier stem
// and a barcode.
type ReadPair struct {
	A, B    *Read
	Barcode string
}

// UsefulMask returns which of the two mates are individually useful.
func (p *ReadPair) UsefulMask() (usefulA, usefulB bool) {
	return p.A.Useful(), p.B.Useful()
}

// AnyUseful reports whether at least one mate is useful; pairs with neither
// mate useful are degenerate and never enter alignment.
func (p *ReadPair) AnyUseful() bool {
	a, b := p.UsefulMask()
	return a || b
}

// PairedResult is one candidate joint placement of a ReadPair, or the
// terminal NotFound/single-mate-only outcome.
type PairedResult struct {
	Status   [2]AlignmentStatus
	Location [2]GenomeLocation
	Strand   [2]bool // true iff reverse-complement
	Score    [2]int
	Mapq     [2]int

	AlignedAsPair     bool
	FromAlignTogether bool

	// Observability, carried from the original TenXAlignerStats fields
	// that are meaningful per-result rather than per-worker.
	NanosInAlignTogether int64
	NSmallHits           int
	NLVCalls             int
}

// NewUnmappedPairedResult returns the canonical "both mates NotFound"
// result used for degenerate pairs and the no-index fast path.
func NewUnmappedPairedResult() PairedResult {
	return PairedResult{
		Status:   [2]AlignmentStatus{NotFound, NotFound},
		Location: [2]GenomeLocation{InvalidGenomeLocation, InvalidGenomeLocation},
	}
}

// SingleResult is one candidate placement of a single mate, scored
// independently of its partner (used by single-end fallback).
type SingleResult struct {
	Status   AlignmentStatus
	Location GenomeLocation
	Strand   bool
	Score    int
	Mapq     int
}

// PairProgress is the mutable state the Orchestrator drives for one pair
// across stages. It consolidates what the original kept as ~10 parallel
// arrays keyed by pair index into one record per pair.
type PairProgress struct {
	NotDone              bool
	PopularSeedsSkipped  [2]int
	PairedSecondaryCap   int
	SingleSecondaryCap   [2]int
	NSecondaryResults    int
	NSingleSecondaryRes  [2]int

	// PairedResults[0] is the primary; [1:1+NSecondaryResults] are
	// secondaries. Capacity is PairedSecondaryCap+1.
	PairedResults []PairedResult
	// SingleResults[m] holds mate m's independent placements; index 0 is
	// the primary, [1:1+NSingleSecondaryRes[m]] are secondaries.
	SingleResults [2][]SingleResult

	clusterID int // -1 if unassigned; set by Orchestrator.ProcessBatch via ClusterIndex.ClusterAt
	stage     pairStage
}

// pairStage names where a pair sits in the Orchestrator's per-pair state
// machine: every pair moves through these in order, though
// the fast path (no reference index, or a degenerate pair) jumps straight
// to stageEmitted.
type pairStage int

const (
	stageSeeding pairStage = iota
	stagePairedScoring
	stageSingleFallback
	stageEmitted
)

// BarcodeBatch is up to Options.MaxBarcodeSize ReadPairs sharing one
// barcode. Orchestrator.ProcessBatch keeps the per-pair state for Pairs[i]
// at index i of its Arena; it does not fill the Progress field.
type BarcodeBatch struct {
	Barcode  string
	Pairs    []*ReadPair
	Progress []*PairProgress
}

// Len returns the number of pairs currently in the batch.
func (b *BarcodeBatch) Len() int { return len(b.Pairs) }
