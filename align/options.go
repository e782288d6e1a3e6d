package align

// FilterFlags selects how the paired filter predicate combines the two
// mates' individual pass/fail decisions.
type FilterFlags int

const (
	// MatchEither passes the pair if either mate passes the filter. This
	// is the default, matching AlignerOptions::FilterFlags's default in
	// the original.
	MatchEither FilterFlags = iota
	// MatchBoth requires both mates to pass.
	MatchBoth
)

// Options collects every tunable this package exposes. Fields have the
// same defaults as the original TenXAlignerOptions.
type Options struct {
	MinSpacing int // lower bound on mate separation
	MaxSpacing int // upper bound on mate separation

	MaxBarcodeSize    int // max pairs per barcode batch
	MinPairsPerCluster int // cluster admission threshold
	MaxClusterSpan     int // cluster geometric bound (bases)

	ForceSpacing bool // demote half-mapped pairs to NotFound

	IntersectingAlignerMaxHits int // popular-seed skip threshold
	MaxCandidatePoolSize       int // per-pair candidate cap

	MinReadLength   int
	MaxEditDistance int // a.k.a. maxDist; also caps usable N-count
	ExtraSearchDepth int
	MinWeightToCheck int

	NumSeedsFromCommandLine int     // 0 disables fixed-count seeding
	SeedCoverage            float64 // used only when NumSeedsFromCommandLine is 0

	QuicklyDropUnpairedReads bool

	FilterFlags FilterFlags

	// MaxSecondaryAlignmentAdditionalEditDistance < 0 disables secondary
	// reporting entirely (both paired and single).
	MaxSecondaryAlignmentAdditionalEditDistance int

	// Kernel toggles; each must be behavior-preserving when false (spec
	// §4.1 "Optional kernels").
	NoUkkonen           bool
	NoOrderedEvaluation bool
	NoTruncation        bool

	IgnoreMismatchedIDs bool

	// UseTimingBarrier makes worker pool startup rendezvous after every
	// worker has reserved its arena.
	UseTimingBarrier bool
}

// DefaultOptions returns the option set with every default from the
// original TenXAlignerOptions constructor filled in.
func DefaultOptions() Options {
	return Options{
		MinSpacing:                 50,
		MaxSpacing:                 1000,
		MaxBarcodeSize:             60000,
		MinPairsPerCluster:         10,
		MaxClusterSpan:             100000,
		ForceSpacing:               false,
		IntersectingAlignerMaxHits: 300,
		MaxCandidatePoolSize:       10000,
		MinReadLength:              50,
		MaxEditDistance:            10,
		ExtraSearchDepth:           2,
		MinWeightToCheck:           3,
		NumSeedsFromCommandLine:    0,
		SeedCoverage:               1.0,
		QuicklyDropUnpairedReads:   true,
		FilterFlags:                MatchEither,
		MaxSecondaryAlignmentAdditionalEditDistance: -1,
		UseTimingBarrier: false,
	}
}

// AdaptiveSeeding reports whether seed selection should use coverage-based
// counts rather than a fixed count per read. The two modes are mutually
// exclusive.
func (o *Options) AdaptiveSeeding() bool {
	return o.NumSeedsFromCommandLine == 0
}

// SecondaryReportingEnabled reports whether the caller wants secondary
// alignments at all.
func (o *Options) SecondaryReportingEnabled() bool {
	return o.MaxSecondaryAlignmentAdditionalEditDistance >= 0
}

// InitialSecondaryCapacity is the starting size of a per-pair secondary
// result buffer. It intentionally wastes little memory since buffers are
// doubled on overflow (mirrors the comment in the original
// runIterationThread).
func (o *Options) InitialSecondaryCapacity() int {
	if !o.SecondaryReportingEnabled() {
		return 0
	}
	return 32
}
