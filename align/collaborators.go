package align

import "context"

// ReferenceIndex is the read-only, concurrently-shared reference genome
// index. Construction and loading are out of scope for this package;
// refidx provides one concrete implementation.
type ReferenceIndex interface {
	// SeedLength returns the k-mer length this index was built with.
	SeedLength() int
	// Lookup returns every location a k-mer occurs at in the reference.
	// The returned slice must not be mutated by the caller.
	Lookup(kmer []byte) []GenomeLocation
	// ContigOf maps a GenomeLocation back to a contig name and 0-based
	// offset within that contig.
	ContigOf(loc GenomeLocation) (contig string, offset int64)
	// Bases returns up to length reference bases starting at loc. It may
	// return fewer than length bytes near a contig boundary. This is the
	// "given" seed-table/sequence access this package treats as external;
	// scoreCandidate is the only caller.
	Bases(loc GenomeLocation, length int) []byte
}

// PairedReadSupplier streams read pairs, grouped by barcode: the supplier
// is responsible for ensuring consecutive pairs with the same barcode form
// one group and that a change of barcode marks a boundary. The
// orchestrator never re-sorts.
type PairedReadSupplier interface {
	// NextPair returns the next pair and true, or false at end of stream.
	NextPair(ctx context.Context) (pair *ReadPair, ok bool, err error)
}

// PairedWriter is the append-only, externally-synchronized output sink.
type PairedWriter interface {
	WritePairs(
		ctx context.Context,
		pair *ReadPair,
		results []PairedResult,
		nResults int,
		singleResults [2][]SingleResult,
		nSingleResults [2]int,
		firstIsPrimary bool,
	) error
}

// FilterPredicate decides whether one read's result should be reported.
type FilterPredicate interface {
	PassFilter(read *Read, status AlignmentStatus, degraded bool, isSecondary bool) bool
}

// FilterPredicateFunc adapts a plain function to FilterPredicate.
type FilterPredicateFunc func(read *Read, status AlignmentStatus, degraded, isSecondary bool) bool

// PassFilter implements FilterPredicate.
func (f FilterPredicateFunc) PassFilter(read *Read, status AlignmentStatus, degraded, isSecondary bool) bool {
	return f(read, status, degraded, isSecondary)
}

// AlwaysPass is the trivial predicate that reports every result.
var AlwaysPass FilterPredicate = FilterPredicateFunc(func(*Read, AlignmentStatus, bool, bool) bool { return true })

// passFilterPair combines the two mates' individual filter results
// according to flags, matching the original's
// "(filterFlags & FilterBothMatesMatch) ? (pass0 && pass1) : (pass0 || pass1)".
func passFilterPair(flags FilterFlags, pass0, pass1 bool) bool {
	if flags == MatchBoth {
		return pass0 && pass1
	}
	return pass0 || pass1
}
