package align

import "context"

// Emitter applies the filter policy to one pair's finished results and
// hands the surviving ones to a PairedWriter. It owns no state of its own;
// every call is independent.
type Emitter struct {
	opts   *Options
	filter FilterPredicate
	writer PairedWriter
}

// NewEmitter returns an Emitter that filters with pred (AlwaysPass if nil)
// and writes surviving results to w.
func NewEmitter(opts *Options, pred FilterPredicate, w PairedWriter) *Emitter {
	if pred == nil {
		pred = AlwaysPass
	}
	return &Emitter{opts: opts, filter: pred, writer: w}
}

// Emit runs the filter over pair's finished PairProgress and writes the
// result. If the primary placement fails the filter, the first secondary
// that passes is promoted to primary rather than dropping the pair
// outright; only a pair with nothing passing at all, primary or secondary,
// goes unwritten. Surviving paired secondaries and single-end secondaries
// are filtered the same way, each with the is-secondary bit set.
// firstIsPrimary records, for a pair that never resolved as a pair, which
// mate's single-end result (if either) is the one a downstream consumer
// should treat as primary when only one slot is available.
func (e *Emitter) Emit(ctx context.Context, pair *ReadPair, progress *PairProgress) error {
	if !e.promoteFirstPassing(pair, progress) {
		return nil
	}
	primary := progress.PairedResults[0]

	nResults := compactSecondaries(progress, e.opts.FilterFlags, e.filter, pair)
	nSingleResults := e.compactSingles(progress, pair)

	firstIsPrimary := true
	if primary.Status[0] == NotFound && primary.Status[1] != NotFound {
		firstIsPrimary = false
	}

	return e.writer.WritePairs(
		ctx, pair,
		progress.PairedResults, nResults,
		progress.SingleResults, nSingleResults,
		firstIsPrimary,
	)
}

// promoteFirstPassing checks the primary result against the filter and, if
// it fails, swaps in the first secondary that passes instead. It reports
// whether any result now at index 0 passes the filter; a false return
// means nothing in progress.PairedResults survives, and Emit should write
// nothing.
func (e *Emitter) promoteFirstPassing(pair *ReadPair, progress *PairProgress) bool {
	if e.passes(pair, progress.PairedResults[0]) {
		return true
	}
	for i := 1; i < len(progress.PairedResults); i++ {
		if e.passes(pair, progress.PairedResults[i]) {
			progress.PairedResults[0], progress.PairedResults[i] = progress.PairedResults[i], progress.PairedResults[0]
			return true
		}
	}
	return false
}

// passes reports whether r itself, treated as the primary result, would
// survive the configured filter.
func (e *Emitter) passes(pair *ReadPair, r PairedResult) bool {
	pass0 := e.filter.PassFilter(pair.A, r.Status[0], !r.AlignedAsPair, false)
	pass1 := e.filter.PassFilter(pair.B, r.Status[1], !r.AlignedAsPair, false)
	return passFilterPair(e.opts.FilterFlags, pass0, pass1)
}

// compactSecondaries drops any secondary PairedResult that individually
// fails the filter, sliding survivors down, and returns the surviving
// count. Index 0, the primary, is never dropped: a pair that's reported
// at all always reports its primary placement. A secondary is judged by the
// same passFilterPair(flags, ...) combination as the primary, so a
// MatchBoth policy drops a secondary with only one mate passing exactly as
// it would drop such a pair outright; using bare OR here would silently
// loosen MatchBoth for secondaries. Every removal decrements
// progress.NSecondaryResults by exactly one, never a shared counter.
func compactSecondaries(progress *PairProgress, flags FilterFlags, filter FilterPredicate, pair *ReadPair) int {
	kept := 1
	for i := 1; i < len(progress.PairedResults); i++ {
		r := progress.PairedResults[i]
		pass0 := filter.PassFilter(pair.A, r.Status[0], !r.AlignedAsPair, true)
		pass1 := filter.PassFilter(pair.B, r.Status[1], !r.AlignedAsPair, true)
		if !passFilterPair(flags, pass0, pass1) {
			progress.NSecondaryResults--
			continue
		}
		progress.PairedResults[kept] = r
		kept++
	}
	progress.PairedResults = progress.PairedResults[:kept]
	return kept
}

// compactSingles drops any single-end secondary result that fails the
// filter for its own mate, sliding survivors down within
// progress.SingleResults[m] and returning the surviving count per mate.
// Index 0 of each mate's slice is never touched: singleFallbackOne already
// folds it into PairedResults[0], so the writer never emits it as a
// standalone record, and it isn't judged as a secondary here either. Every
// single-end result is judged independently, one mate at a time: there is
// no cross-mate MatchBoth/MatchEither combination, since a single-end
// result by definition has no mate placement to combine with.
func (e *Emitter) compactSingles(progress *PairProgress, pair *ReadPair) [2]int {
	mates := [2]*Read{pair.A, pair.B}
	var kept [2]int
	for m := 0; m < 2; m++ {
		results := progress.SingleResults[m]
		if len(results) == 0 {
			continue
		}
		n := 1
		for i := 1; i < len(results); i++ {
			r := results[i]
			if !e.filter.PassFilter(mates[m], r.Status, true, true) {
				continue
			}
			results[n] = r
			n++
		}
		progress.SingleResults[m] = results[:n]
		kept[m] = n
	}
	return kept
}
