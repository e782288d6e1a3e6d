package align

import (
	"sort"

	"github.com/grailbio/tenxalign/biosimd"
	"github.com/grailbio/tenxalign/util"
)

// PairAligner holds the per-pair working state for seeding, candidate
// generation and scoring. The Orchestrator keeps one instance per pair
// position in a batch and reuses it across batches; Reset clears it before
// that position's next pair. A PairAligner is a scratchpad, not a value.
type PairAligner struct {
	opts  *Options
	index ReferenceIndex
	pool  *candidatePool

	// scratch buffers, reused across calls to avoid per-pair allocation.
	revComp [2][]byte
}

// NewPairAligner constructs a PairAligner bound to one reference index and
// option set. Both must outlive every pair it processes.
func NewPairAligner(index ReferenceIndex, opts *Options) *PairAligner {
	return &PairAligner{
		opts:  opts,
		index: index,
		pool:  newCandidatePool(opts.MaxCandidatePoolSize),
	}
}

// Reset clears the aligner's candidate pool so it can be reused for the next
// pair. It does not release the pool's backing arrays.
func (a *PairAligner) Reset() {
	a.pool.reset()
}

// seedHit is one k-mer's contribution to one mate's location tally.
type seedHit struct {
	loc    GenomeLocation
	strand bool // true iff the hit came from the reverse-complement seed
}

// numSeeds decides how many seeds to draw from a read of the given length,
// per Options.AdaptiveSeeding.
func (a *PairAligner) numSeeds(readLen int) int {
	if !a.opts.AdaptiveSeeding() {
		return a.opts.NumSeedsFromCommandLine
	}
	seedLen := a.index.SeedLength()
	if seedLen <= 0 {
		return 0
	}
	n := int(float64(readLen) / float64(seedLen) * a.opts.SeedCoverage)
	if n < 1 {
		n = 1
	}
	return n
}

// seedOffsets returns numSeeds evenly spaced starting offsets for
// seedLength-long k-mers drawn from a read of length readLen. Offsets never
// let a seed run past the end of the read.
func seedOffsets(readLen, seedLength, numSeeds int) []int {
	maxStart := readLen - seedLength
	if maxStart < 0 {
		return nil
	}
	if numSeeds <= 1 || maxStart == 0 {
		return []int{0}
	}
	offsets := make([]int, 0, numSeeds)
	step := float64(maxStart) / float64(numSeeds-1)
	for i := 0; i < numSeeds; i++ {
		offsets = append(offsets, int(float64(i)*step))
	}
	return offsets
}

// collectHits looks up every seed drawn from bases (and its reverse
// complement) and tallies weighted hits per location. It returns the tally
// and the number of seeds skipped for being too popular
// (Options.IntersectingAlignerMaxHits).
func (a *PairAligner) collectHits(bases []byte) (tally map[GenomeLocation]int, strandOf map[GenomeLocation]bool, skipped int) {
	seedLen := a.index.SeedLength()
	n := a.numSeeds(len(bases))
	offsets := seedOffsets(len(bases), seedLen, n)

	if cap(a.revComp[0]) < len(bases) {
		a.revComp[0] = make([]byte, len(bases))
	}
	rc := a.revComp[0][:len(bases)]
	biosimd.ReverseComp8NoValidate(rc, bases)

	tally = make(map[GenomeLocation]int, len(offsets)*2)
	strandOf = make(map[GenomeLocation]bool, len(offsets)*2)

	scan := func(seq []byte, strand bool) {
		for _, off := range offsets {
			kmer := seq[off : off+seedLen]
			hits := a.index.Lookup(kmer)
			if len(hits) == 0 {
				continue
			}
			if len(hits) > a.opts.IntersectingAlignerMaxHits {
				skipped++
				continue
			}
			for _, h := range hits {
				loc := h - GenomeLocation(off)
				tally[loc]++
				strandOf[loc] = strand
			}
		}
	}
	scan(bases, false)
	scan(rc, true)
	return tally, strandOf, skipped
}

// seedAndIntersect draws seeds from both mates, looks them up in the
// reference index, and intersects the two mates' hit sets within
// [MinSpacing, MaxSpacing] to build joint candidates. It also records
// single-mate candidates for any location that never found a partner, for
// use by singleFallback. popularSeedsSkipped[m] counts seeds from mate m
// dropped for exceeding IntersectingAlignerMaxHits.
func (a *PairAligner) seedAndIntersect(pair *ReadPair) (popularSeedsSkipped [2]int, err error) {
	if a.index == nil {
		return popularSeedsSkipped, nil
	}
	var tally [2]map[GenomeLocation]int
	var strandOf [2]map[GenomeLocation]bool
	mates := [2]*Read{pair.A, pair.B}
	for m, r := range mates {
		if !r.Useful() {
			continue
		}
		t, s, skipped := a.collectHits(r.Bases)
		tally[m], strandOf[m] = t, s
		popularSeedsSkipped[m] = skipped
	}

	paired := make(map[GenomeLocation]bool)
	if tally[0] != nil && tally[1] != nil {
		locsA := sortedLocs(tally[0])
		for _, locA := range locsA {
			strandA := strandOf[0][locA]
			for _, locB := range candidateMatesFor(locA, strandA, tally[1], a.opts) {
				weight := tally[0][locA] + tally[1][locB]
				if weight < a.opts.MinWeightToCheck {
					continue
				}
				if err := a.pool.addPaired(pairCandidate{
					LocA: locA, LocB: locB,
					StrandA: strandA, StrandB: strandOf[1][locB],
					Weight: weight,
				}); err != nil {
					return popularSeedsSkipped, err
				}
				paired[locA] = true
				paired[locB] = true
			}
		}
	}

	for m := range mates {
		if tally[m] == nil {
			continue
		}
		for loc, weight := range tally[m] {
			if paired[loc] || weight < a.opts.MinWeightToCheck {
				continue
			}
			if err := a.pool.addSingle(m, singleCandidate{
				Loc: loc, Strand: strandOf[m][loc], Weight: weight,
			}); err != nil {
				return popularSeedsSkipped, err
			}
		}
	}
	return popularSeedsSkipped, nil
}

// sortedLocs returns the keys of tally in ascending order, so intersection
// scans genomic locations left to right.
func sortedLocs(tally map[GenomeLocation]int) []GenomeLocation {
	locs := make([]GenomeLocation, 0, len(tally))
	for loc := range tally {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })
	return locs
}

// candidateMatesFor returns every location in otherTally within
// [MinSpacing, MaxSpacing] of locA, on either side: both orientations are
// always tried since FR/RF fragment layout is determined by the library prep
// and not assumed here.
func candidateMatesFor(locA GenomeLocation, strandA bool, otherTally map[GenomeLocation]int, opts *Options) []GenomeLocation {
	var out []GenomeLocation
	lo := locA - GenomeLocation(opts.MaxSpacing)
	hi := locA + GenomeLocation(opts.MaxSpacing)
	for loc := range otherTally {
		if loc == locA {
			continue
		}
		if loc < lo || loc > hi {
			continue
		}
		d := loc - locA
		if d < 0 {
			d = -d
		}
		if int(d) < opts.MinSpacing {
			continue
		}
		out = append(out, loc)
	}
	return out
}

// scoreCandidate computes the edit distance (and, for the reference-only
// side, the extra downstream context the underlying scoring kernel needs
// to score indels near the end of a fixed-length read) between a read and
// the reference window at loc/strand. It returns -1 if the reference index
// cannot supply enough bases to score, or if the distance exceeds
// Options.MaxEditDistance.
func (a *PairAligner) scoreCandidate(read *Read, loc GenomeLocation, strand bool) int {
	extra := a.opts.ExtraSearchDepth
	window := a.index.Bases(loc, read.Len()+extra)
	if len(window) < read.Len() {
		return -1
	}
	refCore := window[:read.Len()]
	refExtra := window[read.Len():]

	bases := read.Bases
	if strand {
		if cap(a.revComp[1]) < len(bases) {
			a.revComp[1] = make([]byte, len(bases))
		}
		rc := a.revComp[1][:len(bases)]
		biosimd.ReverseComp8NoValidate(rc, bases)
		bases = rc
	}
	dist := util.Levenshtein(string(bases), string(refCore), "", string(refExtra))
	if dist > a.opts.MaxEditDistance {
		return -1
	}
	return dist
}

// mapqFromMargin converts the gap between the best and second-best score
// into a MAPQ, matching the original's saturating linear scale.
func mapqFromMargin(margin int) int {
	if margin <= 0 {
		return 0
	}
	mapq := margin * 10
	if mapq > MaxMapq {
		return MaxMapq
	}
	return mapq
}

// bestAndSecondary scores every paired candidate and returns the primary
// result plus up to progress.PairedSecondaryCap secondaries, in the order
// primary first, secondaries sorted by ascending score. Candidates tied on
// total score are broken by cluster membership: a location cluster already
// found to hold more pairs is favored as the primary placement, since
// that's independent evidence no single pair's own alignment carries. It
// reports overflow by returning ok=false when more secondaries exist than
// fit in the caller's buffer; the caller doubles the buffer and retries.
func (a *PairAligner) bestAndSecondary(pair *ReadPair, progress *PairProgress, cluster *ClusterIndex) (ok bool) {
	type scored struct {
		c      pairCandidate
		scoreA int
		scoreB int
		total  int
	}
	var results []scored
	for _, c := range a.pool.paired {
		sa := a.scoreCandidate(pair.A, c.LocA, c.StrandA)
		sb := a.scoreCandidate(pair.B, c.LocB, c.StrandB)
		if sa < 0 || sb < 0 {
			continue
		}
		results = append(results, scored{c: c, scoreA: sa, scoreB: sb, total: sa + sb})
	}
	if len(results) == 0 {
		progress.PairedResults = append(progress.PairedResults[:0], NewUnmappedPairedResult())
		return true
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].total != results[j].total {
			return results[i].total < results[j].total
		}
		contigI, _ := a.index.ContigOf(results[i].c.LocA)
		contigJ, _ := a.index.ContigOf(results[j].c.LocA)
		sizeI := cluster.ClusterSizeAt(results[i].c.LocA, contigI, results[i].c.StrandA)
		sizeJ := cluster.ClusterSizeAt(results[j].c.LocA, contigJ, results[j].c.StrandA)
		return sizeI > sizeJ
	})

	best := results[0]
	status := SingleHit
	if len(results) > 1 && results[1].total == best.total {
		status = MultipleHits
	}
	mapq := MaxMapq
	if status == MultipleHits {
		mapq = 0
	} else if len(results) > 1 {
		mapq = mapqFromMargin(results[1].total - best.total)
	}

	primary := PairedResult{
		Status:            [2]AlignmentStatus{status, status},
		Location:          [2]GenomeLocation{best.c.LocA, best.c.LocB},
		Strand:            [2]bool{best.c.StrandA, best.c.StrandB},
		Score:             [2]int{best.scoreA, best.scoreB},
		Mapq:              [2]int{mapq, mapq},
		AlignedAsPair:     true,
		FromAlignTogether: true,
	}

	secondaries := results[1:]
	if !a.opts.SecondaryReportingEnabled() {
		progress.PairedResults = append(progress.PairedResults[:0], primary)
		return true
	}

	secondaryCap := progress.PairedSecondaryCap
	kept := 0
	out := append(progress.PairedResults[:0], primary)
	for _, s := range secondaries {
		if s.total-best.total > a.opts.MaxSecondaryAlignmentAdditionalEditDistance {
			break
		}
		if kept >= secondaryCap {
			progress.NSecondaryResults = kept
			return false
		}
		out = append(out, PairedResult{
			Status:        [2]AlignmentStatus{MultipleHits, MultipleHits},
			Location:      [2]GenomeLocation{s.c.LocA, s.c.LocB},
			Strand:        [2]bool{s.c.StrandA, s.c.StrandB},
			Score:         [2]int{s.scoreA, s.scoreB},
			Mapq:          [2]int{0, 0},
			AlignedAsPair: true,
		})
		kept++
	}
	progress.PairedResults = out
	progress.NSecondaryResults = kept
	return true
}

// singleFallback scores every recorded single-mate candidate for mate m and
// fills progress.SingleResults[m], honoring the same overflow-signaling
// contract as bestAndSecondary.
func (a *PairAligner) singleFallback(read *Read, mate int, progress *PairProgress) (ok bool) {
	type scored struct {
		c     singleCandidate
		score int
	}
	var results []scored
	for _, c := range a.pool.single[mate] {
		s := a.scoreCandidate(read, c.Loc, c.Strand)
		if s < 0 {
			continue
		}
		results = append(results, scored{c: c, score: s})
	}
	if len(results) == 0 {
		progress.SingleResults[mate] = append(progress.SingleResults[mate][:0], SingleResult{
			Status: NotFound, Location: InvalidGenomeLocation,
		})
		return true
	}
	sort.Slice(results, func(i, j int) bool { return results[i].score < results[j].score })

	best := results[0]
	status := SingleHit
	if len(results) > 1 && results[1].score == best.score {
		status = MultipleHits
	}
	mapq := MaxMapq
	if status == MultipleHits {
		mapq = 0
	} else if len(results) > 1 {
		mapq = mapqFromMargin(results[1].score - best.score)
	}

	primary := SingleResult{
		Status: status, Location: best.c.Loc, Strand: best.c.Strand,
		Score: best.score, Mapq: mapq,
	}
	if !a.opts.SecondaryReportingEnabled() {
		progress.SingleResults[mate] = append(progress.SingleResults[mate][:0], primary)
		return true
	}

	secondaryCap := progress.SingleSecondaryCap[mate]
	kept := 0
	out := append(progress.SingleResults[mate][:0], primary)
	for _, s := range results[1:] {
		if s.score-best.score > a.opts.MaxSecondaryAlignmentAdditionalEditDistance {
			break
		}
		if kept >= secondaryCap {
			progress.NSingleSecondaryRes[mate] = kept
			return false
		}
		out = append(out, SingleResult{
			Status: MultipleHits, Location: s.c.Loc, Strand: s.c.Strand,
			Score: s.score, Mapq: 0,
		})
		kept++
	}
	progress.SingleResults[mate] = out
	progress.NSingleSecondaryRes[mate] = kept
	return true
}
