package align

import "sort"

// Cluster is a set of pairs whose candidate locations, on the same contig
// and strand, fall within Options.MaxClusterSpan of each other. Pairs from
// the same source molecule tend to land in the same cluster even when
// individually ambiguous, and the Orchestrator uses cluster membership to
// boost MAPQ and to break ties between candidate locations during scoring.
//
// Contig and Strand are part of a cluster's identity, not just its
// entries': the reference index concatenates contigs into one flat
// coordinate space with no padding between them, so two candidates on
// unrelated contigs (or opposite strands of the same one) can sit within
// MaxClusterSpan of each other by raw coordinate alone. Without segmenting
// on (contig, strand), those would merge into a single cluster and
// spuriously boost MAPQ on an unrelated placement.
type Cluster struct {
	ID       int
	Contig   string
	Strand   bool
	Start    GenomeLocation
	End      GenomeLocation // exclusive
	PairIdxs []int
}

// locEntry is one candidate location contributed by one pair, the unit
// ClusterIndex sorts and scans: build a sorted list once, then scan windows
// into it, rather than paying for a tree structure.
type locEntry struct {
	loc     GenomeLocation
	contig  string
	strand  bool
	pairIdx int
}

// ClusterIndex maps genomic regions to the pairs that placed a candidate
// there, for one barcode batch. It is rebuilt from scratch per batch; there
// is no incremental removal.
//
// Clusters are looked up by (location, contig, strand), not by pair index: a
// single pair's candidate locations can straddle two different clusters
// (that is exactly what an ambiguous, multiply-placed pair looks like), so
// there is no single cluster "for" a pair until a location has been chosen
// for it.
type ClusterIndex struct {
	opts    *Options
	entries []locEntry

	clusters []Cluster // grouped by (contig, strand), then sorted by Start within each group
}

// NewClusterIndex returns an empty index for one barcode batch.
func NewClusterIndex(opts *Options) *ClusterIndex {
	return &ClusterIndex{opts: opts}
}

// Reset clears the index for reuse on the next barcode batch.
func (ci *ClusterIndex) Reset() {
	ci.entries = ci.entries[:0]
	ci.clusters = ci.clusters[:0]
}

// Insert records that pairIdx placed a candidate at loc, on contig and
// strand (true for reverse complement). Call once per candidate location surviving
// seedAndIntersect, for every pair in the batch, before calling
// DiscoverClusters.
func (ci *ClusterIndex) Insert(pairIdx int, loc GenomeLocation, contig string, strand bool) {
	ci.entries = append(ci.entries, locEntry{loc: loc, contig: contig, strand: strand, pairIdx: pairIdx})
}

// DiscoverClusters groups the accumulated entries into clusters wherever a
// run of same-contig, same-strand entries spans no more than MaxClusterSpan
// bases and contributes candidates from at least MinPairsPerCluster
// distinct pairs. It replaces any clusters from a previous call. Call this
// once per batch, after every pair's candidates have been inserted and
// before scoring: scoring consults cluster membership to break ties, so
// discovery must happen first.
//
// Entries are sorted primarily by (contig, strand) and secondarily by loc,
// so each contig/strand's coordinate space is scanned as an independent
// block; the window-extension loop below additionally requires the window's
// tail to still match the window's own contig and strand, so a window never
// absorbs the next block's leading entries even when that block's raw
// coordinates happen to start numerically close to the current one's end.
func (ci *ClusterIndex) DiscoverClusters() {
	sort.Slice(ci.entries, func(i, j int) bool {
		a, b := ci.entries[i], ci.entries[j]
		if a.contig != b.contig {
			return a.contig < b.contig
		}
		if a.strand != b.strand {
			return !a.strand && b.strand
		}
		return a.loc < b.loc
	})
	ci.clusters = ci.clusters[:0]

	n := len(ci.entries)
	windowStart := 0
	for windowStart < n {
		start := ci.entries[windowStart]
		span := GenomeLocation(ci.opts.MaxClusterSpan)
		windowEnd := windowStart
		limit := start.loc + span
		for windowEnd < n &&
			ci.entries[windowEnd].contig == start.contig &&
			ci.entries[windowEnd].strand == start.strand &&
			ci.entries[windowEnd].loc < limit {
			windowEnd++
		}
		distinct := distinctPairCount(ci.entries[windowStart:windowEnd])
		if distinct >= ci.opts.MinPairsPerCluster {
			c := Cluster{
				ID:     len(ci.clusters),
				Contig: start.contig,
				Strand: start.strand,
				Start:  start.loc,
				End:    ci.entries[windowEnd-1].loc + 1,
			}
			seen := make(map[int]bool, distinct)
			for _, e := range ci.entries[windowStart:windowEnd] {
				if !seen[e.pairIdx] {
					seen[e.pairIdx] = true
					c.PairIdxs = append(c.PairIdxs, e.pairIdx)
				}
			}
			ci.clusters = append(ci.clusters, c)
		}
		windowStart = windowEnd
	}
}

// distinctPairCount returns the number of distinct PairIdx values among es.
func distinctPairCount(es []locEntry) int {
	seen := make(map[int]bool, len(es))
	for _, e := range es {
		seen[e.pairIdx] = true
	}
	return len(seen)
}

// ClusterAt returns the cluster containing (loc, contig, strand), from the
// most recent DiscoverClusters call, if any. A barcode batch produces at
// most a few dozen clusters, so this is a linear scan rather than an index
// keyed on (contig, strand): the same "small N, don't build a tree"
// reasoning that justifies scanning ci.entries by window instead of
// maintaining an interval tree.
func (ci *ClusterIndex) ClusterAt(loc GenomeLocation, contig string, strand bool) (Cluster, bool) {
	for _, c := range ci.clusters {
		if c.Contig != contig || c.Strand != strand {
			continue
		}
		if loc >= c.Start && loc < c.End {
			return c, true
		}
	}
	return Cluster{}, false
}

// ClusterSizeAt returns the number of distinct pairs in the cluster
// containing (loc, contig, strand), or 0 if it falls in no cluster.
// bestAndSecondary uses this to break ties between candidate locations: the
// location resident in the larger cluster wins.
func (ci *ClusterIndex) ClusterSizeAt(loc GenomeLocation, contig string, strand bool) int {
	c, ok := ci.ClusterAt(loc, contig, strand)
	if !ok {
		return 0
	}
	return len(c.PairIdxs)
}

// clusterMapqBoost adds evidence from cluster co-membership to a
// single-pair MAPQ. Larger clusters carry more evidence, saturating at
// MaxMapq; this is the "boost even when no single pair's alignment is
// unambiguous on its own" rule from the package doc comment, expressed as a
// pure function so it is independently testable.
func clusterMapqBoost(baseMapq int, clusterSize int) int {
	if clusterSize < 2 {
		return baseMapq
	}
	boosted := baseMapq + clusterSize
	if boosted > MaxMapq {
		return MaxMapq
	}
	return boosted
}
