package align

import (
	"context"
	"math/rand"
	"strings"
)

// randomGenome returns a deterministic pseudo-random ACGT sequence of
// length n, long enough that seedLength-mers drawn from it are vanishingly
// unlikely to repeat by chance for the seed lengths these tests use.
func randomGenome(n int, seed int64) string {
	r := rand.New(rand.NewSource(seed))
	const bases = "ACGT"
	out := make([]byte, n)
	for i := range out {
		out[i] = bases[r.Intn(4)]
	}
	return string(out)
}

// fakeIndex is a minimal in-memory ReferenceIndex over one or more
// concatenated linear sequences, for exercising PairAligner and
// Orchestrator without going through the refidx/fasta stack. Like the real
// refidx.Index, contigs are concatenated with no padding between them, so
// tests can reproduce the coordinate-adjacency the real index produces
// across a contig boundary.
type fakeIndex struct {
	seedLength int
	genome     []byte
	table      map[string][]GenomeLocation
	contigs    []fakeContigSpan // empty means the whole genome is "chr1"
}

type fakeContigSpan struct {
	name  string
	start GenomeLocation // inclusive
	end   GenomeLocation // exclusive
}

func newFakeIndex(genome string, seedLength int) *fakeIndex {
	idx := &fakeIndex{
		seedLength: seedLength,
		genome:     []byte(strings.ToUpper(genome)),
		table:      make(map[string][]GenomeLocation),
	}
	for i := 0; i+seedLength <= len(idx.genome); i++ {
		kmer := string(idx.genome[i : i+seedLength])
		idx.table[kmer] = append(idx.table[kmer], GenomeLocation(i))
	}
	return idx
}

// newMultiContigFakeIndex concatenates parts with no padding, exactly as
// refidx.Build does, and records each part's span so ContigOf can report
// which contig a location falls in.
func newMultiContigFakeIndex(seedLength int, names []string, parts []string) *fakeIndex {
	var whole strings.Builder
	spans := make([]fakeContigSpan, len(parts))
	for i, part := range parts {
		start := GenomeLocation(whole.Len())
		whole.WriteString(part)
		spans[i] = fakeContigSpan{name: names[i], start: start, end: GenomeLocation(whole.Len())}
	}
	idx := newFakeIndex(whole.String(), seedLength)
	idx.contigs = spans
	return idx
}

func (idx *fakeIndex) SeedLength() int { return idx.seedLength }

func (idx *fakeIndex) Lookup(kmer []byte) []GenomeLocation {
	return idx.table[strings.ToUpper(string(kmer))]
}

func (idx *fakeIndex) ContigOf(loc GenomeLocation) (string, int64) {
	if len(idx.contigs) == 0 {
		return "chr1", int64(loc)
	}
	for _, s := range idx.contigs {
		if loc >= s.start && loc < s.end {
			return s.name, int64(loc - s.start)
		}
	}
	return "", -1
}

func (idx *fakeIndex) Bases(loc GenomeLocation, length int) []byte {
	if loc < 0 || int(loc) >= len(idx.genome) {
		return nil
	}
	end := int(loc) + length
	if end > len(idx.genome) {
		end = len(idx.genome)
	}
	return idx.genome[loc:end]
}

// revComp returns the reverse complement of an ACGT-only string, for
// building test fixtures.
func revComp(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		var c byte
		switch s[len(s)-1-i] {
		case 'A':
			c = 'T'
		case 'C':
			c = 'G'
		case 'G':
			c = 'C'
		case 'T':
			c = 'A'
		default:
			c = 'N'
		}
		out[i] = c
	}
	return string(out)
}

// fakeWriter records every WritePairs call for assertions.
type fakeWriter struct {
	calls []fakeWriteCall
}

type fakeWriteCall struct {
	pair            *ReadPair
	results         []PairedResult
	nResults        int
	singleResults   [2][]SingleResult
	nSingleResults  [2]int
	firstIsPrimary  bool
}

// fakeSupplier replays a fixed slice of pairs, implementing
// PairedReadSupplier for worker-level tests.
type fakeSupplier struct {
	pairs []*ReadPair
	pos   int
}

func (s *fakeSupplier) NextPair(ctx context.Context) (*ReadPair, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}
	if s.pos >= len(s.pairs) {
		return nil, false, nil
	}
	p := s.pairs[s.pos]
	s.pos++
	return p, true, nil
}

func (w *fakeWriter) WritePairs(
	ctx context.Context,
	pair *ReadPair,
	results []PairedResult,
	nResults int,
	singleResults [2][]SingleResult,
	nSingleResults [2]int,
	firstIsPrimary bool,
) error {
	cp := make([]PairedResult, len(results))
	copy(cp, results)
	w.calls = append(w.calls, fakeWriteCall{pair, cp, nResults, singleResults, nSingleResults, firstIsPrimary})
	return nil
}
