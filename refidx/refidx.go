// Package refidx builds an in-memory k-mer index over a FASTA reference and
// implements align.ReferenceIndex against it. It is the concrete
// "given" seed-table the core package treats as a collaborator, grounded
// on encoding/fasta for sequence storage.
package refidx

import (
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/tenxalign/align"
	"github.com/grailbio/tenxalign/biosimd"
	"github.com/grailbio/tenxalign/encoding/fasta"
)

// contigSpan records where one contig's bases live within the
// concatenated genome-location coordinate space align.GenomeLocation
// addresses.
type contigSpan struct {
	name  string
	start align.GenomeLocation // inclusive
	end   align.GenomeLocation // exclusive
}

// Index is a naive k-mer table: every seedLength-mer's occurrences,
// recorded once per contig at load time. It is read-only after Build
// returns and safe for concurrent Lookup/ContigOf/Bases calls, matching
// align.ReferenceIndex's "thread-safe for concurrent readers" contract.
type Index struct {
	seedLength int
	bases      []byte // concatenated, upper-cased contig sequences
	spans      []contigSpan
	table      map[string][]align.GenomeLocation
}

// Build reads every sequence out of fa and constructs an Index over
// seedLength-mers. Contigs are concatenated in fa.SeqNames order; a single
// base of padding never occurs between contigs, so a seed can spuriously
// straddle a contig boundary near the tail of one and the head of the
// next. Callers that care can filter such hits via ContigOf.
func Build(fa fasta.Fasta, seedLength int) (*Index, error) {
	idx := &Index{
		seedLength: seedLength,
		table:      make(map[string][]align.GenomeLocation),
	}
	var offset align.GenomeLocation
	for _, name := range fa.SeqNames() {
		n, err := fa.Len(name)
		if err != nil {
			return nil, err
		}
		seq, err := fa.Get(name, 0, n)
		if err != nil {
			return nil, err
		}
		upper := strings.ToUpper(seq)
		idx.spans = append(idx.spans, contigSpan{name: name, start: offset, end: offset + align.GenomeLocation(len(upper))})
		idx.bases = append(idx.bases, upper...)
		offset += align.GenomeLocation(len(upper))
	}
	log.Debug.Printf("refidx: indexed %d contigs, %d bases total", len(idx.spans), len(idx.bases))
	idx.indexKmers()
	return idx, nil
}

// indexKmers scans idx.bases once and records every seedLength-mer's
// starting locations. Windows containing a non-ACGT base are skipped: they
// can never usefully seed an alignment.
func (idx *Index) indexKmers() {
	k := idx.seedLength
	if k <= 0 || len(idx.bases) < k {
		return
	}
	for i := 0; i+k <= len(idx.bases); i++ {
		window := idx.bases[i : i+k]
		if biosimd.IsNonACGTPresent(window) {
			continue
		}
		key := string(window)
		idx.table[key] = append(idx.table[key], align.GenomeLocation(i))
	}
}

// SeedLength implements align.ReferenceIndex.
func (idx *Index) SeedLength() int { return idx.seedLength }

// Lookup implements align.ReferenceIndex.
func (idx *Index) Lookup(kmer []byte) []align.GenomeLocation {
	return idx.table[strings.ToUpper(string(kmer))]
}

// ContigOf implements align.ReferenceIndex.
func (idx *Index) ContigOf(loc align.GenomeLocation) (string, int64) {
	for _, s := range idx.spans {
		if loc >= s.start && loc < s.end {
			return s.name, int64(loc - s.start)
		}
	}
	return "", -1
}

// Bases implements align.ReferenceIndex.
func (idx *Index) Bases(loc align.GenomeLocation, length int) []byte {
	if loc < 0 || int64(loc) >= int64(len(idx.bases)) {
		return nil
	}
	end := int64(loc) + int64(length)
	if end > int64(len(idx.bases)) {
		end = int64(len(idx.bases))
	}
	return idx.bases[loc:end]
}
