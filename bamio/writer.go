// Package bamio implements align.PairedWriter over a BAM stream, using
// github.com/grailbio/hts/{sam,bam}: sam.Record values built with
// sam.NewRecord and handed to a *bam.Writer. Records are appended in the
// order WritePairs is called; the output is not coordinate-sorted and the
// header declares no sort order.
package bamio

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/tenxalign/align"
)

// ContigResolver is the subset of align.ReferenceIndex the writer needs to
// turn a GenomeLocation back into a contig name and offset. align.Index
// implementations satisfy this directly.
type ContigResolver interface {
	ContigOf(loc align.GenomeLocation) (contig string, offset int64)
}

// Writer implements align.PairedWriter, translating PairedResult/
// SingleResult values into sam.Records and appending them to an underlying
// BAM stream. It is append-only and must be externally synchronized across
// concurrent workers: append-only, externally synchronized; Writer itself
// does not add locking.
type Writer struct {
	bw       *bam.Writer
	resolver ContigResolver
	refs     map[string]*sam.Reference
}

// New builds a BAM header (with no sort order) from the resolver's contigs
// (as reported by contigNames/contigLengths, in output order) and returns
// a Writer that appends records to w. concurrency is passed through to
// bam.NewWriter for parallel block compression.
func New(w io.Writer, resolver ContigResolver, contigNames []string, contigLengths []int, concurrency int) (*Writer, error) {
	refs := make([]*sam.Reference, 0, len(contigNames))
	refByName := make(map[string]*sam.Reference, len(contigNames))
	for i, name := range contigNames {
		ref, err := sam.NewReference(name, "", "", contigLengths[i], nil, nil)
		if err != nil {
			return nil, errors.E(err, "bamio: building reference", name)
		}
		refs = append(refs, ref)
		refByName[name] = ref
	}
	header, err := sam.NewHeader(nil, refs)
	if err != nil {
		return nil, errors.E(err, "bamio: building header")
	}
	bw, err := bam.NewWriter(w, header, concurrency)
	if err != nil {
		return nil, errors.E(err, "bamio: opening BAM writer")
	}
	return &Writer{bw: bw, resolver: resolver, refs: refByName}, nil
}

// Close flushes and closes the underlying BAM stream.
func (bw *Writer) Close() error {
	return bw.bw.Close()
}

// WritePairs implements align.PairedWriter. It writes results[0] as the
// primary, one record per mate; for a pair that never aligned jointly,
// results[0] holds the single-end fallback placements and is written the
// same way without the proper-pair flag. Then come results[1:nResults] as
// secondaries flagged sam.Secondary (again one record per mate), then each
// mate's single-end secondaries singleResults[m][1:nSingleResults[m]].
func (bw *Writer) WritePairs(
	ctx context.Context,
	pair *align.ReadPair,
	results []align.PairedResult,
	nResults int,
	singleResults [2][]align.SingleResult,
	nSingleResults [2]int,
	firstIsPrimary bool,
) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	reads := [2]*align.Read{pair.A, pair.B}
	for i := 0; i < nResults; i++ {
		secondary := i > 0
		if err := bw.writeMateRecords(reads, results[i], secondary); err != nil {
			return err
		}
	}
	for m := 0; m < 2; m++ {
		for i := 1; i < nSingleResults[m]; i++ {
			if err := bw.writeSingleRecord(reads[m], m, singleResults[m][i], true); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeMateRecords appends one sam.Record per mate for a joint
// PairedResult.
func (bw *Writer) writeMateRecords(reads [2]*align.Read, r align.PairedResult, secondary bool) error {
	for m := 0; m < 2; m++ {
		rec, err := bw.buildRecord(reads[m], r.Location[m], r.Strand[m], r.Score[m], r.Mapq[m], mateFlags(m, secondary, &r))
		if err != nil {
			return err
		}
		if err := bw.bw.Write(rec); err != nil {
			return errors.E(err, "bamio: writing record", reads[m].ID)
		}
	}
	return nil
}

// writeSingleRecord appends one sam.Record for a mate scored independently
// via single-end fallback.
func (bw *Writer) writeSingleRecord(read *align.Read, mate int, r align.SingleResult, secondary bool) error {
	flags := sam.Paired | sam.MateUnmapped
	if mate == 1 {
		flags |= sam.Read2
	} else {
		flags |= sam.Read1
	}
	if secondary {
		flags |= sam.Secondary
	}
	rec, err := bw.buildRecord(read, r.Location, r.Strand, r.Score, r.Mapq, flags)
	if err != nil {
		return err
	}
	if err := bw.bw.Write(rec); err != nil {
		return errors.E(err, "bamio: writing record", read.ID)
	}
	return nil
}

// mateFlags derives the sam.Flags for one mate of a joint PairedResult.
func mateFlags(mate int, secondary bool, r *align.PairedResult) sam.Flags {
	flags := sam.Paired
	if mate == 1 {
		flags |= sam.Read2
	} else {
		flags |= sam.Read1
	}
	if r.AlignedAsPair {
		flags |= sam.ProperPair
	}
	if r.Status[mate] == align.NotFound {
		flags |= sam.Unmapped
	}
	if r.Status[1-mate] == align.NotFound {
		flags |= sam.MateUnmapped
	}
	if r.Strand[mate] {
		flags |= sam.Reverse
	}
	if r.Strand[1-mate] {
		flags |= sam.MateReverse
	}
	if secondary {
		flags |= sam.Secondary
	}
	return flags
}

// buildRecord constructs one sam.Record for a single mate's placement.
// loc == align.InvalidGenomeLocation produces an unmapped record with a
// nil reference, per SAM convention.
func (bw *Writer) buildRecord(read *align.Read, loc align.GenomeLocation, reverse bool, score, mapq int, flags sam.Flags) (*sam.Record, error) {
	var ref *sam.Reference
	pos := -1
	if loc != align.InvalidGenomeLocation {
		contig, offset := bw.resolver.ContigOf(loc)
		ref = bw.refs[contig]
		pos = int(offset)
	}
	rec, err := sam.NewRecord(read.ID, ref, nil, pos, -1, 0, byte(mapq), nil, read.Bases, read.Qual, nil)
	if err != nil {
		return nil, errors.E(err, "bamio: constructing record", read.ID)
	}
	rec.Flags = flags
	tag, aerr := sam.NewAux(sam.NewTag("NM"), score)
	if aerr == nil {
		rec.AuxFields = append(rec.AuxFields, tag)
	}
	return rec, nil
}
