// Package fastqio implements align.PairedReadSupplier over a pair of FASTQ
// streams, grounded on encoding/fastq's Scanner/PairScanner. Reads are
// expected to carry a "BX:Z:<barcode>" tag on their ID line (the
// convention linked-read demultiplexers use); each pair is tagged with the
// barcode from its R1 ID line and returned in file order. The Supplier
// does not reorder or group pairs: align's worker loop starts a new batch
// wherever the barcode changes, so each barcode's pairs must already be
// adjacent in the input.
package fastqio

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/tenxalign/align"
	"github.com/grailbio/tenxalign/encoding/fastq"
	"github.com/grailbio/tenxalign/umi"
)

// Options configures a Supplier.
type Options struct {
	MinReadLength   int
	MaxEditDistance int

	// BarcodeWhitelist, if non-nil, enables snap-correction of observed
	// barcodes against a known list (one barcode per line), the same
	// mechanism package umi uses for UMI correction.
	BarcodeWhitelist []byte
}

// Supplier reads paired FASTQ records from r1/r2 and implements
// align.PairedReadSupplier. NextPair holds a mutex while it reads, so one
// Supplier can be shared by all workers of an align.WorkerPool; pairs are
// then handed out in file order to whichever worker asks next.
type Supplier struct {
	mu      sync.Mutex
	scanner *fastq.PairScanner
	opts    Options

	corrector *umi.SnapCorrector

	lastBarcode string
	seen        bool
}

// NewSupplier returns a Supplier reading R1 from r1 and R2 from r2.
func NewSupplier(r1, r2 io.Reader, opts Options) *Supplier {
	s := &Supplier{
		scanner: fastq.NewPairScanner(r1, r2, fastq.All),
		opts:    opts,
	}
	if opts.BarcodeWhitelist != nil {
		s.corrector = umi.NewSnapCorrector(opts.BarcodeWhitelist)
	}
	return s
}

// NextPair implements align.PairedReadSupplier.
func (s *Supplier) NextPair(ctx context.Context) (*align.ReadPair, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var r1, r2 fastq.Read
	if !s.scanner.Scan(&r1, &r2) {
		if err := s.scanner.Err(); err != nil {
			return nil, false, errors.E(err, "fastqio: reading pair")
		}
		return nil, false, nil
	}

	barcode, id1, id2 := extractBarcode(r1.ID), stripBarcodeTag(r1.ID), stripBarcodeTag(r2.ID)
	if s.corrector != nil {
		if corrected, _, ok := s.corrector.CorrectUMI(barcode); ok {
			barcode = corrected
		}
	}

	readA := align.NewRead(id1, []byte(r1.Seq), []byte(r1.Qual), s.opts.MinReadLength, s.opts.MaxEditDistance)
	readB := align.NewRead(id2, []byte(r2.Seq), []byte(r2.Qual), s.opts.MinReadLength, s.opts.MaxEditDistance)

	return &align.ReadPair{A: readA, B: readB, Barcode: barcode}, true, nil
}

// extractBarcode pulls the value out of a "BX:Z:<barcode>" tag on a FASTQ
// ID line, or returns "" if there is none (consecutive pairs with no
// barcode all carry "" and so fall into the same batch).
func extractBarcode(id string) string {
	const tag = "BX:Z:"
	i := strings.Index(id, tag)
	if i < 0 {
		return ""
	}
	rest := id[i+len(tag):]
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// stripBarcodeTag removes a "BX:Z:..." tag and everything after it from an
// ID line, leaving just the read identifier the core uses for mate-ID
// validation.
func stripBarcodeTag(id string) string {
	const tag = "BX:Z:"
	i := strings.Index(id, tag)
	if i < 0 {
		return id
	}
	return strings.TrimRight(id[:i], " \t@")
}
