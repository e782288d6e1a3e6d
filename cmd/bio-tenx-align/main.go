// bio-tenx-align aligns barcode-tagged paired-end reads from linked-read
// sequencing against a reference, pooling evidence across each barcode's
// read pairs to resolve placements no single pair's alignment can resolve
// alone.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/tenxalign/align"
	"github.com/grailbio/tenxalign/bamio"
	"github.com/grailbio/tenxalign/encoding/fasta"
	"github.com/grailbio/tenxalign/fastqio"
	"github.com/grailbio/tenxalign/refidx"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: bio-tenx-align -reference=ref.fa -r1=R1.fastq -r2=R2.fastq -out=out.bam

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage

	referencePath := flag.String("reference", "", "Reference FASTA file.")
	r1Path := flag.String("r1", "", "R1 FASTQ file.")
	r2Path := flag.String("r2", "", "R2 FASTQ file.")
	outPath := flag.String("out", "", "Output BAM path.")
	barcodeWhitelistPath := flag.String("barcode-whitelist", "", "Optional file of known barcodes, one per line, for snap-correction.")
	numWorkers := flag.Int("workers", runtime.NumCPU(), "Number of parallel alignment workers.")
	seedLength := flag.Int("seed-length", 20, "Reference index k-mer length.")

	minSpacing := flag.Int("min-spacing", 50, "Lower bound on mate separation.")
	maxSpacing := flag.Int("max-spacing", 1000, "Upper bound on mate separation.")
	maxBarcodeSize := flag.Int("max-barcode-size", 60000, "Max pairs per barcode batch.")
	minPairsPerCluster := flag.Int("min-pairs-per-cluster", 10, "Cluster admission threshold.")
	maxClusterSpan := flag.Int("max-cluster-span", 100000, "Cluster geometric bound, in bases.")
	forceSpacing := flag.Bool("force-spacing", false, "Demote half-mapped pairs to NotFound.")
	intersectingAlignerMaxHits := flag.Int("intersecting-aligner-max-hits", 300, "Popular-seed skip threshold.")
	maxCandidatePoolSize := flag.Int("max-candidate-pool-size", 10000, "Per-pair candidate cap.")
	minReadLength := flag.Int("min-read-length", 50, "Reads shorter than this are unusable.")
	maxEditDistance := flag.Int("max-edit-distance", 10, "Maximum edit distance to accept an alignment.")
	quicklyDropUnpairedReads := flag.Bool("quickly-drop-unpaired-reads", true, "Sets Options.QuicklyDropUnpairedReads; the FASTQ supplier does not read it and drops no reads.")
	matchBoth := flag.Bool("filter-match-both", false, "Require both mates to pass the filter (default: either).")
	maxSecondaryAdditionalEditDistance := flag.Int("max-secondary-additional-edit-distance", -1, "Negative disables secondary alignment reporting.")
	ignoreMismatchedIDs := flag.Bool("ignore-mismatched-ids", false, "Log and continue, instead of exiting, on mismatched mate IDs.")
	useTimingBarrier := flag.Bool("use-timing-barrier", false, "Synchronize worker arena reservation at startup.")

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	if *referencePath == "" || *r1Path == "" || *r2Path == "" || *outPath == "" {
		usage()
		os.Exit(1)
	}

	opts := align.DefaultOptions()
	opts.MinSpacing = *minSpacing
	opts.MaxSpacing = *maxSpacing
	opts.MaxBarcodeSize = *maxBarcodeSize
	opts.MinPairsPerCluster = *minPairsPerCluster
	opts.MaxClusterSpan = *maxClusterSpan
	opts.ForceSpacing = *forceSpacing
	opts.IntersectingAlignerMaxHits = *intersectingAlignerMaxHits
	opts.MaxCandidatePoolSize = *maxCandidatePoolSize
	opts.MinReadLength = *minReadLength
	opts.MaxEditDistance = *maxEditDistance
	opts.QuicklyDropUnpairedReads = *quicklyDropUnpairedReads
	opts.MaxSecondaryAlignmentAdditionalEditDistance = *maxSecondaryAdditionalEditDistance
	opts.IgnoreMismatchedIDs = *ignoreMismatchedIDs
	opts.UseTimingBarrier = *useTimingBarrier
	if *matchBoth {
		opts.FilterFlags = align.MatchBoth
	}

	index, contigNames, contigLengths, err := loadReference(ctx, *referencePath, *seedLength)
	if err != nil {
		log.Fatalf("loading reference: %v", err)
	}

	r1, err := file.Open(ctx, *r1Path)
	if err != nil {
		log.Fatalf("open %v: %v", *r1Path, err)
	}
	defer func() { _ = r1.Close(ctx) }()
	r2, err := file.Open(ctx, *r2Path)
	if err != nil {
		log.Fatalf("open %v: %v", *r2Path, err)
	}
	defer func() { _ = r2.Close(ctx) }()

	supplierOpts := fastqio.Options{
		MinReadLength:   opts.MinReadLength,
		MaxEditDistance: opts.MaxEditDistance,
	}
	if *barcodeWhitelistPath != "" {
		wl, err := file.Open(ctx, *barcodeWhitelistPath)
		if err != nil {
			log.Fatalf("open %v: %v", *barcodeWhitelistPath, err)
		}
		defer func() { _ = wl.Close(ctx) }()
		data, err := readAll(ctx, wl)
		if err != nil {
			log.Fatalf("reading %v: %v", *barcodeWhitelistPath, err)
		}
		supplierOpts.BarcodeWhitelist = data
	}
	supplier := fastqio.NewSupplier(r1.Reader(ctx), r2.Reader(ctx), supplierOpts)

	out, err := file.Create(ctx, *outPath)
	if err != nil {
		log.Fatalf("create %v: %v", *outPath, err)
	}
	writer, err := bamio.New(out.Writer(ctx), index, contigNames, contigLengths, *numWorkers)
	if err != nil {
		log.Fatalf("opening BAM writer: %v", err)
	}

	pool := align.NewWorkerPool(*numWorkers, supplier, index, writer, align.AlwaysPass, &opts)
	if err := pool.Run(ctx); err != nil {
		log.Error.Printf("alignment failed: %v", err)
		_ = writer.Close()
		_ = out.Close(ctx)
		os.Exit(exitCodeFor(err))
	}

	if err := writer.Close(); err != nil {
		log.Fatalf("closing BAM writer: %v", err)
	}
	if err := out.Close(ctx); err != nil {
		log.Fatalf("closing %v: %v", *outPath, err)
	}

	stats := pool.Stats()
	log.Printf("pairs processed: %d, aligned as pair: %d, single fallback: %d, unmapped: %d, clustered: %d",
		stats.PairsProcessed, stats.PairsAlignedAsPair, stats.PairsSingleFallback, stats.PairsUnmapped, stats.PairsClustered)
	log.Printf("All done")
}

// exitCodeFor maps a fatal run error to a process exit code: 1 for
// unmatched read IDs, 2 for arena corruption, 1 otherwise.
func exitCodeFor(err error) int {
	if _, ok := err.(*align.ErrMismatchedPairIDs); ok {
		return 1
	}
	if err == align.ErrArenaCorruption {
		return 2
	}
	return 1
}

// loadReference reads a FASTA file into memory and builds a k-mer index
// over it, returning the index alongside its contigs' names and lengths in
// SeqNames order (the order bamio.New needs for header construction).
func loadReference(ctx context.Context, path string, seedLength int) (*refidx.Index, []string, []int, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, nil, errors.E(err, "opening reference", path)
	}
	defer func() { _ = f.Close(ctx) }()

	fa, err := fasta.New(f.Reader(ctx))
	if err != nil {
		return nil, nil, nil, errors.E(err, "parsing reference", path)
	}
	idx, err := refidx.Build(fa, seedLength)
	if err != nil {
		return nil, nil, nil, errors.E(err, "indexing reference", path)
	}

	names := fa.SeqNames()
	lengths := make([]int, len(names))
	for i, name := range names {
		n, err := fa.Len(name)
		if err != nil {
			return nil, nil, nil, errors.E(err, "reference length", name)
		}
		lengths[i] = int(n)
	}
	return idx, names, lengths, nil
}

// readAll drains a file.File's reader into memory, for the barcode
// whitelist which the corrector needs wholesale.
func readAll(ctx context.Context, f file.File) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 64*1024)
	r := f.Reader(ctx)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				return buf, nil
			}
			return buf, err
		}
	}
}
