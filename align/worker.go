package align

import (
	"context"
	"sync"

	"github.com/grailbio/base/log"
	"golang.org/x/sync/errgroup"
)

// WorkerPool runs N independent workers, each with its own Orchestrator,
// Arena and ClusterIndex, pulling barcode batches from a shared supplier
// and writing through a shared, externally-synchronized writer.
type WorkerPool struct {
	opts     *Options
	index    ReferenceIndex
	supplier PairedReadSupplier
	writer   PairedWriter
	filter   FilterPredicate

	numWorkers int
	stats      *Stats
}

// NewWorkerPool returns a pool of numWorkers workers sharing supplier,
// index and writer. Stats() returns the merged totals once Run returns.
func NewWorkerPool(numWorkers int, supplier PairedReadSupplier, index ReferenceIndex, writer PairedWriter, filter FilterPredicate, opts *Options) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool{
		opts:       opts,
		index:      index,
		supplier:   supplier,
		writer:     writer,
		filter:     filter,
		numWorkers: numWorkers,
		stats:      NewStats(),
	}
}

// Stats returns the pool's merged statistics. Only valid after Run
// returns.
func (wp *WorkerPool) Stats() *Stats { return wp.stats }

// Run starts every worker and blocks until all have exited: either the
// supplier is drained, ctx is cancelled, or a fatal error occurs. It
// returns the first fatal error from any worker, if any, and cancels the
// remaining workers' context as soon as one occurs so they stop between
// barcodes instead of running the supplier dry.
func (wp *WorkerPool) Run(ctx context.Context) error {
	var barrier *sync.WaitGroup
	if wp.opts.UseTimingBarrier {
		barrier = &sync.WaitGroup{}
		barrier.Add(wp.numWorkers)
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < wp.numWorkers; w++ {
		workerID := w
		g.Go(func() error {
			workerStats := NewStats()
			emitter := NewEmitter(wp.opts, wp.filter, wp.writer)
			orch := NewOrchestrator(wp.index, wp.opts, emitter, workerStats)

			// Reserve up front so the timing barrier actually coordinates
			// simultaneous allocation, not simultaneous first-batch work.
			orch.arena.Reserve(wp.opts.MaxBarcodeSize)
			for i := 0; i < wp.opts.MaxBarcodeSize; i++ {
				orch.alignerFor(i)
			}
			if barrier != nil {
				barrier.Done()
				barrier.Wait()
			}

			err := wp.runWorker(gctx, orch, workerID)
			wp.stats.Merge(workerStats)
			return err
		})
	}

	return g.Wait()
}

// runWorker pulls barcode batches from the shared supplier and drives each
// through orch until the supplier is drained, ctx is cancelled, or a fatal
// error occurs. Cancellation is checked only between barcodes: a batch
// already started always finishes.
func (wp *WorkerPool) runWorker(ctx context.Context, orch *Orchestrator, workerID int) error {
	br := &batchReader{supplier: wp.supplier, opts: wp.opts}
	for {
		select {
		case <-ctx.Done():
			log.Debug.Printf("worker %d: cancelled between barcodes", workerID)
			return nil
		default:
		}

		batch, ok, err := br.next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		for _, pair := range batch.Pairs {
			if !checkPairIDs(pair.A.ID, pair.B.ID) {
				if !wp.opts.IgnoreMismatchedIDs {
					return &ErrMismatchedPairIDs{IDA: pair.A.ID, IDB: pair.B.ID}
				}
				log.Error.Printf("mismatched pair IDs %s / %s, ignoring", pair.A.ID, pair.B.ID)
			}
		}
		if err := orch.ProcessBatch(ctx, batch); err != nil {
			return err
		}
	}
}

// batchReader groups a shared PairedReadSupplier's stream into
// same-barcode batches. Its one-pair lookahead buffer is goroutine-local:
// each worker owns its own batchReader even though the underlying supplier
// is shared (barcode grouping is the supplier's responsibility;
// consecutive pairs of the same barcode may still be
// interleaved across workers' NextPair calls, so each worker groups only
// what it personally reads).
type batchReader struct {
	supplier PairedReadSupplier
	opts     *Options
	pending  *ReadPair
}

func (br *batchReader) next(ctx context.Context) (*BarcodeBatch, bool, error) {
	first := br.pending
	br.pending = nil
	if first == nil {
		p, ok, err := br.supplier.NextPair(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		first = p
	}

	batch := &BarcodeBatch{Barcode: first.Barcode, Pairs: []*ReadPair{first}}
	for batch.Len() < br.opts.MaxBarcodeSize {
		next, ok, err := br.supplier.NextPair(ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
		if next.Barcode != batch.Barcode {
			br.pending = next
			break
		}
		batch.Pairs = append(batch.Pairs, next)
	}
	return batch, true, nil
}
