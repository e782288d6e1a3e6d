/*Package align implements the barcode-scoped multi-pair alignment core for
  linked-read sequencing data.

  A "barcode bucket" is the set of read pairs sharing a molecule barcode.
  For each bucket, the core jointly aligns every pair against a reference
  index, pooling evidence across the batch: pairs whose candidate locations
  cluster spatially (because they came from the same long source molecule)
  boost each other's confidence even when no single pair's alignment is
  unambiguous on its own.

  The core is organized as five collaborating pieces:

    PairAligner    per read-pair seeding, candidate generation and scoring
    ClusterIndex   maps genomic regions to the pairs with candidates there
    Orchestrator   drives every pair in a batch through seeding, paired
                   scoring and single-end fallback
    Arena          bulk-reservation allocator for one barcode's working set
    Emitter        applies the filter policy and hands results to a writer

  See Orchestrator for the top-level entry point.
*/
package align
