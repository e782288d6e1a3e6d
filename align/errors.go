package align

import "github.com/grailbio/base/errors"

// This file names the error kinds this package distinguishes. Two get
// dedicated types carrying data (ErrCandidatePoolOverflow in candidate.go,
// ErrMismatchedPairIDs below); two are plain sentinel values
// (ErrArenaCorruption in arena.go, ErrSecondaryBufferOverflow below).

// ErrMismatchedPairIDs is returned when two reads presented as mates don't
// share an ID stem. It is fatal unless Options.IgnoreMismatchedIDs is set,
// in which case the worker logs the mismatch and aligns the pair as usual. The
// error names both offending IDs so a fatal exit points straight at the
// bad record.
type ErrMismatchedPairIDs struct {
	IDA, IDB string
}

func (e *ErrMismatchedPairIDs) Error() string {
	return "mismatched read IDs within a pair: " + e.IDA + " / " + e.IDB
}

// ErrSecondaryBufferOverflow is the signal bestAndSecondary and
// singleFallback report by returning ok=false: more secondary results
// exist than fit in the current buffer. It is recoverable; the Orchestrator
// doubles the relevant capacity and retries the stage.
var ErrSecondaryBufferOverflow = errors.New("secondary result buffer exceeded capacity")

// checkPairIDs reports whether a and b's IDs are consistent with being
// mates, using the same suffix-stripping the original applies to /1 and /2
// (or .1/.2) read-name conventions.
func checkPairIDs(a, b string) bool {
	sa, sb := stripMateSuffix(a), stripMateSuffix(b)
	return sa == sb
}

// stripMateSuffix removes a trailing "/1", "/2", ".1", or ".2" mate marker,
// if present.
func stripMateSuffix(id string) string {
	if len(id) < 2 {
		return id
	}
	suffix := id[len(id)-2:]
	switch suffix {
	case "/1", "/2", ".1", ".2":
		return id[:len(id)-2]
	}
	return id
}
