package align

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitter_Emit_WritesSurvivingPair(t *testing.T) {
	writer := &fakeWriter{}
	e := NewEmitter(&Options{FilterFlags: MatchEither}, AlwaysPass, writer)

	pair := &ReadPair{
		A: NewRead("a", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
		B: NewRead("b", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
	}
	progress := &PairProgress{
		PairedResults: []PairedResult{{
			Status: [2]AlignmentStatus{SingleHit, SingleHit}, AlignedAsPair: true,
		}},
		SingleResults: [2][]SingleResult{nil, nil},
	}

	err := e.Emit(context.Background(), pair, progress)
	assert.NoError(t, err)
	assert.Len(t, writer.calls, 1)
	assert.True(t, writer.calls[0].firstIsPrimary)
}

func TestEmitter_Emit_DropsPairFailingFilter(t *testing.T) {
	writer := &fakeWriter{}
	rejectAll := FilterPredicateFunc(func(*Read, AlignmentStatus, bool, bool) bool { return false })
	e := NewEmitter(&Options{FilterFlags: MatchEither}, rejectAll, writer)

	pair := &ReadPair{
		A: NewRead("a", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
		B: NewRead("b", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
	}
	progress := &PairProgress{
		PairedResults: []PairedResult{{Status: [2]AlignmentStatus{SingleHit, SingleHit}, AlignedAsPair: true}},
	}

	err := e.Emit(context.Background(), pair, progress)
	assert.NoError(t, err)
	assert.Empty(t, writer.calls, "a pair with nothing passing the filter, primary or secondary, is never written")
}

func TestEmitter_Emit_PromotesFirstPassingSecondaryWhenPrimaryFails(t *testing.T) {
	writer := &fakeWriter{}
	rejectUnmapped := FilterPredicateFunc(func(r *Read, status AlignmentStatus, degraded, isSecondary bool) bool {
		return status != NotFound
	})
	e := NewEmitter(&Options{FilterFlags: MatchEither}, rejectUnmapped, writer)

	pair := &ReadPair{
		A: NewRead("a", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
		B: NewRead("b", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
	}
	progress := &PairProgress{
		NSecondaryResults: 1,
		PairedResults: []PairedResult{
			{Status: [2]AlignmentStatus{NotFound, NotFound}},
			{Status: [2]AlignmentStatus{SingleHit, SingleHit}, AlignedAsPair: true},
		},
	}

	err := e.Emit(context.Background(), pair, progress)
	assert.NoError(t, err)
	assert.Len(t, writer.calls, 1, "the failing primary is dropped in favor of the passing secondary, not the whole pair")
	assert.Equal(t, SingleHit, writer.calls[0].results[0].Status[0])
	assert.True(t, writer.calls[0].firstIsPrimary)
}

func TestEmitter_Emit_FirstIsPrimaryFalseWhenOnlySecondMateFound(t *testing.T) {
	writer := &fakeWriter{}
	e := NewEmitter(&Options{FilterFlags: MatchEither}, AlwaysPass, writer)

	pair := &ReadPair{
		A: NewRead("a", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
		B: NewRead("b", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
	}
	progress := &PairProgress{
		PairedResults: []PairedResult{{
			Status: [2]AlignmentStatus{NotFound, SingleHit},
		}},
	}

	err := e.Emit(context.Background(), pair, progress)
	assert.NoError(t, err)
	assert.False(t, writer.calls[0].firstIsPrimary)
}

func TestCompactSecondaries_DropsFailingSecondaryAndDecrementsCount(t *testing.T) {
	pair := &ReadPair{
		A: NewRead("a", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
		B: NewRead("b", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
	}
	// Filter passes the primary (index 0) and the second secondary
	// (index 2) but rejects the first secondary (index 1) for both mates.
	filter := FilterPredicateFunc(func(r *Read, status AlignmentStatus, degraded, isSecondary bool) bool {
		return !(isSecondary && status == MultipleHits)
	})
	progress := &PairProgress{
		NSecondaryResults: 2,
		PairedResults: []PairedResult{
			{Status: [2]AlignmentStatus{SingleHit, SingleHit}},
			{Status: [2]AlignmentStatus{MultipleHits, MultipleHits}},
			{Status: [2]AlignmentStatus{SingleHit, SingleHit}},
		},
	}

	kept := compactSecondaries(progress, MatchEither, filter, pair)

	assert.Equal(t, 2, kept)
	assert.Len(t, progress.PairedResults, 2)
	assert.Equal(t, 1, progress.NSecondaryResults, "the dropped secondary decrements the count exactly once")
}

func TestCompactSecondaries_MatchBothDropsSecondaryWithOnlyOneMatePassing(t *testing.T) {
	pair := &ReadPair{
		A: NewRead("a", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
		B: NewRead("b", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
	}
	// The secondary at index 1 has mate A found and mate B not found: under
	// MatchEither it would survive (pass0 || pass1), but MatchBoth requires
	// both mates to pass, so it must be dropped.
	filter := FilterPredicateFunc(func(r *Read, status AlignmentStatus, degraded, isSecondary bool) bool {
		return status != NotFound
	})
	progress := &PairProgress{
		NSecondaryResults: 1,
		PairedResults: []PairedResult{
			{Status: [2]AlignmentStatus{SingleHit, SingleHit}},
			{Status: [2]AlignmentStatus{SingleHit, NotFound}},
		},
	}

	kept := compactSecondaries(progress, MatchBoth, filter, pair)

	assert.Equal(t, 1, kept)
	assert.Len(t, progress.PairedResults, 1)
	assert.Equal(t, 0, progress.NSecondaryResults)
}

func TestEmitter_Emit_MatchBothAppliesToSecondaries(t *testing.T) {
	writer := &fakeWriter{}
	filter := FilterPredicateFunc(func(r *Read, status AlignmentStatus, degraded, isSecondary bool) bool {
		return status != NotFound
	})
	e := NewEmitter(&Options{FilterFlags: MatchBoth}, filter, writer)

	pair := &ReadPair{
		A: NewRead("a", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
		B: NewRead("b", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
	}
	progress := &PairProgress{
		NSecondaryResults: 1,
		PairedResults: []PairedResult{
			{Status: [2]AlignmentStatus{SingleHit, SingleHit}, AlignedAsPair: true},
			{Status: [2]AlignmentStatus{SingleHit, NotFound}},
		},
		SingleResults: [2][]SingleResult{nil, nil},
	}

	err := e.Emit(context.Background(), pair, progress)
	assert.NoError(t, err)
	assert.Len(t, writer.calls, 1)
	assert.Equal(t, 1, writer.calls[0].nResults, "the half-passing secondary is dropped under MatchBoth")
}

func TestEmitter_Emit_FiltersFailingSingleSecondary(t *testing.T) {
	writer := &fakeWriter{}
	rejectMultiple := FilterPredicateFunc(func(r *Read, status AlignmentStatus, degraded, isSecondary bool) bool {
		return status != MultipleHits
	})
	e := NewEmitter(&Options{FilterFlags: MatchEither}, rejectMultiple, writer)

	pair := &ReadPair{
		A: NewRead("a", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
		B: NewRead("b", []byte("ACGTACGTACGT"), make([]byte, 12), 5, 2),
	}
	progress := &PairProgress{
		PairedResults: []PairedResult{{
			Status: [2]AlignmentStatus{SingleHit, SingleHit}, AlignedAsPair: true,
		}},
		SingleResults: [2][]SingleResult{
			{
				{Status: SingleHit, Location: 100},
				{Status: MultipleHits, Location: 200},
			},
			nil,
		},
	}

	err := e.Emit(context.Background(), pair, progress)
	assert.NoError(t, err)
	assert.Len(t, writer.calls, 1)
	assert.Equal(t, 1, writer.calls[0].nSingleResults[0], "the failing secondary single result must not be counted")
	assert.Len(t, writer.calls[0].singleResults[0], 1, "the failing secondary single result must not appear in the written slice")
}
