package align

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClusterAlignerReservation(t *testing.T) {
	assert.Equal(t, 0, clusterAlignerReservation(0))
	assert.Equal(t, 128, clusterAlignerReservation(128))
}

func TestSingleAlignerReservation(t *testing.T) {
	opts := &Options{MaxSecondaryAlignmentAdditionalEditDistance: -1}
	assert.Equal(t, 0, singleAlignerReservation(opts), "secondary reporting disabled reserves nothing")

	opts.MaxSecondaryAlignmentAdditionalEditDistance = 0
	assert.Equal(t, 32, singleAlignerReservation(opts))
}

func TestArena_ReserveGrowsAndKeepsCanariesIntact(t *testing.T) {
	opts := &Options{MaxSecondaryAlignmentAdditionalEditDistance: 0}
	a := NewArena(opts)

	a.Reserve(4)
	progress := a.Progress(4)
	assert.Len(t, progress, 4)
	for i := range progress {
		assert.Equal(t, stageSeeding, progress[i].stage)
		assert.Equal(t, 32, progress[i].PairedSecondaryCap)
		assert.Equal(t, -1, progress[i].clusterID)
	}
	assert.NoError(t, a.CheckCanaries())

	// Growing to a larger batch preserves existing entries and stays intact.
	a.Reserve(10)
	assert.NoError(t, a.CheckCanaries())
	assert.Len(t, a.Progress(10), 10)

	// Reserving a smaller size than already held is a no-op, not a shrink.
	a.Reserve(2)
	assert.Len(t, a.Progress(10), 10)
}

func TestArena_CheckCanaries_DetectsCorruption(t *testing.T) {
	opts := &Options{}
	a := NewArena(opts)
	a.Reserve(2)
	assert.NoError(t, a.CheckCanaries())

	a.canaries[0] = 0xDEADBEEF
	assert.Equal(t, ErrArenaCorruption, a.CheckCanaries())
}

// corruptingIndex wraps a fakeIndex and stomps its bound Orchestrator's
// arena canary the Nth time Lookup is called, simulating corruption that
// occurs mid-stage rather than between ProcessBatch calls. orch is set
// after NewOrchestrator returns, since the Orchestrator owns the arena this
// index needs to reach into.
type corruptingIndex struct {
	*fakeIndex
	orch          *Orchestrator
	corruptOnCall int
	calls         int
}

func (c *corruptingIndex) Lookup(kmer []byte) []GenomeLocation {
	c.calls++
	if c.calls == c.corruptOnCall {
		c.orch.arena.canaries[0] = 0xDEADBEEF
	}
	return c.fakeIndex.Lookup(kmer)
}

// TestOrchestrator_CanaryCheckAtStageBoundaryCatchesMidStageCorruption
// corrupts the arena canary during the last pair's seeding, i.e. after the
// stage-1 loop's own per-pair check already ran for that pair but before
// anything else in the loop observes it. A single check at the top of the
// stage-1 loop would never see this corruption at all; only the added
// checks between stages catch it.
func TestOrchestrator_CanaryCheckAtStageBoundaryCatchesMidStageCorruption(t *testing.T) {
	genome := randomGenome(2000, 106)
	base := newFakeIndex(genome, 12)
	idx := &corruptingIndex{fakeIndex: base, corruptOnCall: 2}

	opts := baseTestOptions()
	writer := &fakeWriter{}
	emitter := NewEmitter(opts, AlwaysPass, writer)
	stats := NewStats()
	orch := NewOrchestrator(idx, opts, emitter, stats)
	idx.orch = orch

	readA := NewRead("frag1/1", []byte(genome[100:148]), make([]byte, 48), opts.MinReadLength, opts.MaxEditDistance)
	readB := NewRead("frag1/2", []byte(genome[400:448]), make([]byte, 48), opts.MinReadLength, opts.MaxEditDistance)
	pair := &ReadPair{A: readA, B: readB, Barcode: "BC1"}
	batch := &BarcodeBatch{Barcode: "BC1", Pairs: []*ReadPair{pair}}

	err := orch.ProcessBatch(context.Background(), batch)
	assert.Equal(t, ErrArenaCorruption, err, "the post-stage-1 canary check must catch corruption injected during the only pair's own seeding")
}

func TestArena_Reset_ClearsPerPairStateWithoutShrinking(t *testing.T) {
	opts := &Options{MaxSecondaryAlignmentAdditionalEditDistance: 0}
	a := NewArena(opts)
	a.Reserve(3)
	progress := a.Progress(3)
	progress[0].NotDone = true
	progress[0].PairedResults = append(progress[0].PairedResults, PairedResult{Status: [2]AlignmentStatus{SingleHit, SingleHit}})
	progress[0].NSecondaryResults = 5
	progress[0].clusterID = 2
	progress[0].stage = stageEmitted

	a.Reset()

	progress = a.Progress(3)
	assert.False(t, progress[0].NotDone)
	assert.Empty(t, progress[0].PairedResults)
	assert.Equal(t, 0, progress[0].NSecondaryResults)
	assert.Equal(t, -1, progress[0].clusterID)
	assert.Equal(t, stageSeeding, progress[0].stage)
	assert.Equal(t, 3, cap(a.progress), "reset doesn't release the backing array")
}
