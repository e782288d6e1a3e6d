package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReadUseful(t *testing.T) {
	tests := []struct {
		name            string
		bases           string
		minReadLength   int
		maxEditDistance int
		wantUseful      bool
		wantNCount      int
	}{
		{"clean, long enough", "ACGTACGTACGT", 10, 2, true, 0},
		{"too short", "ACGT", 10, 2, false, 0},
		{"too many Ns", "ACGTNNNACGT", 10, 2, false, 3},
		{"exactly at the N budget", "ACGTNNACGTAC", 10, 2, true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRead("r1", []byte(tt.bases), []byte(tt.bases), tt.minReadLength, tt.maxEditDistance)
			assert.Equal(t, tt.wantUseful, r.Useful())
			assert.Equal(t, tt.wantNCount, r.NCount())
			assert.Equal(t, len(tt.bases), r.Len())
		})
	}
}

func TestReadPairUsefulMask(t *testing.T) {
	a := NewRead("a", []byte("ACGTACGTACGT"), []byte("ACGTACGTACGT"), 10, 2)
	b := NewRead("b", []byte("AC"), []byte("AC"), 10, 2)
	p := &ReadPair{A: a, B: b}

	usefulA, usefulB := p.UsefulMask()
	assert.True(t, usefulA)
	assert.False(t, usefulB)
	assert.True(t, p.AnyUseful())

	p2 := &ReadPair{A: b, B: b}
	assert.False(t, p2.AnyUseful())
}

func TestAlignmentStatusString(t *testing.T) {
	assert.Equal(t, "NotFound", NotFound.String())
	assert.Equal(t, "SingleHit", SingleHit.String())
	assert.Equal(t, "MultipleHits", MultipleHits.String())
	assert.Contains(t, AlignmentStatus(99).String(), "99")
}

func TestNewUnmappedPairedResult(t *testing.T) {
	r := NewUnmappedPairedResult()
	assert.Equal(t, [2]AlignmentStatus{NotFound, NotFound}, r.Status)
	assert.Equal(t, InvalidGenomeLocation, r.Location[0])
	assert.Equal(t, InvalidGenomeLocation, r.Location[1])
	assert.False(t, r.AlignedAsPair)
}
