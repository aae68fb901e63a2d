package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivbot/internal/domain"
)

func tick(quote float64, digit int) domain.Tick {
	return domain.Tick{Symbol: "R_10", Quote: quote, Digit: digit}
}

func TestPushEvictsOldest(t *testing.T) {
	h := New(3)
	h.Push(tick(1.0, 0))
	h.Push(tick(2.0, 0))
	h.Push(tick(3.0, 0))
	h.Push(tick(4.0, 0))

	require.Equal(t, 3, h.Len())
	assert.Equal(t, []float64{4.0, 3.0, 2.0}, h.Quotes())
}

func TestSnapshotIsCopy(t *testing.T) {
	h := New(5)
	h.Push(tick(1.5, 5))
	h.Push(tick(2.5, 5))

	snap := h.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 2.5, snap[0].Quote)

	// Further pushes must not alter an earlier snapshot.
	h.Push(tick(9.9, 9))
	assert.Equal(t, 2.5, snap[0].Quote)
	assert.Len(t, snap, 2)
}

func TestHasEnough(t *testing.T) {
	h := New(4)
	assert.False(t, h.HasEnough(1))
	h.Push(tick(1.0, 0))
	h.Push(tick(2.0, 0))
	assert.True(t, h.HasEnough(2))
	assert.False(t, h.HasEnough(3))
}

func TestDigitsSkipUnderivable(t *testing.T) {
	h := New(5)
	h.Push(tick(1.0, 3))
	h.Push(tick(2.0, -1))
	h.Push(tick(3.0, 7))

	assert.Equal(t, []int{7, 3}, h.Digits())
}

func TestZeroWindowDefaultsToOne(t *testing.T) {
	h := New(0)
	h.Push(tick(1.0, 0))
	h.Push(tick(2.0, 0))
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, []float64{2.0}, h.Quotes())
}
