package counter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerb-data/trafficlens/internal/track"
)

func snapAt(id int64, x, y int, reliable bool) map[int64]track.Snapshot {
	return map[int64]track.Snapshot{
		id: {
			ID:       id,
			Rect:     track.Rect{X1: x - 30, Y1: y - 20, X2: x + 30, Y2: y + 20},
			Reliable: reliable,
		},
	}
}

func TestLineCounterHorizontalCrossing(t *testing.T) {
	c, err := NewLineCounter(AxisHorizontal, 0.5)
	require.NoError(t, err)
	c.SetFrameSize(1920, 1080) // line at y = 540

	// Vehicle moving down across the line.
	c.Observe(snapAt(1, 500, 500, true))
	c.Observe(snapAt(1, 500, 560, true))

	counts := c.Counts()
	assert.Equal(t, 1, counts.Forward)
	assert.Equal(t, 0, counts.Reverse)
	assert.Equal(t, 1, counts.Total())
}

func TestLineCounterCountsEachTrackOnce(t *testing.T) {
	c, err := NewLineCounter(AxisHorizontal, 0.5)
	require.NoError(t, err)
	c.SetFrameSize(1920, 1080)

	// Cross, come back, cross again: still one count.
	c.Observe(snapAt(1, 500, 500, true))
	c.Observe(snapAt(1, 500, 560, true))
	c.Observe(snapAt(1, 500, 500, true))
	c.Observe(snapAt(1, 500, 560, true))

	counts := c.Counts()
	assert.Equal(t, 1, counts.Total())
}

func TestLineCounterReverseDirection(t *testing.T) {
	c, err := NewLineCounter(AxisHorizontal, 0.5)
	require.NoError(t, err)
	c.SetFrameSize(1920, 1080)

	c.Observe(snapAt(1, 500, 600, true))
	c.Observe(snapAt(1, 500, 520, true))

	counts := c.Counts()
	assert.Equal(t, 0, counts.Forward)
	assert.Equal(t, 1, counts.Reverse)
}

func TestLineCounterIgnoresUnreliableTracks(t *testing.T) {
	c, err := NewLineCounter(AxisHorizontal, 0.5)
	require.NoError(t, err)
	c.SetFrameSize(1920, 1080)

	c.Observe(snapAt(1, 500, 500, false))
	c.Observe(snapAt(1, 500, 560, false))

	assert.Equal(t, 0, c.Counts().Total())
}

func TestLineCounterVerticalAxis(t *testing.T) {
	c, err := NewLineCounter(AxisVertical, 0.5)
	require.NoError(t, err)
	c.SetFrameSize(1000, 600) // line at x = 500

	// Left to right is forward.
	c.Observe(snapAt(1, 450, 300, true))
	c.Observe(snapAt(1, 550, 300, true))

	counts := c.Counts()
	assert.Equal(t, 1, counts.Forward)
	assert.Equal(t, 0, counts.Reverse)
}

func TestLineCounterNoLineConfigured(t *testing.T) {
	c, err := NewLineCounter(AxisHorizontal, 0.5)
	require.NoError(t, err)

	// Observe before SetFrameSize is a no-op.
	c.Observe(snapAt(1, 500, 500, true))
	c.Observe(snapAt(1, 500, 560, true))
	assert.Equal(t, 0, c.Counts().Total())

	_, ok := c.LinePosition()
	assert.False(t, ok)
}

func TestLineCounterForget(t *testing.T) {
	c, err := NewLineCounter(AxisHorizontal, 0.5)
	require.NoError(t, err)
	c.SetFrameSize(1920, 1080)

	c.Observe(snapAt(1, 500, 500, true))
	c.Observe(snapAt(1, 500, 560, true))
	require.Equal(t, 1, c.Counts().Total())

	// After forgetting, a new identity at the same place can count
	// again; the old one's state is gone.
	c.Forget([]track.Snapshot{{ID: 1}})
	c.Observe(snapAt(2, 500, 500, true))
	c.Observe(snapAt(2, 500, 560, true))
	assert.Equal(t, 2, c.Counts().Total())
}

func TestNewLineCounterValidation(t *testing.T) {
	_, err := NewLineCounter("diagonal", 0.5)
	assert.Error(t, err)

	_, err = NewLineCounter(AxisHorizontal, 0)
	assert.Error(t, err)

	_, err = NewLineCounter(AxisHorizontal, 1)
	assert.Error(t, err)
}
