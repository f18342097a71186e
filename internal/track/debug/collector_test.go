package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerb-data/trafficlens/internal/track"
)

func TestCollectorDisabledByDefault(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.IsEnabled())

	// Records without BeginFrame or enablement are dropped silently.
	c.RecordOverlap(1, 0, 0.8, true)
	assert.Nil(t, c.Emit())
}

func TestCollectorAccumulatesFrame(t *testing.T) {
	c := NewCollector()
	c.SetEnabled(true)
	c.BeginFrame(42)

	c.RecordOverlap(1, 0, 0.75, true)
	c.RecordOverlap(2, 1, 0.12, false)
	c.RecordCandidate(3, 2, track.MatchScore{Composite: 0.6}, track.RejectNone)
	c.RecordCandidate(3, 3, track.MatchScore{}, track.RejectRadius)
	c.RecordGating(4, 2, 2.1, 3.5, true)
	c.RecordReID(3, 2, 0.6, 4)
	c.RecordLifecycle(5, track.TrackCreated)

	frame := c.Emit()
	require.NotNil(t, frame)
	assert.Equal(t, uint64(42), frame.FrameID)
	assert.Len(t, frame.Overlaps, 2)
	assert.Len(t, frame.Candidates, 2)
	assert.Len(t, frame.Gates, 1)
	assert.Len(t, frame.Recoveries, 1)
	assert.Len(t, frame.Lifecycle, 1)

	assert.Equal(t, track.RejectRadius, frame.Candidates[1].Reason)
	assert.Equal(t, 4, frame.Recoveries[0].FramesLost)

	// Emit clears the pending frame.
	assert.Nil(t, c.Emit())
}

func TestCollectorRecordWithoutBeginFrame(t *testing.T) {
	c := NewCollector()
	c.SetEnabled(true)

	// Enabled but no frame begun: records are dropped, no panic.
	c.RecordOverlap(1, 0, 0.9, true)
	assert.Nil(t, c.Emit())
}

func TestCollectorReset(t *testing.T) {
	c := NewCollector()
	c.SetEnabled(true)
	c.BeginFrame(1)
	c.RecordLifecycle(1, track.TrackEvicted)

	c.Reset()
	assert.Nil(t, c.Emit())
}

func TestCollectorSatisfiesEngineInterface(t *testing.T) {
	var _ track.DebugCollector = NewCollector()
}
