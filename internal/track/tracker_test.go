package track

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearConfig() Config {
	cfg := DefaultConfig()
	cfg.Motion = MotionLinear
	cfg.Assignment = AssignGreedy
	cfg.SkipFrames = 0
	return cfg
}

func det(x1, y1 int) Detection {
	return Detection{
		Rect:       Rect{X1: x1, Y1: y1, X2: x1 + 60, Y2: y1 + 40},
		Confidence: 0.9,
	}
}

func singleID(t *testing.T, snapshots map[int64]Snapshot) Snapshot {
	t.Helper()
	require.Len(t, snapshots, 1)
	for _, snap := range snapshots {
		return snap
	}
	panic("unreachable")
}

func TestTrackerCreatesTracksWithMonotonicIDs(t *testing.T) {
	tracker, err := New(DefaultConfig())
	require.NoError(t, err)

	snapshots := tracker.Update(nil, []Detection{det(100, 100), det(400, 100)})
	require.Len(t, snapshots, 2)
	assert.Contains(t, snapshots, int64(1))
	assert.Contains(t, snapshots, int64(2))

	for _, snap := range snapshots {
		assert.Equal(t, 1, snap.Hits)
		assert.Equal(t, 0, snap.Lost)
		assert.False(t, snap.Reliable, "below min hits")
	}

	m := tracker.Metrics()
	assert.Equal(t, int64(2), m.TracksCreated)
	assert.Equal(t, int64(1), m.FramesProcessed)
}

func TestTrackerFollowsContinuousMotion(t *testing.T) {
	for _, motion := range []MotionStrategy{MotionLinear, MotionKalman} {
		t.Run(string(motion), func(t *testing.T) {
			cfg := linearConfig()
			cfg.Motion = motion
			if motion == MotionKalman {
				cfg.Assignment = AssignHungarian
			}
			tracker, err := New(cfg)
			require.NoError(t, err)

			var snap Snapshot
			for i := 0; i < 10; i++ {
				snap = singleID(t, tracker.Update(nil, []Detection{det(100+10*i, 100)}))
			}

			assert.Equal(t, int64(1), snap.ID, "one identity across the whole pass")
			assert.Equal(t, 10, snap.Hits)
			assert.True(t, snap.Reliable)
			assert.Equal(t, DirectionRight, snap.Direction)
			assert.Equal(t, int64(1), tracker.Metrics().TracksCreated)
		})
	}
}

func TestTrackerAssignsOneDetectionPerTrack(t *testing.T) {
	tracker, err := New(DefaultConfig())
	require.NoError(t, err)

	// Two well-separated vehicles over several frames: identities must
	// not swap or double-book.
	for i := 0; i < 6; i++ {
		snapshots := tracker.Update(nil, []Detection{
			det(100+10*i, 100),
			det(400-10*i, 100),
		})
		require.Len(t, snapshots, 2)
	}

	assert.Equal(t, int64(2), tracker.Metrics().TracksCreated)
}

func TestTrackerLostAndEviction(t *testing.T) {
	cfg := linearConfig()
	cfg.MaxLost = 3
	tracker, err := New(cfg)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		tracker.Update(nil, []Detection{det(100+10*i, 100)})
	}

	// Coast: lost counts up, track stays in the table.
	for want := 1; want <= cfg.MaxLost; want++ {
		snap := singleID(t, tracker.Update(nil, nil))
		assert.Equal(t, want, snap.Lost)
		assert.Equal(t, 0.0, snap.Confidence, "confidence zero while coasting")
	}

	// One more miss pushes past the buffer: evicted.
	snapshots := tracker.Update(nil, nil)
	assert.Empty(t, snapshots)

	finished := tracker.DrainFinished()
	require.Len(t, finished, 1)
	assert.Equal(t, int64(1), finished[0].ID)
	assert.Equal(t, int64(1), tracker.Metrics().TracksEvicted)

	// Drain is destructive.
	assert.Empty(t, tracker.DrainFinished())

	// IDs are never reused.
	snap := singleID(t, tracker.Update(nil, []Detection{det(100, 100)}))
	assert.Equal(t, int64(2), snap.ID)
}

func TestTrackerHeuristicReidentification(t *testing.T) {
	tracker, err := New(linearConfig())
	require.NoError(t, err)

	// Establish a vehicle moving right at 10 px/frame.
	for i := 0; i < 6; i++ {
		tracker.Update(nil, []Detection{det(100+10*i, 100)})
	}

	// Occlusion: three frames with no detection.
	for i := 0; i < 3; i++ {
		snap := singleID(t, tracker.Update(nil, nil))
		if i > 0 {
			assert.NotNil(t, snap.Predicted, "coasting track exposes its prediction")
		}
	}

	// Reappear where the constant velocity puts it: 4 frames past the
	// last observation at x1=150.
	snap := singleID(t, tracker.Update(nil, []Detection{det(190, 100)}))

	assert.Equal(t, int64(1), snap.ID, "identity must survive the occlusion")
	assert.Equal(t, 0, snap.Lost)
	assert.Equal(t, 7, snap.Hits)
	assert.Equal(t, int64(1), tracker.Metrics().Reidentified)
	assert.Equal(t, int64(1), tracker.Metrics().TracksCreated, "no spurious new track")
}

func TestTrackerRejectsImplausibleJump(t *testing.T) {
	tracker, err := New(linearConfig())
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		tracker.Update(nil, []Detection{det(100+10*i, 100)})
	}
	tracker.Update(nil, nil)

	// A detection 500 px away cannot be the same vehicle one frame
	// later; it must become a new identity.
	snapshots := tracker.Update(nil, []Detection{det(650, 100)})

	require.Len(t, snapshots, 2)
	newSnap, ok := snapshots[2]
	require.True(t, ok, "expected a new track id 2")
	assert.Equal(t, 1, newSnap.Hits)
	assert.Equal(t, int64(0), tracker.Metrics().Reidentified)

	oldSnap := snapshots[1]
	assert.Equal(t, 2, oldSnap.Lost, "old track keeps coasting")
}

func TestTrackerStaticTrackCannotTeleport(t *testing.T) {
	tracker, err := New(linearConfig())
	require.NoError(t, err)

	// Parked vehicle: same box for eight frames.
	for i := 0; i < 8; i++ {
		tracker.Update(nil, []Detection{det(200, 200)})
	}
	tracker.Update(nil, nil)

	// 50 px jump exceeds what a parked object may move.
	snapshots := tracker.Update(nil, []Detection{det(250, 250)})

	require.Len(t, snapshots, 2)
	assert.Equal(t, int64(0), tracker.Metrics().Reidentified)
}

func TestTrackerMergesFragmentsBeforeAssociation(t *testing.T) {
	tracker, err := New(DefaultConfig())
	require.NoError(t, err)

	// One vehicle split into two overlapping fragments must spawn a
	// single track covering the union.
	snapshots := tracker.Update(nil, []Detection{
		{Rect: Rect{X1: 100, Y1: 100, X2: 160, Y2: 140}, Confidence: 0.7},
		{Rect: Rect{X1: 130, Y1: 100, X2: 190, Y2: 140}, Confidence: 0.9},
	})

	snap := singleID(t, snapshots)
	assert.Equal(t, Rect{X1: 100, Y1: 100, X2: 190, Y2: 140}, snap.Rect)
	assert.Equal(t, 0.9, snap.Confidence)
	assert.Equal(t, int64(1), tracker.Metrics().FragmentMerges)
}

func TestTrackerMahalanobisReidentification(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkipFrames = 0
	tracker, err := New(cfg)
	require.NoError(t, err)

	// Converge the filter on steady motion.
	for i := 0; i < 8; i++ {
		tracker.Update(nil, []Detection{det(100+10*i, 100)})
	}

	// Three occluded frames.
	for i := 0; i < 3; i++ {
		tracker.Update(nil, nil)
	}

	// Reappear on the constant-velocity path: 4 frames past x1=170.
	snap := singleID(t, tracker.Update(nil, []Detection{det(210, 100)}))

	assert.Equal(t, int64(1), snap.ID)
	assert.Equal(t, 0, snap.Lost)
	assert.Equal(t, int64(1), tracker.Metrics().Reidentified)
}

func TestTrackerSnapshotIsDeepCopy(t *testing.T) {
	tracker, err := New(DefaultConfig())
	require.NoError(t, err)

	tracker.Update(nil, []Detection{det(100, 100)})
	snapshots := tracker.Snapshot()
	snap := snapshots[1]

	// Mutating the copy must not leak into the live table.
	snap.Centroids[0] = Point{X: -1, Y: -1}
	again := tracker.Snapshot()[1]
	assert.NotEqual(t, Point{X: -1, Y: -1}, again.Centroids[0])
}

func TestTrackerConfigValidation(t *testing.T) {
	bad := []Config{
		{},
		func() Config { c := DefaultConfig(); c.IoUThreshold = 1.5; return c }(),
		func() Config { c := DefaultConfig(); c.MaxLost = 0; return c }(),
		func() Config { c := DefaultConfig(); c.SearchRadius = -1; return c }(),
		func() Config { c := DefaultConfig(); c.Assignment = "magic"; return c }(),
		func() Config { c := DefaultConfig(); c.Motion = "warp"; return c }(),
	}
	for i, cfg := range bad {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}

	_, err := New(DefaultConfig())
	assert.NoError(t, err)
}

// recordingCollector is a minimal DebugCollector for asserting that
// the engine emits decision events.
type recordingCollector struct {
	overlaps    int
	candidates  int
	gates       int
	gateRejects int
	reids       int
	lifecycle   []LifecycleEvent
}

func (c *recordingCollector) IsEnabled() bool { return true }
func (c *recordingCollector) RecordOverlap(int64, int, float64, bool) {
	c.overlaps++
}
func (c *recordingCollector) RecordCandidate(int64, int, MatchScore, RejectReason) {
	c.candidates++
}
func (c *recordingCollector) RecordGating(_ int64, _ int, _, _ float64, accepted bool) {
	c.gates++
	if !accepted {
		c.gateRejects++
	}
}
func (c *recordingCollector) RecordReID(int64, int, float64, int) {
	c.reids++
}
func (c *recordingCollector) RecordLifecycle(_ int64, ev LifecycleEvent) {
	c.lifecycle = append(c.lifecycle, ev)
}

func TestTrackerEmitsDebugEvents(t *testing.T) {
	cfg := linearConfig()
	cfg.MaxLost = 2
	tracker, err := New(cfg)
	require.NoError(t, err)

	rec := &recordingCollector{}
	tracker.SetDebugCollector(rec)

	for i := 0; i < 6; i++ {
		tracker.Update(nil, []Detection{det(100+10*i, 100)})
	}
	tracker.Update(nil, nil)
	tracker.Update(nil, []Detection{det(170, 100)})
	tracker.Update(nil, nil)
	tracker.Update(nil, nil)
	tracker.Update(nil, nil)

	assert.Greater(t, rec.overlaps, 0, "phase-1 commits recorded")
	assert.Greater(t, rec.candidates, 0, "phase-2 evaluations recorded")
	assert.Equal(t, 1, rec.reids)
	assert.Contains(t, rec.lifecycle, TrackCreated)
	assert.Contains(t, rec.lifecycle, TrackEvicted)
}

func TestTrackerRecordsStatisticalGateRejections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkipFrames = 0
	tracker, err := New(cfg)
	require.NoError(t, err)

	rec := &recordingCollector{}
	tracker.SetDebugCollector(rec)

	for i := 0; i < 8; i++ {
		tracker.Update(nil, []Detection{det(100+10*i, 100)})
	}
	tracker.Update(nil, nil)

	// 130 px off the predicted position: inside the Euclidean
	// pre-gate, far outside the Mahalanobis threshold. The candidate
	// must be reported as evaluated-and-rejected, not dropped.
	snapshots := tracker.Update(nil, []Detection{det(320, 100)})

	assert.Greater(t, rec.gateRejects, 0, "over-threshold gating evaluations recorded")
	assert.Equal(t, 0, rec.reids)
	assert.Len(t, snapshots, 2, "detection starts a fresh track")
}
