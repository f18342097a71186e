package track

import (
	"fmt"
	"image"
	"sort"
	"sync"
)

// Tracker assigns stable identities to per-frame vehicle detections.
// One Update call per frame, fully synchronous; the track table is
// owned exclusively by the tracker and callers only ever see copies.
// A mutex serialises Update against the snapshot accessors so the
// multi-step per-frame mutation appears atomic to external observers.
type Tracker struct {
	mu sync.Mutex

	cfg    Config
	motion motionModel

	tracks map[int64]*Track
	nextID int64
	frame  int64

	finished  []Snapshot
	collector DebugCollector
	metrics   Metrics
}

// Snapshot is a caller-safe copy of one track's externally visible
// state at the end of a frame.
type Snapshot struct {
	ID         int64
	Rect       Rect
	Confidence float64
	Hits       int
	Lost       int
	Centroids  []Point
	Direction  Direction
	Static     bool
	Reliable   bool // Hits has reached Config.MinHits
	Predicted  *Rect
	AvgSpeed   float64
	PeakSpeed  float64
	FirstFrame int64
	LastFrame  int64
}

// Metrics are aggregate lifecycle counters since construction.
type Metrics struct {
	FramesProcessed int64
	TracksCreated   int64
	TracksEvicted   int64
	Reidentified    int64
	FragmentMerges  int64
}

// New builds a tracker from the given configuration. The configuration
// is copied and never consulted elsewhere; there is no mutable shared
// tuning state.
func New(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tracker config: %w", err)
	}

	var motion motionModel
	switch cfg.Motion {
	case MotionKalman:
		motion = kalmanMotion{}
	default:
		motion = linearMotion{skipFrames: cfg.SkipFrames}
	}

	return &Tracker{
		cfg:    cfg,
		motion: motion,
		tracks: make(map[int64]*Track),
		nextID: 1,
	}, nil
}

// SetDebugCollector attaches a collector for structured decision
// tracing. Safe to call between frames; pass nil to detach.
func (t *Tracker) SetDebugCollector(c DebugCollector) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.collector = c
}

// Update processes one frame of detections and returns the resulting
// track table as snapshots keyed by track id. The frame pixels feed
// appearance histograms and may be nil (replay without video), in
// which case appearance scores stay neutral.
//
// Per-frame sequence: merge fragments, predict every track, Phase-1
// geometric matching on visible tracks, Phase-2 re-identification on
// leftovers, apply updates, age the unmatched, create tracks for
// unmatched detections, evict expired tracks.
func (t *Tracker) Update(frame image.Image, detections []Detection) map[int64]Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.frame++
	t.metrics.FramesProcessed++

	dets, fused := MergeFragments(detections, t.cfg.FragmentIoU)
	t.metrics.FragmentMerges += int64(fused)

	for _, tr := range t.tracks {
		t.motion.predict(tr)
	}

	assigned := make(map[int64]int)
	usedDets := make(map[int]bool)

	t.matchVisible(dets, usedDets, assigned)

	switch t.cfg.Motion {
	case MotionKalman:
		t.reidentifyMahalanobis(dets, usedDets, assigned)
	default:
		t.reidentifyHeuristic(frame, dets, usedDets, assigned)
	}

	for id, di := range assigned {
		tr := t.tracks[id]
		det := dets[di]
		r := t.motion.observe(tr, frame, det)
		tr.Update(frame, r, det.Confidence, t.frame)
	}

	for id, tr := range t.tracks {
		if _, ok := assigned[id]; !ok {
			tr.MarkMissed()
		}
	}

	for di, det := range dets {
		if !usedDets[di] {
			t.createTrack(frame, det)
		}
	}

	for id, tr := range t.tracks {
		if tr.Lost > t.cfg.MaxLost {
			t.finished = append(t.finished, t.snapshotOf(tr))
			delete(t.tracks, id)
			t.metrics.TracksEvicted++
			if collectorEnabled(t.collector) {
				t.collector.RecordLifecycle(id, TrackEvicted)
			}
		}
	}

	return t.snapshotLocked()
}

// matchVisible is Phase 1: geometric overlap between currently visible
// tracks (lost == 0) and detections. Both strategies guarantee a 1:1
// assignment and never commit a pair under the overlap threshold.
func (t *Tracker) matchVisible(dets []Detection, usedDets map[int]bool, assigned map[int64]int) {
	var visibleIDs []int64
	for id, tr := range t.tracks {
		if tr.Lost == 0 {
			visibleIDs = append(visibleIDs, id)
		}
	}
	if len(visibleIDs) == 0 || len(dets) == 0 {
		return
	}
	// Map iteration order is random; fix it so greedy tie-breaking and
	// the cost matrix layout are reproducible.
	sort.Slice(visibleIDs, func(i, j int) bool { return visibleIDs[i] < visibleIDs[j] })

	overlap := make([][]float64, len(visibleIDs))
	for i, id := range visibleIDs {
		tr := t.tracks[id]
		box := tr.Rect
		if tr.Predicted != nil {
			box = *tr.Predicted
		}
		overlap[i] = make([]float64, len(dets))
		for j, det := range dets {
			overlap[i][j] = IoU(box, det.Rect)
		}
	}

	switch t.cfg.Assignment {
	case AssignGreedy:
		t.commitGreedy(visibleIDs, overlap, usedDets, assigned)
	default:
		t.commitOptimal(visibleIDs, overlap, usedDets, assigned)
	}
}

// commitGreedy repeatedly commits the global-maximum overlap pair
// until the best remaining pair falls below the threshold.
func (t *Tracker) commitGreedy(ids []int64, overlap [][]float64, usedDets map[int]bool, assigned map[int64]int) {
	usedRows := make([]bool, len(ids))
	usedCols := make([]bool, len(overlap[0]))

	for {
		best := -1.0
		bi, bj := -1, -1
		for i := range overlap {
			if usedRows[i] {
				continue
			}
			for j := range overlap[i] {
				if usedCols[j] {
					continue
				}
				if overlap[i][j] > best {
					best = overlap[i][j]
					bi, bj = i, j
				}
			}
		}
		if bi < 0 || best < t.cfg.IoUThreshold {
			break
		}
		usedRows[bi] = true
		usedCols[bj] = true
		assigned[ids[bi]] = bj
		usedDets[bj] = true
		if collectorEnabled(t.collector) {
			t.collector.RecordOverlap(ids[bi], bj, best, true)
		}
	}
}

// commitOptimal solves the assignment on negative IoU and rejects any
// committed pair below the threshold post-hoc.
func (t *Tracker) commitOptimal(ids []int64, overlap [][]float64, usedDets map[int]bool, assigned map[int64]int) {
	cost := make([][]float64, len(overlap))
	for i := range overlap {
		cost[i] = make([]float64, len(overlap[i]))
		for j, v := range overlap[i] {
			if v < t.cfg.IoUThreshold {
				cost[i][j] = forbiddenCost
			} else {
				cost[i][j] = -v
			}
		}
	}

	for i, j := range assignMinCost(cost) {
		if j < 0 {
			continue
		}
		assigned[ids[i]] = j
		usedDets[j] = true
		if collectorEnabled(t.collector) {
			t.collector.RecordOverlap(ids[i], j, overlap[i][j], true)
		}
	}
}

// createTrack spawns a new identity for a detection unmatched in both
// phases. IDs are monotonically increasing and never reused.
func (t *Tracker) createTrack(frame image.Image, det Detection) *Track {
	tr := &Track{
		ID:         t.nextID,
		Rect:       det.Rect,
		Confidence: det.Confidence,
		Hits:       1,
		FirstFrame: t.frame,
		LastFrame:  t.frame,
		Centroids:  []Point{det.Rect.Center()},
		Appearance: ComputeSignature(frame, det.Rect),
	}
	t.motion.init(tr)

	t.tracks[t.nextID] = tr
	t.nextID++
	t.metrics.TracksCreated++
	if collectorEnabled(t.collector) {
		t.collector.RecordLifecycle(tr.ID, TrackCreated)
	}
	return tr
}

// Snapshot returns a copy of the current track table keyed by id.
func (t *Tracker) Snapshot() map[int64]Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// DrainFinished returns the tracks evicted since the last drain, in
// eviction order, and clears the buffer. The store consumer calls this
// after each frame (or batch of frames).
func (t *Tracker) DrainFinished() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.finished
	t.finished = nil
	return out
}

// Metrics returns the aggregate lifecycle counters.
func (t *Tracker) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}

func (t *Tracker) snapshotLocked() map[int64]Snapshot {
	out := make(map[int64]Snapshot, len(t.tracks))
	for id, tr := range t.tracks {
		out[id] = t.snapshotOf(tr)
	}
	return out
}

func (t *Tracker) snapshotOf(tr *Track) Snapshot {
	centroids := make([]Point, len(tr.Centroids))
	copy(centroids, tr.Centroids)

	var predicted *Rect
	if tr.Predicted != nil {
		p := *tr.Predicted
		predicted = &p
	}

	return Snapshot{
		ID:         tr.ID,
		Rect:       tr.Rect,
		Confidence: tr.Confidence,
		Hits:       tr.Hits,
		Lost:       tr.Lost,
		Centroids:  centroids,
		Direction:  tr.Direction(),
		Static:     tr.IsStatic(),
		Reliable:   tr.Hits >= t.cfg.MinHits,
		Predicted:  predicted,
		AvgSpeed:   tr.AvgSpeed,
		PeakSpeed:  tr.PeakSpeed,
		FirstFrame: tr.FirstFrame,
		LastFrame:  tr.LastFrame,
	}
}
