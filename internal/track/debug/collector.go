// Package debug provides instrumentation for the tracking engine.
// The Collector captures association internals (overlap evaluations,
// re-identification scores, gating decisions) for visualisation and
// tuning.
package debug

import "github.com/kerb-data/trafficlens/internal/track"

// Pre-allocation capacities for debug frame slices.
// Based on typical intersection scene complexity:
//   - ~10-30 active tracks × ~1-3 detections each = ~30-90 overlap evaluations
//   - a handful of lost tracks scored against each unmatched detection
const (
	defaultOverlapCapacity   = 64
	defaultCandidateCapacity = 32
	defaultGatingCapacity    = 32
	defaultLifecycleCapacity = 8
)

// Collector accumulates debug artifacts during a single frame's
// processing. When enabled, it records which track-detection pairs
// were considered, the score breakdown behind each re-identification
// decision, and lifecycle mutations.
//
// The collector is stateful: the engine calls Record*() methods during
// processing, then the caller invokes Emit() at frame completion to
// extract the artifacts. Reset() discards a partial frame.
type Collector struct {
	enabled bool
	current *Frame
}

// Frame contains all debug artifacts for a single processed frame.
type Frame struct {
	FrameID uint64

	// Phase 1: geometric overlap evaluations between visible tracks
	// and detections.
	Overlaps []OverlapRecord

	// Phase 2 (heuristic): scored re-identification candidates with
	// rejection reasons.
	Candidates []CandidateRecord

	// Phase 2 (statistical): Mahalanobis gating evaluations.
	Gates []GatingRecord

	// Committed re-identifications.
	Recoveries []RecoveryRecord

	// Track creations and evictions.
	Lifecycle []LifecycleRecord
}

// OverlapRecord captures a single track-detection overlap evaluated
// during Phase-1 association.
type OverlapRecord struct {
	TrackID  int64
	DetIndex int
	IoU      float64
	Accepted bool
}

// CandidateRecord captures a heuristic re-identification candidate:
// the weighted score terms and why the pair was discarded, if it was.
type CandidateRecord struct {
	TrackID  int64
	DetIndex int
	Score    track.MatchScore
	Reason   track.RejectReason
}

// GatingRecord captures a statistical re-identification evaluation.
type GatingRecord struct {
	TrackID   int64
	DetIndex  int
	Distance  float64
	Threshold float64
	Accepted  bool
}

// RecoveryRecord captures a committed re-identification: a lost track
// regaining a detection.
type RecoveryRecord struct {
	TrackID    int64
	DetIndex   int
	Score      float64
	FramesLost int
}

// LifecycleRecord captures a track table mutation.
type LifecycleRecord struct {
	TrackID int64
	Event   track.LifecycleEvent
}

// NewCollector creates a collector that is initially disabled.
// Call SetEnabled(true) to begin collecting artifacts.
func NewCollector() *Collector {
	return &Collector{}
}

// SetEnabled controls whether the collector records artifacts.
// When disabled, all Record*() calls are no-ops.
func (c *Collector) SetEnabled(enabled bool) {
	c.enabled = enabled
	// Don't create a frame automatically - caller must call BeginFrame
}

// IsEnabled returns true if the collector is actively recording.
func (c *Collector) IsEnabled() bool {
	return c.enabled
}

// BeginFrame initialises collection for a new frame.
// Must be called before the engine processes the frame.
func (c *Collector) BeginFrame(frameID uint64) {
	if !c.enabled {
		return
	}
	c.current = &Frame{
		FrameID:    frameID,
		Overlaps:   make([]OverlapRecord, 0, defaultOverlapCapacity),
		Candidates: make([]CandidateRecord, 0, defaultCandidateCapacity),
		Gates:      make([]GatingRecord, 0, defaultGatingCapacity),
		Lifecycle:  make([]LifecycleRecord, 0, defaultLifecycleCapacity),
	}
}

// RecordOverlap captures a Phase-1 overlap evaluation.
func (c *Collector) RecordOverlap(trackID int64, detIndex int, iou float64, accepted bool) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Overlaps = append(c.current.Overlaps, OverlapRecord{
		TrackID:  trackID,
		DetIndex: detIndex,
		IoU:      iou,
		Accepted: accepted,
	})
}

// RecordCandidate captures a heuristic re-identification evaluation.
func (c *Collector) RecordCandidate(trackID int64, detIndex int, score track.MatchScore, reason track.RejectReason) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Candidates = append(c.current.Candidates, CandidateRecord{
		TrackID:  trackID,
		DetIndex: detIndex,
		Score:    score,
		Reason:   reason,
	})
}

// RecordGating captures a Mahalanobis gating evaluation.
func (c *Collector) RecordGating(trackID int64, detIndex int, distance, threshold float64, accepted bool) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Gates = append(c.current.Gates, GatingRecord{
		TrackID:   trackID,
		DetIndex:  detIndex,
		Distance:  distance,
		Threshold: threshold,
		Accepted:  accepted,
	})
}

// RecordReID captures a committed re-identification.
func (c *Collector) RecordReID(trackID int64, detIndex int, score float64, lost int) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Recoveries = append(c.current.Recoveries, RecoveryRecord{
		TrackID:    trackID,
		DetIndex:   detIndex,
		Score:      score,
		FramesLost: lost,
	})
}

// RecordLifecycle captures a track creation or eviction.
func (c *Collector) RecordLifecycle(trackID int64, event track.LifecycleEvent) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Lifecycle = append(c.current.Lifecycle, LifecycleRecord{
		TrackID: trackID,
		Event:   event,
	})
}

// Emit returns the accumulated debug frame and prepares for the next
// frame. Returns nil if collection is disabled or no frame was begun.
func (c *Collector) Emit() *Frame {
	if !c.enabled || c.current == nil {
		return nil
	}
	frame := c.current
	c.current = nil
	return frame
}

// Reset clears any pending artifacts without emitting them.
func (c *Collector) Reset() {
	c.current = nil
}
