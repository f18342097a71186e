package track

import "fmt"

// AssignmentStrategy selects the Phase-1 geometric matching algorithm.
type AssignmentStrategy string

const (
	// AssignGreedy repeatedly commits the global-maximum IoU pair.
	// Cheap, not globally optimal; sufficient when overlaps are
	// unambiguous.
	AssignGreedy AssignmentStrategy = "greedy"

	// AssignHungarian solves the optimal assignment on negative IoU.
	// Preferred when overlap patterns are ambiguous, e.g. crossing
	// vehicles.
	AssignHungarian AssignmentStrategy = "hungarian"
)

// MotionStrategy selects the motion model, which in turn selects the
// Phase-2 scoring discipline: linear extrapolation pairs with the
// heuristic composite score, the Kalman filter with Mahalanobis gating.
type MotionStrategy string

const (
	MotionLinear MotionStrategy = "linear"
	MotionKalman MotionStrategy = "kalman"
)

// Config is the immutable construction-time parameter set for a
// Tracker. There are no mutable package-level knobs; two trackers with
// different configs coexist safely in one process.
type Config struct {
	// IoUThreshold is the minimum overlap to accept a Phase-1 match.
	IoUThreshold float64

	// MaxLost is the number of consecutive unmatched frames a track
	// may coast before eviction (the loss buffer).
	MaxLost int

	// MinHits is the number of confirmed matches before a track is
	// considered reliable for display and counting.
	MinHits int

	// SearchRadius is the base pixel radius for Phase-2 distance
	// gating in the heuristic discipline.
	SearchRadius float64

	// MinMatchScore is the minimum composite score to accept a
	// heuristic re-identification; per-pair thresholds scale it by
	// staticness and lost count.
	MinMatchScore float64

	// SkipFrames is the detector sampling interval: how many source
	// frames the detector skips between inferences. Motion
	// extrapolation scales by (SkipFrames + 1).
	SkipFrames int

	// FragmentIoU enables the fragment merger when positive; zero
	// disables it.
	FragmentIoU float64

	// MahalanobisThreshold is the base statistical gating distance for
	// the Kalman variant; relaxed for long-lost tracks.
	MahalanobisThreshold float64

	// Assignment picks the Phase-1 strategy.
	Assignment AssignmentStrategy

	// Motion picks the motion model and Phase-2 discipline.
	Motion MotionStrategy
}

// DefaultConfig returns the tuning used for kerbside traffic footage:
// the Kalman motion model with optimal assignment, a 100 px base
// search radius, and a 25-frame loss buffer.
func DefaultConfig() Config {
	return Config{
		IoUThreshold:         0.3,
		MaxLost:              25,
		MinHits:              3,
		SearchRadius:         100.0,
		MinMatchScore:        0.50,
		SkipFrames:           1,
		FragmentIoU:          0.1,
		MahalanobisThreshold: 3.5,
		Assignment:           AssignHungarian,
		Motion:               MotionKalman,
	}
}

// Validate rejects configurations that would make every association
// impossible or every track immortal.
func (c Config) Validate() error {
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("iou_threshold %v outside [0, 1]", c.IoUThreshold)
	}
	if c.MaxLost < 1 {
		return fmt.Errorf("max_lost %d must be at least 1", c.MaxLost)
	}
	if c.MinHits < 1 {
		return fmt.Errorf("min_hits %d must be at least 1", c.MinHits)
	}
	if c.SearchRadius <= 0 {
		return fmt.Errorf("search_radius %v must be positive", c.SearchRadius)
	}
	if c.MinMatchScore < 0 || c.MinMatchScore > 1 {
		return fmt.Errorf("min_match_score %v outside [0, 1]", c.MinMatchScore)
	}
	if c.SkipFrames < 0 {
		return fmt.Errorf("skip_frames %d must be non-negative", c.SkipFrames)
	}
	if c.MahalanobisThreshold <= 0 {
		return fmt.Errorf("mahalanobis_threshold %v must be positive", c.MahalanobisThreshold)
	}
	switch c.Assignment {
	case AssignGreedy, AssignHungarian:
	default:
		return fmt.Errorf("unknown assignment strategy %q", c.Assignment)
	}
	switch c.Motion {
	case MotionLinear, MotionKalman:
	default:
		return fmt.Errorf("unknown motion strategy %q", c.Motion)
	}
	return nil
}
