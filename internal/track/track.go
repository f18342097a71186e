package track

import (
	"image"
	"math"
)

// Direction is the coarse heading of a track in image space.
type Direction string

const (
	DirectionNone  Direction = ""
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// History limits for the per-track state.
const (
	maxCentroidHistory = 50 // Position trail length
	maxVelocityHistory = 5  // Frame-to-frame deltas kept for smoothing
)

// directionMinDisplacement is the minimum axis displacement, in pixels,
// before a heading is reported at all.
const directionMinDisplacement = 5.0

// staticDisplacementThreshold is the average per-frame displacement, in
// pixels, below which a track is considered parked. Derived over the
// last staticWindow centroids.
const (
	staticDisplacementThreshold = 3.0
	staticWindow                = 6
	staticMinCentroids          = 4
)

// Track is the per-object state owned by the Tracker's table. Callers
// receive copies via Snapshot; they must never mutate a live Track.
type Track struct {
	// Identity. IDs are assigned monotonically at creation and never
	// reused, including across evictions.
	ID int64

	// Current geometry and detector confidence. Confidence drops to
	// zero while the track is coasting on predictions.
	Rect       Rect
	Confidence float64

	// Lifecycle counters. Hits counts frames matched to a detection;
	// Lost counts consecutive frames without a match and resets to
	// zero exactly when matched.
	Hits int
	Lost int

	// FirstFrame and LastFrame bound the track's observed lifetime.
	FirstFrame int64
	LastFrame  int64

	// Centroids is the bounded position trail, oldest first. It always
	// holds at least one entry once the track exists.
	Centroids []Point

	// velocities holds recent frame-to-frame centroid deltas for the
	// recency-weighted velocity estimate.
	velocities []Point

	// Appearance is the smoothed colour signature, nil until the first
	// update with frame pixels available.
	Appearance Signature

	// Predicted holds extrapolated geometry while the track is
	// coasting. It is cleared whenever a real detection is applied.
	Predicted *Rect

	// filter is the per-track Kalman state, nil for the linear motion
	// variant. Owned exclusively by this track.
	filter *boxKalmanFilter

	// Speed statistics over the track lifetime, in pixels per frame.
	AvgSpeed  float64
	PeakSpeed float64
}

// Update applies a matched detection: recompute velocity from the
// previous centroid, append to the trail, blend the appearance
// signature, reset the lost counter, and clear any coasted prediction.
func (tr *Track) Update(frame image.Image, r Rect, confidence float64, frameIndex int64) {
	center := r.Center()

	if n := len(tr.Centroids); n > 0 {
		prev := tr.Centroids[n-1]
		tr.velocities = append(tr.velocities, Point{X: center.X - prev.X, Y: center.Y - prev.Y})
		if len(tr.velocities) > maxVelocityHistory {
			tr.velocities = tr.velocities[len(tr.velocities)-maxVelocityHistory:]
		}
	}

	tr.Rect = r
	tr.Confidence = confidence
	tr.Hits++
	tr.Lost = 0
	tr.LastFrame = frameIndex

	tr.Centroids = append(tr.Centroids, center)
	if len(tr.Centroids) > maxCentroidHistory {
		tr.Centroids = tr.Centroids[len(tr.Centroids)-maxCentroidHistory:]
	}

	if sig := ComputeSignature(frame, r); sig != nil {
		tr.Appearance = tr.Appearance.Blend(sig)
	}

	vx, vy := tr.AverageVelocity()
	speed := math.Hypot(vx, vy)
	n := float64(tr.Hits)
	tr.AvgSpeed = ((n-1)*tr.AvgSpeed + speed) / n
	if speed > tr.PeakSpeed {
		tr.PeakSpeed = speed
	}

	tr.Predicted = nil
}

// MarkMissed records a frame without a matched detection. The exposed
// confidence drops to zero while the track coasts.
func (tr *Track) MarkMissed() {
	tr.Lost++
	tr.Confidence = 0
}

// Direction reports the track's coarse heading from the last few
// centroids. Displacement under directionMinDisplacement on both axes
// reports DirectionNone; otherwise the axis with the larger absolute
// displacement wins and its sign picks the direction.
func (tr *Track) Direction() Direction {
	n := len(tr.Centroids)
	if n < 3 {
		return DirectionNone
	}
	recent := tr.Centroids[n-min(5, n):]
	dx := recent[len(recent)-1].X - recent[0].X
	dy := recent[len(recent)-1].Y - recent[0].Y

	if math.Abs(dx) < directionMinDisplacement && math.Abs(dy) < directionMinDisplacement {
		return DirectionNone
	}
	if math.Abs(dx) > math.Abs(dy) {
		if dx > 0 {
			return DirectionRight
		}
		return DirectionLeft
	}
	if dy > 0 {
		return DirectionDown
	}
	return DirectionUp
}

// AverageVelocity returns the recency-weighted mean of the velocity
// history in pixels per frame. Weights rise linearly from 0.5 for the
// oldest sample to 1.0 for the newest.
func (tr *Track) AverageVelocity() (vx, vy float64) {
	n := len(tr.velocities)
	if n == 0 {
		return 0, 0
	}
	var sum float64
	weights := make([]float64, n)
	for i := range weights {
		w := 1.0
		if n > 1 {
			w = 0.5 + 0.5*float64(i)/float64(n-1)
		}
		weights[i] = w
		sum += w
	}
	for i, v := range tr.velocities {
		w := weights[i] / sum
		vx += v.X * w
		vy += v.Y * w
	}
	return vx, vy
}

// IsMovingFast reports whether the average speed exceeds threshold
// pixels per frame.
func (tr *Track) IsMovingFast(threshold float64) bool {
	vx, vy := tr.AverageVelocity()
	return math.Hypot(vx, vy) > threshold
}

// IsStatic reports whether the track looks parked: enough history and
// an average per-frame displacement under the static threshold.
func (tr *Track) IsStatic() bool {
	n := len(tr.Centroids)
	if n < staticMinCentroids {
		return false
	}
	recent := tr.Centroids[n-min(staticWindow, n):]
	var total float64
	for i := 1; i < len(recent); i++ {
		total += recent[i].Dist(recent[i-1])
	}
	return total/float64(len(recent)-1) < staticDisplacementThreshold
}

// recentSpeed estimates the track's speed before it was lost, in
// pixels per frame, using up to the last three centroids for stability.
func (tr *Track) recentSpeed() float64 {
	n := len(tr.Centroids)
	switch {
	case n >= 3:
		recent := tr.Centroids[n-3:]
		return recent[2].Dist(recent[0]) / 2
	case n == 2:
		return tr.Centroids[1].Dist(tr.Centroids[0])
	default:
		return 0
	}
}
