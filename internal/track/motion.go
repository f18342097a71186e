package track

import "image"

// Motion models bridge detection gaps: once per frame every track gets
// a predict step, and matched tracks get an observe step that decides
// the geometry actually stored on the track. The two implementations
// trade simplicity against smoothness: linear extrapolation follows
// the centroid trail directly, the Kalman model filters both position
// and size and blends its correction with the raw detection.
type motionModel interface {
	// init seeds any per-track state at creation time.
	init(tr *Track)

	// predict refreshes tr.Predicted for the current frame. Called for
	// every live track before association.
	predict(tr *Track)

	// observe folds a matched detection into the model and returns the
	// box to apply to the track.
	observe(tr *Track, frame image.Image, det Detection) Rect
}

// framesAhead is how many source frames a lost track has effectively
// coasted, accounting for frames the detector itself skipped.
func framesAhead(lost, skipFrames int) int {
	return max(1, lost*(skipFrames+1))
}

// linearMotion extrapolates the centroid trail at the recent average
// velocity. Static objects are damped: their prediction is pinned to
// the last known centroid so detector jitter cannot walk a parked car
// across the street.
type linearMotion struct {
	skipFrames int
}

func (m linearMotion) init(*Track) {}

func (m linearMotion) predict(tr *Track) {
	if tr.Lost == 0 {
		return
	}
	target := m.predictCentroid(tr, framesAhead(tr.Lost, m.skipFrames))
	last := tr.Centroids[len(tr.Centroids)-1]
	predicted := tr.Rect.Translate(target.X-last.X, target.Y-last.Y)
	tr.Predicted = &predicted
}

func (m linearMotion) observe(_ *Track, _ image.Image, det Detection) Rect {
	return det.Rect
}

// predictCentroid extrapolates the track centroid n frames forward.
// The velocity estimate is the plain mean of the deltas across the
// last few centroids; the whole trail window is used rather than the
// recency-weighted estimate because extrapolation over a gap wants
// stability, not responsiveness.
func (m linearMotion) predictCentroid(tr *Track, n int) Point {
	cs := tr.Centroids
	if len(cs) == 0 {
		return Point{}
	}
	last := cs[len(cs)-1]
	if len(cs) < 2 || tr.IsStatic() {
		return last
	}

	recent := cs[len(cs)-min(5, len(cs)):]
	var vx, vy float64
	for i := 1; i < len(recent); i++ {
		vx += recent[i].X - recent[i-1].X
		vy += recent[i].Y - recent[i-1].Y
	}
	steps := float64(len(recent) - 1)
	vx /= steps
	vy /= steps

	return Point{
		X: last.X + vx*float64(n),
		Y: last.Y + vy*float64(n),
	}
}

// kalmanMotion runs a per-track constant-velocity filter over position
// and size. Every track is predicted once per frame regardless of
// match outcome; on a match the filter is corrected and the exposed
// box is a confidence-weighted blend of the corrected geometry and the
// raw detection, trusting the filter more as the track matures.
// Brand-new tracks use raw detections directly. Blending applies only
// on real matches; while a track is lost the exposed geometry is the
// unblended clamped prediction.
type kalmanMotion struct{}

func (kalmanMotion) init(tr *Track) {
	tr.filter = newBoxKalmanFilter(tr.Rect)
}

func (kalmanMotion) predict(tr *Track) {
	if tr.filter == nil {
		return
	}
	tr.filter.predict()
	predicted := tr.filter.stateRect()
	tr.Predicted = &predicted
}

// Hybrid blend weights keyed on track maturity.
const (
	blendMinHits         = 3
	blendEstablishedHits = 5
	blendVeteranHits     = 10

	blendWeightNew         = 0.50
	blendWeightEstablished = 0.70
	blendWeightVeteran     = 0.80
)

func (kalmanMotion) observe(tr *Track, _ image.Image, det Detection) Rect {
	if tr.filter == nil {
		return det.Rect
	}

	// A singular innovation covariance skips the correction for this
	// pair; the raw detection still updates the track so one bad
	// numerical step never corrupts the table.
	if err := tr.filter.correct(measurementFromRect(det.Rect)); err != nil {
		return det.Rect
	}

	if tr.Hits < blendMinHits || !tr.filter.sizeSane() {
		return det.Rect
	}

	kw := blendWeightNew
	switch {
	case tr.Hits >= blendVeteranHits:
		kw = blendWeightVeteran
	case tr.Hits >= blendEstablishedHits:
		kw = blendWeightEstablished
	}
	dw := 1 - kw

	corrected := tr.filter.stateRect()
	raw := det.Rect
	return Rect{
		X1: int(kw*float64(corrected.X1) + dw*float64(raw.X1)),
		Y1: int(kw*float64(corrected.Y1) + dw*float64(raw.Y1)),
		X2: int(kw*float64(corrected.X2) + dw*float64(raw.X2)),
		Y2: int(kw*float64(corrected.Y2) + dw*float64(raw.Y2)),
	}
}
