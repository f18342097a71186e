package track

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// boxKalmanFilter is a constant-velocity Kalman filter over box centre,
// size, and their rates. State vector (7): [cx, cy, w, h, vx, vy, vs]
// where vs is a shared size rate applied to both w and h (vehicles
// grow or shrink in the image roughly isotropically as they approach
// or recede). Measurement vector (4): [cx, cy, w, h].
//
// The noise shaping trusts the model through occlusion (low process
// noise on position and size, moderate on velocity so smooth
// acceleration is absorbed) and trusts detected position more than
// detected size (detectors localise centres better than extents).
type boxKalmanFilter struct {
	x *mat.VecDense // state estimate
	p *mat.Dense    // state covariance

	f *mat.Dense // state transition
	h *mat.Dense // measurement model
	q *mat.Dense // process noise covariance
	r *mat.Dense // measurement noise covariance
}

const (
	kalmanStateDim       = 7
	kalmanMeasurementDim = 4
)

// Predicted box sizes outside [minBoxSize, maxBoxSize] pixels are
// clamped before being exposed as geometry.
const (
	minBoxSize = 10
	maxBoxSize = 1000
)

// errSingularInnovation reports a non-invertible innovation covariance.
// Callers recover locally (skip the correction, or fall back to a
// normalised Euclidean distance); it never aborts frame processing.
var errSingularInnovation = errors.New("track: singular innovation covariance")

// newBoxKalmanFilter seeds a filter at the given box with zero
// velocity and a deliberately loose initial covariance on the rates,
// so the first few corrections can pull the velocity estimate toward
// the observed motion quickly.
func newBoxKalmanFilter(r Rect) *boxKalmanFilter {
	c := r.Center()

	f := mat.NewDense(kalmanStateDim, kalmanStateDim, []float64{
		1, 0, 0, 0, 1, 0, 0, // cx' = cx + vx
		0, 1, 0, 0, 0, 1, 0, // cy' = cy + vy
		0, 0, 1, 0, 0, 0, 1, // w'  = w + vs
		0, 0, 0, 1, 0, 0, 1, // h'  = h + vs
		0, 0, 0, 0, 1, 0, 0,
		0, 0, 0, 0, 0, 1, 0,
		0, 0, 0, 0, 0, 0, 1,
	})

	h := mat.NewDense(kalmanMeasurementDim, kalmanStateDim, []float64{
		1, 0, 0, 0, 0, 0, 0,
		0, 1, 0, 0, 0, 0, 0,
		0, 0, 1, 0, 0, 0, 0,
		0, 0, 0, 1, 0, 0, 0,
	})

	q := identityScaled(kalmanStateDim, 1)
	q.Set(0, 0, 0.1)
	q.Set(1, 1, 0.1)
	q.Set(2, 2, 0.1)
	q.Set(3, 3, 0.1)
	q.Set(4, 4, 5.0)
	q.Set(5, 5, 5.0)
	q.Set(6, 6, 0.5)

	rn := identityScaled(kalmanMeasurementDim, 1)
	rn.Set(0, 0, 5.0)
	rn.Set(1, 1, 5.0)
	rn.Set(2, 2, 15.0)
	rn.Set(3, 3, 15.0)

	p := identityScaled(kalmanStateDim, 1)
	for i := 0; i < 4; i++ {
		p.Set(i, i, 20.0)
	}
	p.Set(4, 4, 100.0)
	p.Set(5, 5, 100.0)
	p.Set(6, 6, 50.0)

	x := mat.NewVecDense(kalmanStateDim, []float64{
		c.X, c.Y, float64(r.Width()), float64(r.Height()), 0, 0, 0,
	})

	return &boxKalmanFilter{x: x, p: p, f: f, h: h, q: q, r: rn}
}

// predict advances the state one frame: x = Fx, P = FPFᵀ + Q.
func (k *boxKalmanFilter) predict() {
	var xp mat.VecDense
	xp.MulVec(k.f, k.x)
	k.x.CopyVec(&xp)

	var fp, fpf mat.Dense
	fp.Mul(k.f, k.p)
	fpf.Mul(&fp, k.f.T())
	fpf.Add(&fpf, k.q)
	k.p.Copy(&fpf)
}

// correct applies a measurement z = [cx, cy, w, h]. On a singular
// innovation covariance the state is left at its prediction and
// errSingularInnovation is returned.
func (k *boxKalmanFilter) correct(z []float64) error {
	zv := mat.NewVecDense(kalmanMeasurementDim, z)

	// Innovation y = z - Hx.
	var hx, y mat.VecDense
	hx.MulVec(k.h, k.x)
	y.SubVec(zv, &hx)

	s := k.innovationCovariance()
	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		return errSingularInnovation
	}

	// Gain K = PHᵀS⁻¹.
	var pht, gain mat.Dense
	pht.Mul(k.p, k.h.T())
	gain.Mul(&pht, &sInv)

	// State x = x + Ky.
	var ky mat.VecDense
	ky.MulVec(&gain, &y)
	k.x.AddVec(k.x, &ky)

	// Covariance P = (I - KH)P.
	var kh, ikh, pNew mat.Dense
	kh.Mul(&gain, k.h)
	ikh.Sub(identityScaled(kalmanStateDim, 1), &kh)
	pNew.Mul(&ikh, k.p)
	k.p.Copy(&pNew)

	return nil
}

// innovationCovariance returns S = HPHᵀ + R.
func (k *boxKalmanFilter) innovationCovariance() *mat.Dense {
	var hp, s mat.Dense
	hp.Mul(k.h, k.p)
	s.Mul(&hp, k.h.T())
	s.Add(&s, k.r)
	return &s
}

// predictedMeasurement returns Hx as [cx, cy, w, h].
func (k *boxKalmanFilter) predictedMeasurement() [kalmanMeasurementDim]float64 {
	var hx mat.VecDense
	hx.MulVec(k.h, k.x)
	var out [kalmanMeasurementDim]float64
	for i := range out {
		out[i] = hx.AtVec(i)
	}
	return out
}

// stateRect converts the current state into a bounding box with the
// size clamped to a sane pixel range.
func (k *boxKalmanFilter) stateRect() Rect {
	cx, cy := k.x.AtVec(0), k.x.AtVec(1)
	w := clampFloat(k.x.AtVec(2), minBoxSize, maxBoxSize)
	h := clampFloat(k.x.AtVec(3), minBoxSize, maxBoxSize)
	return Rect{
		X1: int(math.Round(cx - w/2)),
		Y1: int(math.Round(cy - h/2)),
		X2: int(math.Round(cx + w/2)),
		Y2: int(math.Round(cy + h/2)),
	}
}

// sizeSane reports whether the unclamped state size is inside the
// plausible pixel range; the hybrid blend only trusts sane geometry.
func (k *boxKalmanFilter) sizeSane() bool {
	w, h := k.x.AtVec(2), k.x.AtVec(3)
	return w > minBoxSize && w < maxBoxSize && h > minBoxSize && h < maxBoxSize
}

// velocity returns the estimated centre velocity in pixels per frame.
func (k *boxKalmanFilter) velocity() (vx, vy float64) {
	return k.x.AtVec(4), k.x.AtVec(5)
}

// measurementFromRect converts a detection box to [cx, cy, w, h].
func measurementFromRect(r Rect) []float64 {
	c := r.Center()
	return []float64{c.X, c.Y, float64(r.Width()), float64(r.Height())}
}

func identityScaled(n int, v float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, v)
	}
	return m
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
