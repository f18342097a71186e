package track

import (
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Appearance signatures are normalised HSV colour histograms, 16 bins
// per channel concatenated, used as a soft cue during re-identification.
// They are deliberately coarse: the signature only has to tell a red
// hatchback from a white van, not survive viewpoint changes.

const histogramBins = 16

// Signature is a normalised colour histogram (sum 1 unless empty).
// Each track owns its buffer exclusively; Blend allocates a new one.
type Signature []float64

// appearanceSmoothing is the weight kept from the previous signature
// when blending in a new observation.
const appearanceSmoothing = 0.8

// ComputeSignature extracts the HSV histogram of the frame region
// covered by r. The region is clamped to the frame bounds first;
// degenerate regions and a nil frame yield a nil signature, which
// scores as neutral similarity downstream rather than failing a match.
func ComputeSignature(frame image.Image, r Rect) Signature {
	if frame == nil {
		return nil
	}
	b := frame.Bounds()
	x1 := clampInt(r.X1, b.Min.X, b.Max.X-1)
	x2 := clampInt(r.X2, b.Min.X, b.Max.X-1)
	y1 := clampInt(r.Y1, b.Min.Y, b.Max.Y-1)
	y2 := clampInt(r.Y2, b.Min.Y, b.Max.Y-1)
	if x2 <= x1 || y2 <= y1 {
		return nil
	}

	sig := make(Signature, 3*histogramBins)
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			cr, cg, cb, _ := frame.At(x, y).RGBA()
			h, s, v := rgbToHSV(float64(cr)/65535, float64(cg)/65535, float64(cb)/65535)
			sig[histBin(h/360)]++
			sig[histogramBins+histBin(s)]++
			sig[2*histogramBins+histBin(v)]++
		}
	}

	if sum := floats.Sum(sig); sum > 0 {
		floats.Scale(1/sum, sig)
	}
	return sig
}

// Blend folds a new observation into the signature with exponential
// smoothing and renormalises. The result is a fresh buffer; the
// receiver is never mutated. A nil receiver adopts the incoming
// signature outright.
func (s Signature) Blend(incoming Signature) Signature {
	if len(incoming) == 0 {
		return s
	}
	if len(s) == 0 {
		out := make(Signature, len(incoming))
		copy(out, incoming)
		return out
	}
	out := make(Signature, len(s))
	for i := range s {
		out[i] = appearanceSmoothing*s[i] + (1-appearanceSmoothing)*incoming[i]
	}
	if sum := floats.Sum(out); sum > 0 {
		floats.Scale(1/sum, out)
	}
	return out
}

// Correlation returns the Pearson correlation between two signatures
// in [-1, 1]. Returns 0 (neutral) when either signature is missing,
// mismatched, or constant.
func Correlation(a, b Signature) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	c := stat.Correlation(a, b, nil)
	if math.IsNaN(c) {
		return 0
	}
	return c
}

// histBin maps a normalised value in [0, 1] onto a histogram bin.
func histBin(v float64) int {
	i := int(v * histogramBins)
	if i < 0 {
		i = 0
	}
	if i >= histogramBins {
		i = histogramBins - 1
	}
	return i
}

// rgbToHSV converts r, g, b in [0, 1] to h in [0, 360) and s, v in [0, 1].
func rgbToHSV(r, g, b float64) (h, s, v float64) {
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	v = maxC
	d := maxC - minC
	if maxC > 0 {
		s = d / maxC
	}
	if d == 0 {
		return 0, s, v
	}
	switch maxC {
	case r:
		h = 60 * math.Mod((g-b)/d, 6)
	case g:
		h = 60 * ((b-r)/d + 2)
	default:
		h = 60 * ((r-g)/d + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
