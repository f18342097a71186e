package track

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// solidFrame builds a test frame filled with base and a solid patch of
// c at r.
func solidFrame(w, h int, base, c color.Color, r Rect) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(base), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(r.X1, r.Y1, r.X2, r.Y2), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func TestComputeSignature(t *testing.T) {
	red := color.RGBA{R: 220, G: 30, B: 30, A: 255}
	frame := solidFrame(200, 200, color.Black, red, Rect{X1: 50, Y1: 50, X2: 100, Y2: 100})

	t.Run("normalised", func(t *testing.T) {
		sig := ComputeSignature(frame, Rect{X1: 50, Y1: 50, X2: 100, Y2: 100})
		require.NotNil(t, sig)
		require.Len(t, sig, 3*histogramBins)

		sum := 0.0
		for _, v := range sig {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	})

	t.Run("nil frame", func(t *testing.T) {
		assert.Nil(t, ComputeSignature(nil, Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}))
	})

	t.Run("region outside frame", func(t *testing.T) {
		assert.Nil(t, ComputeSignature(frame, Rect{X1: 500, Y1: 500, X2: 600, Y2: 600}))
	})

	t.Run("degenerate region", func(t *testing.T) {
		assert.Nil(t, ComputeSignature(frame, Rect{X1: 10, Y1: 10, X2: 10, Y2: 10}))
	})

	t.Run("region clamped to bounds", func(t *testing.T) {
		sig := ComputeSignature(frame, Rect{X1: -50, Y1: -50, X2: 30, Y2: 30})
		assert.NotNil(t, sig)
	})
}

func TestCorrelation(t *testing.T) {
	red := color.RGBA{R: 220, G: 30, B: 30, A: 255}
	white := color.RGBA{R: 240, G: 240, B: 240, A: 255}
	frame := solidFrame(300, 100, color.Black, red, Rect{X1: 0, Y1: 0, X2: 100, Y2: 100})
	frame = solidFrame2(frame, red, Rect{X1: 100, Y1: 0, X2: 200, Y2: 100})
	frame = solidFrame2(frame, white, Rect{X1: 200, Y1: 0, X2: 300, Y2: 100})

	redSigA := ComputeSignature(frame, Rect{X1: 0, Y1: 0, X2: 100, Y2: 100})
	redSigB := ComputeSignature(frame, Rect{X1: 100, Y1: 0, X2: 200, Y2: 100})
	whiteSig := ComputeSignature(frame, Rect{X1: 200, Y1: 0, X2: 300, Y2: 100})

	sameColour := Correlation(redSigA, redSigB)
	diffColour := Correlation(redSigA, whiteSig)

	assert.Greater(t, sameColour, 0.9, "same colour patches should correlate strongly")
	assert.Less(t, diffColour, sameColour, "different colours should correlate less")

	t.Run("neutral on missing or mismatched", func(t *testing.T) {
		assert.Equal(t, 0.0, Correlation(nil, redSigA))
		assert.Equal(t, 0.0, Correlation(redSigA, nil))
		assert.Equal(t, 0.0, Correlation(redSigA, redSigA[:8]))
	})
}

// solidFrame2 paints an extra patch onto an existing frame.
func solidFrame2(base image.Image, c color.Color, r Rect) image.Image {
	img := image.NewRGBA(base.Bounds())
	draw.Draw(img, img.Bounds(), base, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(r.X1, r.Y1, r.X2, r.Y2), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func TestSignatureBlend(t *testing.T) {
	a := make(Signature, 3*histogramBins)
	b := make(Signature, 3*histogramBins)
	a[0] = 1
	b[1] = 1

	out := a.Blend(b)
	require.Len(t, out, 3*histogramBins)

	// 0.8 of the old signature, 0.2 of the new, renormalised.
	assert.InDelta(t, appearanceSmoothing, out[0], 1e-9)
	assert.InDelta(t, 1-appearanceSmoothing, out[1], 1e-9)

	// Receiver untouched.
	assert.Equal(t, 1.0, a[0])
	assert.Equal(t, 0.0, a[1])

	t.Run("nil receiver adopts incoming", func(t *testing.T) {
		var empty Signature
		out := empty.Blend(b)
		assert.Equal(t, b, out)
		// Fresh buffer, not an alias.
		out[1] = 0.5
		assert.Equal(t, 1.0, b[1])
	})

	t.Run("empty incoming keeps receiver", func(t *testing.T) {
		out := a.Blend(nil)
		assert.Equal(t, a, out)
	})
}

func TestRGBToHSV(t *testing.T) {
	h, s, v := rgbToHSV(1, 0, 0)
	assert.InDelta(t, 0.0, h, 1e-9)
	assert.InDelta(t, 1.0, s, 1e-9)
	assert.InDelta(t, 1.0, v, 1e-9)

	h, _, _ = rgbToHSV(0, 1, 0)
	assert.InDelta(t, 120.0, h, 1e-9)

	h, s, v = rgbToHSV(0.5, 0.5, 0.5)
	assert.InDelta(t, 0.0, h, 1e-9)
	assert.InDelta(t, 0.0, s, 1e-9)
	assert.InDelta(t, 0.5, v, 1e-9)
}
