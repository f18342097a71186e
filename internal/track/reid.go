package track

import (
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Phase-2 re-identification. Operates on tracks that went unmatched in
// a prior frame against detections left over from Phase 1. Every
// candidate pair runs through a rejection cascade before any score is
// trusted; the cascade is deliberately biased toward losing an ID over
// committing an impossible jump, because a wrong re-identification
// poisons two identities at once.

// Heuristic discipline eligibility and gates.
const (
	reidMinHits = 4  // tracks with fewer confirmed matches are noise
	reidMaxLost = 10 // beyond this the prediction is too stale to trust

	staticJumpCap = 30.0 // parked objects may not move further, pixels

	establishedHits = 5 // maturity step for stricter gates
	veteranHits     = 8 // maturity step for the strictest gates

	appearanceRejectFloor = -0.3 // correlation below this rejects, established tracks
	compositeScoreFloor   = 0.35

	neutralAppearanceScore = 0.3 // penalised default when no histogram exists
	neutralDirectionScore  = 0.5
	neutralSizeScore       = 0.5
)

// Composite score weights; distance dominates because it is the most
// reliable single cue.
const (
	weightDistance   = 0.45
	weightAppearance = 0.25
	weightDirection  = 0.20
	weightSize       = 0.10
)

// Direction gate bounds by maturity: cos(75°), cos(85°), cos(100°).
const (
	headingCosVeteran     = 0.259
	headingCosEstablished = 0.087
	headingCosNew         = -0.174
)

// reidCandidate is one scored (lost track, detection) pair awaiting
// global ranking.
type reidCandidate struct {
	trackID  int64
	detIndex int
	score    float64
	hits     int
	lost     int
	static   bool
}

// dynamicRadius computes the Phase-2 distance gate: tight for static
// objects, small for a one-frame loss, growing slowly and capped as
// the loss lengthens.
func dynamicRadius(base float64, static bool, lost int) float64 {
	switch {
	case static:
		return math.Min(base*0.3, 40.0)
	case lost == 1:
		return base * 0.8
	case lost == 2:
		return base
	default:
		growth := math.Min(1.4, 1.0+float64(lost)*0.08)
		return base * growth
	}
}

// matchScore runs the full rejection cascade for a candidate pair and
// returns the composite score. A zero score with a non-empty reason
// means the pair was rejected; the breakdown is reported either way
// for the collector.
func (t *Tracker) matchScore(frame image.Image, tr *Track, det Detection) (float64, MatchScore, RejectReason) {
	detCenter := det.Rect.Center()
	static := tr.IsStatic()
	ahead := framesAhead(tr.Lost, t.cfg.SkipFrames)
	predicted := linearMotion{skipFrames: t.cfg.SkipFrames}.predictCentroid(tr, ahead)

	var breakdown MatchScore

	// Gate 1: distance against the dynamic radius.
	dist := detCenter.Dist(predicted)
	radius := dynamicRadius(t.cfg.SearchRadius, static, tr.Lost)
	if dist > radius {
		return 0, breakdown, RejectRadius
	}

	// Gate 2: velocity coherence. The speed implied by the jump from
	// the last known position must stay within a maturity-scaled
	// multiple of the track's previous speed, and must not imply
	// slamming the brakes.
	if len(tr.Centroids) >= 2 {
		prevSpeed := tr.recentSpeed()
		last := tr.Centroids[len(tr.Centroids)-1]
		impliedSpeed := detCenter.Dist(last) / float64(ahead)

		if prevSpeed > 1.0 {
			maxChange := 3.0
			switch {
			case tr.Hits >= veteranHits:
				maxChange = 2.0
			case tr.Hits >= establishedHits:
				maxChange = 2.5
			}
			if impliedSpeed > prevSpeed*maxChange {
				return 0, breakdown, RejectVelocity
			}
			if impliedSpeed < prevSpeed*0.3 && prevSpeed > 5.0 {
				return 0, breakdown, RejectDeceleration
			}
		}

		// Gate 3: parked objects cannot jump.
		if static && dist > staticJumpCap {
			return 0, breakdown, RejectStatic
		}
	}

	breakdown.Distance = 1.0 - dist/radius

	// Gate 4: appearance. Missing histograms score neutral rather than
	// failing; a strongly anti-correlated histogram rejects outright
	// for established tracks.
	breakdown.Appearance = neutralAppearanceScore
	if detSig := ComputeSignature(frame, det.Rect); detSig != nil && tr.Appearance != nil {
		corr := Correlation(tr.Appearance, detSig)
		breakdown.Appearance = math.Max(0, (corr+1)/2)
		if tr.Hits >= establishedHits && corr < appearanceRejectFloor {
			return 0, breakdown, RejectAppearance
		}
	}

	// Gate 5: direction. Angular deviation from the recent heading is
	// bounded by maturity, and a laterally offset detection is
	// rejected even when the angle alone would pass.
	breakdown.Direction = neutralDirectionScore
	if n := len(tr.Centroids); n >= 3 {
		recent := tr.Centroids[n-min(4, n):]
		prevVX := recent[len(recent)-1].X - recent[0].X
		prevVY := recent[len(recent)-1].Y - recent[0].Y
		prevSpeed := math.Hypot(prevVX, prevVY)

		last := tr.Centroids[n-1]
		curVX := detCenter.X - last.X
		curVY := detCenter.Y - last.Y
		curSpeed := math.Hypot(curVX, curVY)

		if prevSpeed > 2.0 && curSpeed > 2.0 {
			cosAngle := (prevVX*curVX + prevVY*curVY) / (prevSpeed * curSpeed)
			minCos := headingCosNew
			switch {
			case tr.Hits >= veteranHits:
				minCos = headingCosVeteran
			case tr.Hits >= establishedHits:
				minCos = headingCosEstablished
			}
			if cosAngle < minCos {
				return 0, breakdown, RejectDirection
			}
			breakdown.Direction = math.Max(0, (cosAngle+1)/2)
		}

		if prevSpeed > 5.0 {
			ux := prevVX / prevSpeed
			uy := prevVY / prevSpeed
			perp := math.Abs(-uy*curVX + ux*curVY)
			if perp > t.cfg.SearchRadius*0.6 {
				return 0, breakdown, RejectPerpendicular
			}
		}
	}

	// Gate 6: size. Width and height ratios bounded by maturity.
	breakdown.Size = neutralSizeScore
	tw, th := tr.Rect.Width(), tr.Rect.Height()
	dw, dh := det.Rect.Width(), det.Rect.Height()
	if tw > 0 && th > 0 && dw > 0 && dh > 0 {
		widthRatio := ratioAbove1(tw, dw)
		heightRatio := ratioAbove1(th, dh)

		maxRatio := 1.8
		if tr.Hits >= establishedHits {
			maxRatio = 1.6
		}
		if widthRatio > maxRatio || heightRatio > maxRatio {
			return 0, breakdown, RejectSize
		}
		breakdown.Size = 1.0 - (math.Abs(widthRatio-1)+math.Abs(heightRatio-1))/4.0
	}

	breakdown.Composite = weightDistance*breakdown.Distance +
		weightAppearance*breakdown.Appearance +
		weightDirection*breakdown.Direction +
		weightSize*breakdown.Size

	if breakdown.Composite < compositeScoreFloor {
		return 0, breakdown, RejectScoreFloor
	}
	return breakdown.Composite, breakdown, RejectNone
}

// acceptanceThreshold scales the configured minimum score per pair:
// forgiving for a just-lost or parked track, stricter as the loss
// grows so a long-lost ID is abandoned rather than teleported.
func acceptanceThreshold(base float64, static bool, lost int) float64 {
	switch {
	case static:
		return base * 0.85
	case lost == 1:
		return base * 0.90
	case lost == 2:
		return base * 0.95
	default:
		return base * 1.05
	}
}

// reidentifyHeuristic matches lost tracks against leftover detections
// using the composite score. Candidates are globally ranked (score,
// then maturity, then shortest loss, then non-staticness) and greedily
// committed without double-booking.
func (t *Tracker) reidentifyHeuristic(frame image.Image, dets []Detection, usedDets map[int]bool, assigned map[int64]int) {
	var candidates []reidCandidate

	for id, tr := range t.tracks {
		if tr.Lost == 0 || tr.Hits < reidMinHits || tr.Lost > reidMaxLost {
			continue
		}
		static := tr.IsStatic()

		for di, det := range dets {
			if usedDets[di] {
				continue
			}
			score, breakdown, reason := t.matchScore(frame, tr, det)
			if collectorEnabled(t.collector) {
				t.collector.RecordCandidate(id, di, breakdown, reason)
			}
			if reason != RejectNone {
				continue
			}
			if score < acceptanceThreshold(t.cfg.MinMatchScore, static, tr.Lost) {
				continue
			}
			candidates = append(candidates, reidCandidate{
				trackID:  id,
				detIndex: di,
				score:    score,
				hits:     tr.Hits,
				lost:     tr.Lost,
				static:   static,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		am, bm := a.hits >= veteranHits, b.hits >= veteranHits
		if am != bm {
			return am
		}
		if a.lost != b.lost {
			return a.lost < b.lost
		}
		if a.static != b.static {
			return !a.static
		}
		// Deterministic tie-break.
		if a.trackID != b.trackID {
			return a.trackID < b.trackID
		}
		return a.detIndex < b.detIndex
	})

	for _, c := range candidates {
		if _, taken := assigned[c.trackID]; taken || usedDets[c.detIndex] {
			continue
		}
		assigned[c.trackID] = c.detIndex
		usedDets[c.detIndex] = true
		t.metrics.Reidentified++
		if collectorEnabled(t.collector) {
			t.collector.RecordReID(c.trackID, c.detIndex, c.score, c.lost)
		}
	}
}

// Statistical gating pre-filters for the Kalman discipline.
const (
	mahalanobisMinHits = 2

	// Euclidean pre-gate: grows with the loss duration, hard-capped.
	gateBaseRadius   = 150.0
	gateRadiusGrowth = 15.0
	gateRadiusCap    = 400.0

	gateMaxSizeRatio = 3.0

	// Singular innovation covariance falls back to a normalised
	// Euclidean distance instead of failing the pair.
	singularFallbackScale = 50.0

	// Long-lost tracks get a relaxed threshold to counteract growing
	// prediction uncertainty.
	relaxedThresholdLost  = 15
	relaxedThresholdScale = 1.5
)

// gatingDistance computes the Mahalanobis distance of a detection
// against a track's predicted measurement, with physical plausibility
// pre-gates. Returns +Inf for pairs that must not match.
func gatingDistance(tr *Track, det Detection) float64 {
	if tr.filter == nil {
		return math.Inf(1)
	}

	z := measurementFromRect(det.Rect)
	pred := tr.filter.predictedMeasurement()

	euclid := math.Hypot(z[0]-pred[0], z[1]-pred[1])
	maxDist := math.Min(gateBaseRadius+float64(tr.Lost)*gateRadiusGrowth, gateRadiusCap)
	if euclid > maxDist {
		return math.Inf(1)
	}

	if sizeRatio(z[2], pred[2]) > gateMaxSizeRatio || sizeRatio(z[3], pred[3]) > gateMaxSizeRatio {
		return math.Inf(1)
	}

	s := tr.filter.innovationCovariance()
	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		return euclid / singularFallbackScale
	}

	y := mat.NewVecDense(kalmanMeasurementDim, []float64{
		z[0] - pred[0], z[1] - pred[1], z[2] - pred[2], z[3] - pred[3],
	})
	var siy mat.VecDense
	siy.MulVec(&sInv, y)
	d2 := mat.Dot(y, &siy)
	if d2 < 0 {
		d2 = 0
	}
	return math.Sqrt(d2)
}

// reidentifyMahalanobis matches lost Kalman tracks against leftover
// detections via optimal assignment on gating distances, accepting
// only pairs under the adaptive threshold.
func (t *Tracker) reidentifyMahalanobis(dets []Detection, usedDets map[int]bool, assigned map[int64]int) {
	var lostIDs []int64
	for id, tr := range t.tracks {
		if tr.Lost > 0 && tr.Hits >= mahalanobisMinHits {
			lostIDs = append(lostIDs, id)
		}
	}
	var freeDets []int
	for di := range dets {
		if !usedDets[di] {
			freeDets = append(freeDets, di)
		}
	}
	if len(lostIDs) == 0 || len(freeDets) == 0 {
		return
	}
	sort.Slice(lostIDs, func(i, j int) bool { return lostIDs[i] < lostIDs[j] })

	cost := make([][]float64, len(lostIDs))
	feasible := false
	for i, id := range lostIDs {
		tr := t.tracks[id]
		threshold := t.adaptiveThreshold(tr)
		cost[i] = make([]float64, len(freeDets))
		for j, di := range freeDets {
			d := gatingDistance(tr, dets[di])
			accepted := d < threshold
			if collectorEnabled(t.collector) && !math.IsInf(d, 1) {
				t.collector.RecordGating(id, di, d, threshold, accepted)
			}
			if accepted {
				cost[i][j] = d
				feasible = true
			} else {
				cost[i][j] = forbiddenCost
			}
		}
	}
	if !feasible {
		return
	}

	for i, j := range assignMinCost(cost) {
		if j < 0 {
			continue
		}
		id := lostIDs[i]
		di := freeDets[j]
		if cost[i][j] >= t.adaptiveThreshold(t.tracks[id]) {
			continue
		}
		assigned[id] = di
		usedDets[di] = true
		t.metrics.Reidentified++
		if collectorEnabled(t.collector) {
			t.collector.RecordReID(id, di, cost[i][j], t.tracks[id].Lost)
		}
	}
}

// adaptiveThreshold relaxes the gating distance for long-lost tracks.
func (t *Tracker) adaptiveThreshold(tr *Track) float64 {
	if tr.Lost > relaxedThresholdLost {
		return t.cfg.MahalanobisThreshold * relaxedThresholdScale
	}
	return t.cfg.MahalanobisThreshold
}

func sizeRatio(a, b float64) float64 {
	lo := math.Max(1, math.Min(a, b))
	return math.Max(a, b) / lo
}

func ratioAbove1(a, b int) float64 {
	return float64(max(a, b)) / float64(min(a, b))
}
