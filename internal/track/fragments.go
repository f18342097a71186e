package track

// Fragment merging. Detectors occasionally split one vehicle into two
// or more adjacent partial boxes (partial occlusion, reflective
// surfaces). Merging those before association avoids spawning spurious
// duplicate tracks. The gates are deliberately strict so that two
// genuinely distinct nearby vehicles are never fused: the fragments
// must overlap, have comparable areas, and sit closer together than
// their own dimensions allow for separate objects.

const (
	// fragmentMinIoU is the minimum overlap before two detections are
	// even considered fragments of the same object.
	fragmentMinIoU = 0.05

	// fragmentMinAreaRatio rejects pairing a full vehicle with a sliver.
	fragmentMinAreaRatio = 0.3

	// fragmentMaxCenterDist scales the smallest box dimension into the
	// maximum allowed centroid distance.
	fragmentMaxCenterDist = 0.8
)

// MergeFragments fuses detections that likely represent one physically
// fragmented object into their union box, keeping the maximum
// confidence of the group. All detections satisfying the gates against
// the anchor detection are absorbed transitively into its group.
// A non-positive enable threshold disables merging entirely.
// The second return value counts the groups that were actually fused.
func MergeFragments(dets []Detection, fragmentIoU float64) ([]Detection, int) {
	if len(dets) <= 1 || fragmentIoU <= 0 {
		return dets, 0
	}

	merged := make([]Detection, 0, len(dets))
	used := make([]bool, len(dets))
	fused := 0

	for i, anchor := range dets {
		if used[i] {
			continue
		}
		group := anchor
		count := 1

		for j := i + 1; j < len(dets); j++ {
			if used[j] {
				continue
			}
			cand := dets[j]
			if IoU(anchor.Rect, cand.Rect) < fragmentMinIoU {
				continue
			}

			areaA, areaB := anchor.Rect.Area(), cand.Rect.Area()
			if areaA == 0 || areaB == 0 {
				continue
			}
			ratio := float64(min(areaA, areaB)) / float64(max(areaA, areaB))
			if ratio <= fragmentMinAreaRatio {
				continue
			}

			minDim := min(
				anchor.Rect.Width(), anchor.Rect.Height(),
				cand.Rect.Width(), cand.Rect.Height(),
			)
			dist := anchor.Rect.Center().Dist(cand.Rect.Center())
			if dist >= float64(minDim)*fragmentMaxCenterDist {
				continue
			}

			group.Rect = Union(group.Rect, cand.Rect)
			if cand.Confidence > group.Confidence {
				group.Confidence = cand.Confidence
			}
			used[j] = true
			count++
		}

		used[i] = true
		if count > 1 {
			fused++
		}
		merged = append(merged, group)
	}

	return merged, fused
}
