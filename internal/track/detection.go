package track

// Detection is a single per-frame detector output: an axis-aligned box
// and a confidence in [0, 1]. Detections carry no identity; identity is
// assigned by the Tracker.
type Detection struct {
	Rect       Rect
	Confidence float64
}
