package track

// Structured tracing of association decisions. Every accept and reject
// carries the pair identity and the numbers that drove the decision,
// so tests and tuning tools can assert on outcomes without parsing
// log text. Collection is optional; a nil or disabled collector costs
// one interface call per candidate.

// RejectReason classifies why a heuristic re-identification candidate
// was discarded before or after scoring. Empty means the pair
// survived. Statistical candidates report rejection through the
// accepted flag on RecordGating instead.
type RejectReason string

const (
	RejectNone          RejectReason = ""
	RejectRadius        RejectReason = "radius"        // beyond the dynamic search radius
	RejectVelocity      RejectReason = "velocity"      // implied speed change implausible
	RejectDeceleration  RejectReason = "deceleration"  // implied stop too abrupt
	RejectStatic        RejectReason = "static"        // parked object cannot jump
	RejectAppearance    RejectReason = "appearance"    // histogram correlation below floor
	RejectDirection     RejectReason = "direction"     // heading deviation beyond bound
	RejectPerpendicular RejectReason = "perpendicular" // laterally offset from trajectory
	RejectSize          RejectReason = "size"          // box dimensions too different
	RejectScoreFloor    RejectReason = "score_floor"   // composite below absolute minimum
)

// MatchScore breaks a heuristic re-identification score into its
// weighted terms. Composite is the final weighted sum.
type MatchScore struct {
	Distance   float64
	Appearance float64
	Direction  float64
	Size       float64
	Composite  float64
}

// LifecycleEvent marks a track table mutation.
type LifecycleEvent string

const (
	TrackCreated LifecycleEvent = "created"
	TrackEvicted LifecycleEvent = "evicted"
)

// DebugCollector receives tracking internals for visualisation and
// test assertions. Implementations must be cheap when disabled; the
// engine consults IsEnabled before computing anything extra.
type DebugCollector interface {
	IsEnabled() bool

	// RecordOverlap reports a Phase-1 geometric candidate: the IoU of
	// a visible track against a detection and whether it was committed.
	RecordOverlap(trackID int64, detIndex int, iou float64, accepted bool)

	// RecordCandidate reports a Phase-2 heuristic candidate with its
	// score breakdown and rejection reason, if any.
	RecordCandidate(trackID int64, detIndex int, score MatchScore, reason RejectReason)

	// RecordGating reports a Phase-2 statistical candidate: the
	// Mahalanobis distance against the adaptive threshold in force.
	RecordGating(trackID int64, detIndex int, distance, threshold float64, accepted bool)

	// RecordReID reports a committed re-identification.
	RecordReID(trackID int64, detIndex int, score float64, lost int)

	// RecordLifecycle reports a track creation or eviction.
	RecordLifecycle(trackID int64, event LifecycleEvent)
}

// collectorEnabled reports whether a collector is present and active.
func collectorEnabled(c DebugCollector) bool {
	return c != nil && c.IsEnabled()
}
