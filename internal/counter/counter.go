// Package counter tallies vehicles crossing a virtual count line.
// It consumes per-frame track positions from the tracking engine and
// counts each identity at most once when its centroid moves from one
// side of the line to the other between consecutive observations.
package counter

import (
	"fmt"

	"github.com/kerb-data/trafficlens/internal/track"
)

// Axis selects the orientation of the count line.
type Axis string

const (
	// AxisHorizontal places the line across the frame at a fraction of
	// its height; crossings are classified up/down.
	AxisHorizontal Axis = "horizontal"
	// AxisVertical places the line at a fraction of the frame width;
	// crossings are classified left/right (reported as up/down with
	// Forward meaning left-to-right).
	AxisVertical Axis = "vertical"
)

// Counts are the accumulated crossing tallies.
type Counts struct {
	// Forward counts top-to-bottom crossings on a horizontal line, or
	// left-to-right on a vertical one.
	Forward int
	// Reverse counts the opposite direction.
	Reverse int
}

// Total returns the combined crossing count.
func (c Counts) Total() int { return c.Forward + c.Reverse }

type trackedState struct {
	lastPos float64
	counted bool
}

// LineCounter detects track centroids crossing a fixed line. A track
// contributes to the tallies at most once; re-identification keeps the
// identity stable through occlusion so a vehicle briefly hidden near
// the line is not double counted.
//
// Not safe for concurrent use; drive it from the same loop as the
// tracker.
type LineCounter struct {
	axis     Axis
	fraction float64

	linePos float64
	ready   bool

	seen   map[int64]*trackedState
	counts Counts
}

// NewLineCounter builds a counter for a line placed at the given
// fraction (0,1) of the frame dimension selected by axis. The line
// position is resolved on the first SetFrameSize call.
func NewLineCounter(axis Axis, fraction float64) (*LineCounter, error) {
	if axis != AxisHorizontal && axis != AxisVertical {
		return nil, fmt.Errorf("line counter: unknown axis %q", axis)
	}
	if fraction <= 0 || fraction >= 1 {
		return nil, fmt.Errorf("line counter: fraction %v out of range (0,1)", fraction)
	}
	return &LineCounter{
		axis:     axis,
		fraction: fraction,
		seen:     make(map[int64]*trackedState),
	}, nil
}

// SetFrameSize resolves the line position from the frame dimensions.
// Must be called before Observe; calling again recomputes the line
// (useful when the input resolution changes mid-stream).
func (c *LineCounter) SetFrameSize(width, height int) {
	switch c.axis {
	case AxisVertical:
		c.linePos = float64(width) * c.fraction
	default:
		c.linePos = float64(height) * c.fraction
	}
	c.ready = true
}

// LinePosition returns the resolved pixel coordinate of the line, or
// false if SetFrameSize has not been called.
func (c *LineCounter) LinePosition() (float64, bool) {
	return c.linePos, c.ready
}

// Observe feeds one frame's track snapshots. Only reliable tracks
// participate; tentative identities near the line would inflate the
// tallies when they are discarded and re-created.
func (c *LineCounter) Observe(snapshots map[int64]track.Snapshot) {
	if !c.ready {
		return
	}
	for id, snap := range snapshots {
		if !snap.Reliable {
			continue
		}
		c.observeOne(id, c.position(snap))
	}
}

func (c *LineCounter) position(snap track.Snapshot) float64 {
	center := snap.Rect.Center()
	if c.axis == AxisVertical {
		return center.X
	}
	return center.Y
}

func (c *LineCounter) observeOne(id int64, pos float64) {
	state, ok := c.seen[id]
	if !ok {
		c.seen[id] = &trackedState{lastPos: pos}
		return
	}

	if !state.counted {
		switch {
		case state.lastPos < c.linePos && pos > c.linePos:
			c.counts.Forward++
			state.counted = true
		case state.lastPos > c.linePos && pos < c.linePos:
			c.counts.Reverse++
			state.counted = true
		}
	}
	state.lastPos = pos
}

// Forget drops per-track state for identities evicted by the tracker.
// Without this the state map grows unbounded over long runs.
func (c *LineCounter) Forget(finished []track.Snapshot) {
	for _, snap := range finished {
		delete(c.seen, snap.ID)
	}
}

// Counts returns the accumulated tallies.
func (c *LineCounter) Counts() Counts {
	return c.counts
}
