// Command trafficlens replays a detection stream through the tracking
// engine and reports stable track identities, direction counts, and
// run metrics. Input is JSON Lines, one frame per line:
//
//	{"frame": 17, "detections": [{"x1": 100, "y1": 80, "x2": 180, "y2": 140, "confidence": 0.92}]}
//
// Frames must appear in ascending order; frames absent from the input
// are treated as empty (no detections). With -db the run, its finished
// tracks, and the count-line tallies are persisted to SQLite.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kerb-data/trafficlens/internal/config"
	"github.com/kerb-data/trafficlens/internal/counter"
	"github.com/kerb-data/trafficlens/internal/store"
	"github.com/kerb-data/trafficlens/internal/track"
	"github.com/kerb-data/trafficlens/internal/track/debug"
	"github.com/kerb-data/trafficlens/internal/version"
)

type frameLine struct {
	Frame      int64           `json:"frame"`
	Detections []detectionLine `json:"detections"`
}

type detectionLine struct {
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Confidence float64 `json:"confidence"`
}

func main() {
	var (
		inputPath  = flag.String("input", "", "detection stream (JSON Lines), '-' for stdin")
		configPath = flag.String("config", "", "tuning config JSON (optional, defaults apply)")
		dbPath     = flag.String("db", "", "SQLite database to persist the run (optional)")
		width      = flag.Int("width", 1920, "frame width in pixels (for the count line)")
		height     = flag.Int("height", 1080, "frame height in pixels (for the count line)")
		motion     = flag.String("motion", "", "override motion model: linear or kalman")
		debugFlag  = flag.Bool("debug", false, "log association internals per frame")
		verbose    = flag.Bool("verbose", false, "log per-frame track tables")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return
	}

	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if *motion != "" {
		cfg.Motion = motion
		if err := cfg.Validate(); err != nil {
			log.Fatalf("invalid -motion: %v", err)
		}
	}
	if *debugFlag {
		enabled := true
		cfg.Debug = &enabled
	}

	if err := run(cfg, *inputPath, *dbPath, *width, *height, *verbose); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.TuningConfig, inputPath, dbPath string, width, height int, verbose bool) error {
	tracker, err := track.New(cfg.TrackerConfig())
	if err != nil {
		return err
	}

	lines, err := counter.NewLineCounter(cfg.GetCountLineAxis(), cfg.GetCountLineFraction())
	if err != nil {
		return err
	}
	lines.SetFrameSize(width, height)

	var collector *debug.Collector
	if cfg.GetDebug() {
		collector = debug.NewCollector()
		collector.SetEnabled(true)
		tracker.SetDebugCollector(collector)
	}

	var (
		db    *store.Store
		runID string
	)
	if dbPath != "" {
		db, err = store.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		runID, err = db.BeginRun(inputPath)
		if err != nil {
			return err
		}
		log.Printf("run %s -> %s", runID, dbPath)
	}

	in := os.Stdin
	if inputPath != "-" {
		f, err := os.Open(inputPath)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var lastFrame int64
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var fl frameLine
		if err := json.Unmarshal(raw, &fl); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if fl.Frame <= lastFrame && lineNo > 1 {
			return fmt.Errorf("line %d: frame %d out of order (last %d)", lineNo, fl.Frame, lastFrame)
		}

		// Frames missing from the stream carry no detections; feed
		// them so lost counters advance at the true frame rate.
		for lastFrame+1 < fl.Frame {
			lastFrame++
			step(tracker, lines, collector, lastFrame, nil)
		}
		lastFrame = fl.Frame

		dets := make([]track.Detection, 0, len(fl.Detections))
		for _, d := range fl.Detections {
			dets = append(dets, track.Detection{
				Rect:       track.Rect{X1: d.X1, Y1: d.Y1, X2: d.X2, Y2: d.Y2},
				Confidence: d.Confidence,
			})
		}

		snapshots := step(tracker, lines, collector, fl.Frame, dets)
		if verbose {
			logFrame(fl.Frame, snapshots)
		}

		finished := tracker.DrainFinished()
		lines.Forget(finished)
		if db != nil {
			if err := db.InsertTracks(runID, finished); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	metrics := tracker.Metrics()
	counts := lines.Counts()
	log.Printf("processed %d frames: %d tracks created, %d evicted, %d re-identified, %d fragments merged",
		metrics.FramesProcessed, metrics.TracksCreated, metrics.TracksEvicted,
		metrics.Reidentified, metrics.FragmentMerges)
	log.Printf("count line: %d forward, %d reverse (%d total)",
		counts.Forward, counts.Reverse, counts.Total())

	if db != nil {
		// Tracks still live at end of stream are flushed alongside the
		// evicted ones so the run is complete.
		remaining := tracker.DrainFinished()
		for _, snap := range tracker.Snapshot() {
			remaining = append(remaining, snap)
		}
		if err := db.InsertTracks(runID, remaining); err != nil {
			return err
		}
		if err := db.SaveCounts(runID, cfg.GetCountLineAxis(), cfg.GetCountLineFraction(), counts); err != nil {
			return err
		}
		if err := db.FinishRun(runID, metrics); err != nil {
			return err
		}
	}

	return nil
}

func step(tracker *track.Tracker, lines *counter.LineCounter, collector *debug.Collector, frame int64, dets []track.Detection) map[int64]track.Snapshot {
	if collector != nil {
		collector.BeginFrame(uint64(frame))
	}
	snapshots := tracker.Update(nil, dets)
	lines.Observe(snapshots)
	if collector != nil {
		if df := collector.Emit(); df != nil {
			logDebug(df)
		}
	}
	return snapshots
}

func logDebug(f *debug.Frame) {
	log.Printf("debug frame %d: %d overlaps, %d candidates, %d gates, %d recoveries, %d lifecycle",
		f.FrameID, len(f.Overlaps), len(f.Candidates), len(f.Gates), len(f.Recoveries), len(f.Lifecycle))
	for _, r := range f.Recoveries {
		log.Printf("debug frame %d: track %d recovered detection %d score=%.2f after %d lost frames",
			f.FrameID, r.TrackID, r.DetIndex, r.Score, r.FramesLost)
	}
}

func logFrame(frame int64, snapshots map[int64]track.Snapshot) {
	for id, snap := range snapshots {
		status := "visible"
		if snap.Lost > 0 {
			status = fmt.Sprintf("lost=%d", snap.Lost)
		}
		log.Printf("frame %d track %d: rect=%v hits=%d %s dir=%s",
			frame, id, snap.Rect, snap.Hits, status, snap.Direction)
	}
}
