// Package track owns the vehicle tracking core: per-object state,
// detection-to-track association, motion prediction, and track lifecycle.
//
// Responsibilities: fragment merging, two-phase matching (geometric
// overlap for visible tracks, re-identification for recently lost
// tracks), linear and Kalman motion models, and eviction of expired
// tracks. Key types: Tracker, Track, Detection, Config.
//
// Dependency rule: this package never touches I/O. Persistence lives in
// internal/store, counting in internal/counter, and the detector is an
// external collaborator feeding Update with per-frame detections.
package track
