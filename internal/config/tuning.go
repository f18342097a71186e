package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kerb-data/trafficlens/internal/counter"
	"github.com/kerb-data/trafficlens/internal/track"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// All fields are pointers so a partial JSON file overrides only what it
// names; the Get* methods supply defaults for everything else.
type TuningConfig struct {
	// Association params
	IoUThreshold  *float64 `json:"iou_threshold,omitempty"`
	MaxLost       *int     `json:"max_lost,omitempty"`
	MinHits       *int     `json:"min_hits,omitempty"`
	SearchRadius  *float64 `json:"search_radius,omitempty"`
	MinMatchScore *float64 `json:"min_match_score,omitempty"`
	SkipFrames    *int     `json:"skip_frames,omitempty"`
	FragmentIoU   *float64 `json:"fragment_iou,omitempty"`

	// Statistical re-identification params
	MahalanobisThreshold *float64 `json:"mahalanobis_threshold,omitempty"`

	// Strategy selection
	Assignment *string `json:"assignment,omitempty"` // "greedy" or "hungarian"
	Motion     *string `json:"motion,omitempty"`     // "linear" or "kalman"

	// Count line params
	CountLineAxis     *string  `json:"count_line_axis,omitempty"` // "horizontal" or "vertical"
	CountLineFraction *float64 `json:"count_line_fraction,omitempty"`

	// Debug enables diagnostic tracing; it never changes decisions.
	Debug *bool `json:"debug,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.IoUThreshold != nil {
		if *c.IoUThreshold < 0 || *c.IoUThreshold > 1 {
			return fmt.Errorf("iou_threshold must be between 0 and 1, got %f", *c.IoUThreshold)
		}
	}

	if c.MaxLost != nil && *c.MaxLost < 0 {
		return fmt.Errorf("max_lost must be non-negative, got %d", *c.MaxLost)
	}

	if c.MinHits != nil && *c.MinHits < 1 {
		return fmt.Errorf("min_hits must be at least 1, got %d", *c.MinHits)
	}

	if c.SearchRadius != nil && *c.SearchRadius <= 0 {
		return fmt.Errorf("search_radius must be positive, got %f", *c.SearchRadius)
	}

	if c.MinMatchScore != nil {
		if *c.MinMatchScore < 0 || *c.MinMatchScore > 1 {
			return fmt.Errorf("min_match_score must be between 0 and 1, got %f", *c.MinMatchScore)
		}
	}

	if c.SkipFrames != nil && *c.SkipFrames < 0 {
		return fmt.Errorf("skip_frames must be non-negative, got %d", *c.SkipFrames)
	}

	if c.MahalanobisThreshold != nil && *c.MahalanobisThreshold <= 0 {
		return fmt.Errorf("mahalanobis_threshold must be positive, got %f", *c.MahalanobisThreshold)
	}

	if c.Assignment != nil {
		switch *c.Assignment {
		case string(track.AssignGreedy), string(track.AssignHungarian):
		default:
			return fmt.Errorf("assignment must be %q or %q, got %q",
				track.AssignGreedy, track.AssignHungarian, *c.Assignment)
		}
	}

	if c.Motion != nil {
		switch *c.Motion {
		case string(track.MotionLinear), string(track.MotionKalman):
		default:
			return fmt.Errorf("motion must be %q or %q, got %q",
				track.MotionLinear, track.MotionKalman, *c.Motion)
		}
	}

	if c.CountLineAxis != nil {
		switch *c.CountLineAxis {
		case string(counter.AxisHorizontal), string(counter.AxisVertical):
		default:
			return fmt.Errorf("count_line_axis must be %q or %q, got %q",
				counter.AxisHorizontal, counter.AxisVertical, *c.CountLineAxis)
		}
	}

	if c.CountLineFraction != nil {
		if *c.CountLineFraction <= 0 || *c.CountLineFraction >= 1 {
			return fmt.Errorf("count_line_fraction must be in (0,1), got %f", *c.CountLineFraction)
		}
	}

	return nil
}

// GetIoUThreshold returns the iou_threshold value or the default.
func (c *TuningConfig) GetIoUThreshold() float64 {
	if c.IoUThreshold == nil {
		return 0.3 // default
	}
	return *c.IoUThreshold
}

// GetMaxLost returns the max_lost value or the default.
func (c *TuningConfig) GetMaxLost() int {
	if c.MaxLost == nil {
		return 25
	}
	return *c.MaxLost
}

// GetMinHits returns the min_hits value or the default.
func (c *TuningConfig) GetMinHits() int {
	if c.MinHits == nil {
		return 3
	}
	return *c.MinHits
}

// GetSearchRadius returns the search_radius value or the default.
func (c *TuningConfig) GetSearchRadius() float64 {
	if c.SearchRadius == nil {
		return 100.0
	}
	return *c.SearchRadius
}

// GetMinMatchScore returns the min_match_score value or the default.
func (c *TuningConfig) GetMinMatchScore() float64 {
	if c.MinMatchScore == nil {
		return 0.50
	}
	return *c.MinMatchScore
}

// GetSkipFrames returns the skip_frames value or the default.
func (c *TuningConfig) GetSkipFrames() int {
	if c.SkipFrames == nil {
		return 1
	}
	return *c.SkipFrames
}

// GetFragmentIoU returns the fragment_iou value or the default.
func (c *TuningConfig) GetFragmentIoU() float64 {
	if c.FragmentIoU == nil {
		return 0.1
	}
	return *c.FragmentIoU
}

// GetMahalanobisThreshold returns the mahalanobis_threshold value or the default.
func (c *TuningConfig) GetMahalanobisThreshold() float64 {
	if c.MahalanobisThreshold == nil {
		return 3.5
	}
	return *c.MahalanobisThreshold
}

// GetAssignment returns the assignment strategy or the default.
// The default follows the motion model: the Kalman pipeline pairs with
// optimal assignment, the linear pipeline with greedy overlap.
func (c *TuningConfig) GetAssignment() track.AssignmentStrategy {
	if c.Assignment == nil {
		if c.GetMotion() == track.MotionKalman {
			return track.AssignHungarian
		}
		return track.AssignGreedy
	}
	return track.AssignmentStrategy(*c.Assignment)
}

// GetMotion returns the motion strategy or the default.
func (c *TuningConfig) GetMotion() track.MotionStrategy {
	if c.Motion == nil {
		return track.MotionKalman
	}
	return track.MotionStrategy(*c.Motion)
}

// GetCountLineAxis returns the count_line_axis value or the default.
func (c *TuningConfig) GetCountLineAxis() counter.Axis {
	if c.CountLineAxis == nil {
		return counter.AxisHorizontal
	}
	return counter.Axis(*c.CountLineAxis)
}

// GetCountLineFraction returns the count_line_fraction value or the default.
func (c *TuningConfig) GetCountLineFraction() float64 {
	if c.CountLineFraction == nil {
		return 2.0 / 3.0
	}
	return *c.CountLineFraction
}

func (c *TuningConfig) GetDebug() bool {
	if c.Debug == nil {
		return false
	}
	return *c.Debug
}

// TrackerConfig assembles a track.Config from the tuning values.
func (c *TuningConfig) TrackerConfig() track.Config {
	return track.Config{
		IoUThreshold:         c.GetIoUThreshold(),
		MaxLost:              c.GetMaxLost(),
		MinHits:              c.GetMinHits(),
		SearchRadius:         c.GetSearchRadius(),
		MinMatchScore:        c.GetMinMatchScore(),
		SkipFrames:           c.GetSkipFrames(),
		FragmentIoU:          c.GetFragmentIoU(),
		MahalanobisThreshold: c.GetMahalanobisThreshold(),
		Assignment:           c.GetAssignment(),
		Motion:               c.GetMotion(),
	}
}
