package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/mmwave"
)

// TuningConfig represents the tunable classifier parameters as loaded from a
// JSON file. The schema matches the /api/params endpoint so the same JSON can
// be used for both startup configuration and runtime updates.
//
// All fields are pointers so an omitted field can be told apart from a zero
// value; the Get* methods supply defaults for omitted fields.
type TuningConfig struct {
	// Clustering params
	Eps        *float64 `json:"eps,omitempty"`
	MinSamples *int     `json:"min_samples,omitempty"`

	// Human gate params
	MinPointsHuman *int     `json:"min_points_human,omitempty"`
	MaxHumanWidth  *float64 `json:"max_human_width,omitempty"`
	MinHumanHeight *float64 `json:"min_human_height,omitempty"`
	MaxHumanHeight *float64 `json:"max_human_height,omitempty"`

	// Movement params
	MovementThreshold *float64 `json:"movement_threshold,omitempty"`

	// Display params
	DisplayCap *int `json:"display_cap,omitempty"`

	// Pipeline params, applied at startup only
	QueueCapacity *int    `json:"queue_capacity,omitempty"`
	DrainMax      *int    `json:"drain_max,omitempty"`
	PollInterval  *string `json:"poll_interval,omitempty"` // duration string, e.g. "200ms"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON retain their defaults, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.Eps != nil && *c.Eps <= 0 {
		return fmt.Errorf("eps must be positive, got %f", *c.Eps)
	}
	if c.MinSamples != nil && *c.MinSamples < 1 {
		return fmt.Errorf("min_samples must be at least 1, got %d", *c.MinSamples)
	}
	if c.MinPointsHuman != nil && *c.MinPointsHuman < 1 {
		return fmt.Errorf("min_points_human must be at least 1, got %d", *c.MinPointsHuman)
	}
	if c.MaxHumanWidth != nil && *c.MaxHumanWidth <= 0 {
		return fmt.Errorf("max_human_width must be positive, got %f", *c.MaxHumanWidth)
	}
	if c.MinHumanHeight != nil && *c.MinHumanHeight < 0 {
		return fmt.Errorf("min_human_height must be non-negative, got %f", *c.MinHumanHeight)
	}
	if c.MaxHumanHeight != nil {
		min := mmwave.DefaultMinHumanHeight
		if c.MinHumanHeight != nil {
			min = *c.MinHumanHeight
		}
		if *c.MaxHumanHeight <= min {
			return fmt.Errorf("max_human_height %f must exceed min_human_height %f", *c.MaxHumanHeight, min)
		}
	}
	if c.MovementThreshold != nil && *c.MovementThreshold < 0 {
		return fmt.Errorf("movement_threshold must be non-negative, got %f", *c.MovementThreshold)
	}
	if c.DisplayCap != nil && *c.DisplayCap < 1 {
		return fmt.Errorf("display_cap must be at least 1, got %d", *c.DisplayCap)
	}
	if c.QueueCapacity != nil && *c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", *c.QueueCapacity)
	}
	if c.DrainMax != nil && *c.DrainMax < 1 {
		return fmt.Errorf("drain_max must be at least 1, got %d", *c.DrainMax)
	}
	if c.PollInterval != nil {
		d, err := time.ParseDuration(*c.PollInterval)
		if err != nil {
			return fmt.Errorf("poll_interval is not a valid duration: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("poll_interval must be positive, got %s", d)
		}
	}
	return nil
}

// GetEps returns the eps value or the default.
func (c *TuningConfig) GetEps() float64 {
	if c.Eps == nil {
		return mmwave.DefaultEps
	}
	return *c.Eps
}

// GetMinSamples returns the min_samples value or the default.
func (c *TuningConfig) GetMinSamples() int {
	if c.MinSamples == nil {
		return mmwave.DefaultMinSamples
	}
	return *c.MinSamples
}

// GetMinPointsHuman returns the min_points_human value or the default.
func (c *TuningConfig) GetMinPointsHuman() int {
	if c.MinPointsHuman == nil {
		return mmwave.DefaultMinPointsHuman
	}
	return *c.MinPointsHuman
}

// GetMaxHumanWidth returns the max_human_width value or the default.
func (c *TuningConfig) GetMaxHumanWidth() float64 {
	if c.MaxHumanWidth == nil {
		return mmwave.DefaultMaxHumanWidth
	}
	return *c.MaxHumanWidth
}

// GetMinHumanHeight returns the min_human_height value or the default.
func (c *TuningConfig) GetMinHumanHeight() float64 {
	if c.MinHumanHeight == nil {
		return mmwave.DefaultMinHumanHeight
	}
	return *c.MinHumanHeight
}

// GetMaxHumanHeight returns the max_human_height value or the default.
func (c *TuningConfig) GetMaxHumanHeight() float64 {
	if c.MaxHumanHeight == nil {
		return mmwave.DefaultMaxHumanHeight
	}
	return *c.MaxHumanHeight
}

// GetMovementThreshold returns the movement_threshold value or the default.
func (c *TuningConfig) GetMovementThreshold() float64 {
	if c.MovementThreshold == nil {
		return mmwave.DefaultMovementThreshold
	}
	return *c.MovementThreshold
}

// GetDisplayCap returns the display_cap value or the default.
func (c *TuningConfig) GetDisplayCap() int {
	if c.DisplayCap == nil {
		return mmwave.DefaultDisplayCap
	}
	return *c.DisplayCap
}

// GetQueueCapacity returns the queue_capacity value or the default.
func (c *TuningConfig) GetQueueCapacity() int {
	if c.QueueCapacity == nil {
		return mmwave.DefaultQueueCapacity
	}
	return *c.QueueCapacity
}

// GetDrainMax returns the drain_max value or the default.
func (c *TuningConfig) GetDrainMax() int {
	if c.DrainMax == nil {
		return mmwave.DefaultDrainMax
	}
	return *c.DrainMax
}

// GetPollInterval returns the parsed poll_interval or the default. An
// unparseable value falls back to the default; Validate rejects those before
// a loaded config reaches here.
func (c *TuningConfig) GetPollInterval() time.Duration {
	if c.PollInterval == nil {
		return mmwave.DefaultClassifyInterval
	}
	d, err := time.ParseDuration(*c.PollInterval)
	if err != nil || d <= 0 {
		return mmwave.DefaultClassifyInterval
	}
	return d
}

// Params materialises the config into classifier parameters.
func (c *TuningConfig) Params() mmwave.Params {
	return mmwave.Params{
		Eps:               c.GetEps(),
		MinSamples:        c.GetMinSamples(),
		MinPointsHuman:    c.GetMinPointsHuman(),
		MaxHumanWidth:     c.GetMaxHumanWidth(),
		MinHumanHeight:    c.GetMinHumanHeight(),
		MaxHumanHeight:    c.GetMaxHumanHeight(),
		MovementThreshold: c.GetMovementThreshold(),
	}
}

// FromParams builds a fully-populated TuningConfig from classifier
// parameters, for serving the current values over the API.
func FromParams(p mmwave.Params) *TuningConfig {
	return &TuningConfig{
		Eps:               ptrFloat64(p.Eps),
		MinSamples:        ptrInt(p.MinSamples),
		MinPointsHuman:    ptrInt(p.MinPointsHuman),
		MaxHumanWidth:     ptrFloat64(p.MaxHumanWidth),
		MinHumanHeight:    ptrFloat64(p.MinHumanHeight),
		MaxHumanHeight:    ptrFloat64(p.MaxHumanHeight),
		MovementThreshold: ptrFloat64(p.MovementThreshold),
	}
}

// ApplyTo overlays the set fields of c onto p and returns the result.
// Unset fields leave p untouched, so a partial update only changes what it
// names.
func (c *TuningConfig) ApplyTo(p mmwave.Params) mmwave.Params {
	if c.Eps != nil {
		p.Eps = *c.Eps
	}
	if c.MinSamples != nil {
		p.MinSamples = *c.MinSamples
	}
	if c.MinPointsHuman != nil {
		p.MinPointsHuman = *c.MinPointsHuman
	}
	if c.MaxHumanWidth != nil {
		p.MaxHumanWidth = *c.MaxHumanWidth
	}
	if c.MinHumanHeight != nil {
		p.MinHumanHeight = *c.MinHumanHeight
	}
	if c.MaxHumanHeight != nil {
		p.MaxHumanHeight = *c.MaxHumanHeight
	}
	if c.MovementThreshold != nil {
		p.MovementThreshold = *c.MovementThreshold
	}
	return p
}
