package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig represents the root configuration for the claim engine's
// tuning parameters. The schema matches the /api/config endpoint so the
// same JSON can be used for both startup configuration and inspection.
//
// Fields omitted from the JSON file retain their default values, so partial
// configs are safe. All Get* methods provide the fallback defaults.
type TuningConfig struct {
	// Sample filter params
	AccuracyLimitM *float64 `json:"accuracy_limit_m,omitempty"`
	MinFixInterval *string  `json:"min_fix_interval,omitempty"` // duration string like "1s"
	JumpLimitM     *float64 `json:"jump_limit_m,omitempty"`

	// Closure params
	MinClosurePoints *int     `json:"min_closure_points,omitempty"`
	ClosureDistanceM *float64 `json:"closure_distance_m,omitempty"`

	// Speed guard params
	SpeedMildKmh   *float64 `json:"speed_mild_kmh,omitempty"`
	SpeedSevereKmh *float64 `json:"speed_severe_kmh,omitempty"`
	SpeedGrace     *string  `json:"speed_grace,omitempty"` // duration string like "10s"

	// Collision params
	CollisionInterval *string  `json:"collision_interval,omitempty"` // duration string like "10s"
	ProximityCautionM *float64 `json:"proximity_caution_m,omitempty"`
	ProximityWarningM *float64 `json:"proximity_warning_m,omitempty"`
	ProximityDangerM  *float64 `json:"proximity_danger_m,omitempty"`
	ViolationHold     *string  `json:"violation_hold,omitempty"` // duration string like "5s"

	// Session params
	FixBuffer *int `json:"fix_buffer,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file is
// validated to ensure it has a .json extension and is under the max file size.
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
	if c.AccuracyLimitM != nil && *c.AccuracyLimitM <= 0 {
		return fmt.Errorf("accuracy_limit_m must be positive, got %f", *c.AccuracyLimitM)
	}
	if c.JumpLimitM != nil && *c.JumpLimitM <= 0 {
		return fmt.Errorf("jump_limit_m must be positive, got %f", *c.JumpLimitM)
	}
	if c.MinClosurePoints != nil && *c.MinClosurePoints < 3 {
		return fmt.Errorf("min_closure_points must be at least 3, got %d", *c.MinClosurePoints)
	}
	if c.ClosureDistanceM != nil && *c.ClosureDistanceM <= 0 {
		return fmt.Errorf("closure_distance_m must be positive, got %f", *c.ClosureDistanceM)
	}

	// Mild threshold above severe would invert the escalation ladder.
	if c.SpeedMildKmh != nil && c.SpeedSevereKmh != nil && *c.SpeedMildKmh > *c.SpeedSevereKmh {
		return fmt.Errorf("speed_mild_kmh %f exceeds speed_severe_kmh %f", *c.SpeedMildKmh, *c.SpeedSevereKmh)
	}

	// Proximity thresholds must descend caution > warning > danger.
	caution := c.GetProximityCautionM()
	warning := c.GetProximityWarningM()
	danger := c.GetProximityDangerM()
	if !(caution > warning && warning > danger && danger > 0) {
		return fmt.Errorf("proximity thresholds must descend: caution=%f warning=%f danger=%f", caution, warning, danger)
	}

	for name, v := range map[string]*string{
		"min_fix_interval":   c.MinFixInterval,
		"speed_grace":        c.SpeedGrace,
		"collision_interval": c.CollisionInterval,
		"violation_hold":     c.ViolationHold,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	if c.FixBuffer != nil && *c.FixBuffer < 1 {
		return fmt.Errorf("fix_buffer must be at least 1, got %d", *c.FixBuffer)
	}

	return nil
}

// GetAccuracyLimitM returns the accuracy_limit_m value or the default.
func (c *TuningConfig) GetAccuracyLimitM() float64 {
	if c.AccuracyLimitM == nil {
		return 50.0
	}
	return *c.AccuracyLimitM
}

// GetMinFixInterval parses and returns the MinFixInterval as a time.Duration.
func (c *TuningConfig) GetMinFixInterval() time.Duration {
	return c.duration(c.MinFixInterval, time.Second)
}

// GetJumpLimitM returns the jump_limit_m value or the default.
func (c *TuningConfig) GetJumpLimitM() float64 {
	if c.JumpLimitM == nil {
		return 100.0
	}
	return *c.JumpLimitM
}

// GetMinClosurePoints returns the min_closure_points value or the default.
func (c *TuningConfig) GetMinClosurePoints() int {
	if c.MinClosurePoints == nil {
		return 10
	}
	return *c.MinClosurePoints
}

// GetClosureDistanceM returns the closure_distance_m value or the default.
func (c *TuningConfig) GetClosureDistanceM() float64 {
	if c.ClosureDistanceM == nil {
		return 30.0
	}
	return *c.ClosureDistanceM
}

// GetSpeedMildKmh returns the speed_mild_kmh value or the default.
func (c *TuningConfig) GetSpeedMildKmh() float64 {
	if c.SpeedMildKmh == nil {
		return 15.0
	}
	return *c.SpeedMildKmh
}

// GetSpeedSevereKmh returns the speed_severe_kmh value or the default.
func (c *TuningConfig) GetSpeedSevereKmh() float64 {
	if c.SpeedSevereKmh == nil {
		return 30.0
	}
	return *c.SpeedSevereKmh
}

// GetSpeedGrace parses and returns the SpeedGrace as a time.Duration.
func (c *TuningConfig) GetSpeedGrace() time.Duration {
	return c.duration(c.SpeedGrace, 10*time.Second)
}

// GetCollisionInterval parses and returns the CollisionInterval as a time.Duration.
func (c *TuningConfig) GetCollisionInterval() time.Duration {
	return c.duration(c.CollisionInterval, 10*time.Second)
}

// GetProximityCautionM returns the proximity_caution_m value or the default.
func (c *TuningConfig) GetProximityCautionM() float64 {
	if c.ProximityCautionM == nil {
		return 100.0
	}
	return *c.ProximityCautionM
}

// GetProximityWarningM returns the proximity_warning_m value or the default.
func (c *TuningConfig) GetProximityWarningM() float64 {
	if c.ProximityWarningM == nil {
		return 50.0
	}
	return *c.ProximityWarningM
}

// GetProximityDangerM returns the proximity_danger_m value or the default.
func (c *TuningConfig) GetProximityDangerM() float64 {
	if c.ProximityDangerM == nil {
		return 25.0
	}
	return *c.ProximityDangerM
}

// GetViolationHold parses and returns the ViolationHold as a time.Duration.
func (c *TuningConfig) GetViolationHold() time.Duration {
	return c.duration(c.ViolationHold, 5*time.Second)
}

// GetFixBuffer returns the fix_buffer value or the default.
func (c *TuningConfig) GetFixBuffer() int {
	if c.FixBuffer == nil {
		return 64
	}
	return *c.FixBuffer
}

func (c *TuningConfig) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}
