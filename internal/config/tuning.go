package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sitwell-data/posture.report/internal/posture"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/posture/params endpoint so the same JSON
// can be used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Classifier thresholds
	MinKeypointScore       *float64 `json:"min_keypoint_score,omitempty"`
	FrontNoseDistanceMaxPx *int     `json:"front_nose_distance_max_px,omitempty"`
	NeckAngleMaxDeg        *int     `json:"neck_angle_max_deg,omitempty"`
	TorsoAngleMaxDeg       *int     `json:"torso_angle_max_deg,omitempty"`
	ShoulderSpanMaxPx      *int     `json:"shoulder_span_max_px,omitempty"`

	// Pipeline params
	FrameChannelCapacity *int    `json:"frame_channel_capacity,omitempty"`
	StatsInterval        *string `json:"stats_interval,omitempty"` // duration string like "10s"

	// Session params
	SessionIdleTimeout *string `json:"session_idle_timeout,omitempty"` // duration string like "2m"
	RollupPeriod       *string `json:"rollup_period,omitempty"`        // duration string like "1m"

	// Live stream params
	LiveSendBuffer *int `json:"live_send_buffer,omitempty"`

	// Replay params
	MaxReplayFPS *float64 `json:"max_replay_fps,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
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
	// The classifier owns threshold validation; run set fields through it.
	if err := c.ClassifierParams().Validate(); err != nil {
		return err
	}

	if c.FrameChannelCapacity != nil && *c.FrameChannelCapacity < 1 {
		return fmt.Errorf("frame_channel_capacity must be at least 1, got %d", *c.FrameChannelCapacity)
	}

	if c.LiveSendBuffer != nil && *c.LiveSendBuffer < 1 {
		return fmt.Errorf("live_send_buffer must be at least 1, got %d", *c.LiveSendBuffer)
	}

	if c.MaxReplayFPS != nil && *c.MaxReplayFPS <= 0 {
		return fmt.Errorf("max_replay_fps must be positive, got %f", *c.MaxReplayFPS)
	}

	for name, v := range map[string]*string{
		"stats_interval":       c.StatsInterval,
		"session_idle_timeout": c.SessionIdleTimeout,
		"rollup_period":        c.RollupPeriod,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	return nil
}

// ClassifierParams folds the set threshold fields over the classifier
// defaults and returns a complete posture.Params.
func (c *TuningConfig) ClassifierParams() posture.Params {
	p := posture.DefaultParams()
	if c.MinKeypointScore != nil {
		p.MinKeypointScore = *c.MinKeypointScore
	}
	if c.FrontNoseDistanceMaxPx != nil {
		p.FrontNoseDistanceMaxPx = *c.FrontNoseDistanceMaxPx
	}
	if c.NeckAngleMaxDeg != nil {
		p.NeckAngleMaxDeg = *c.NeckAngleMaxDeg
	}
	if c.TorsoAngleMaxDeg != nil {
		p.TorsoAngleMaxDeg = *c.TorsoAngleMaxDeg
	}
	if c.ShoulderSpanMaxPx != nil {
		p.ShoulderSpanMaxPx = *c.ShoulderSpanMaxPx
	}
	return p
}

// GetFrameChannelCapacity returns the frame_channel_capacity value or the default.
func (c *TuningConfig) GetFrameChannelCapacity() int {
	if c.FrameChannelCapacity == nil {
		return 256 // default
	}
	return *c.FrameChannelCapacity
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *TuningConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return 10 * time.Second // default on parse error
	}
	return d
}

// GetSessionIdleTimeout parses and returns the SessionIdleTimeout as a time.Duration.
func (c *TuningConfig) GetSessionIdleTimeout() time.Duration {
	if c.SessionIdleTimeout == nil || *c.SessionIdleTimeout == "" {
		return 2 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.SessionIdleTimeout)
	if err != nil {
		return 2 * time.Minute // default on parse error
	}
	return d
}

// GetRollupPeriod parses and returns the RollupPeriod as a time.Duration.
func (c *TuningConfig) GetRollupPeriod() time.Duration {
	if c.RollupPeriod == nil || *c.RollupPeriod == "" {
		return time.Minute // default
	}
	d, err := time.ParseDuration(*c.RollupPeriod)
	if err != nil {
		return time.Minute // default on parse error
	}
	return d
}

// GetLiveSendBuffer returns the live_send_buffer value or the default.
func (c *TuningConfig) GetLiveSendBuffer() int {
	if c.LiveSendBuffer == nil {
		return 8 // default
	}
	return *c.LiveSendBuffer
}

// GetMaxReplayFPS returns the max_replay_fps value or the default.
func (c *TuningConfig) GetMaxReplayFPS() float64 {
	if c.MaxReplayFPS == nil {
		return 120 // default
	}
	return *c.MaxReplayFPS
}
