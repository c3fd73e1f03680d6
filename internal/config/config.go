// Package config loads the run configuration for objdetect.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/objdetect/internal/taxonomy"
)

// DefaultConfigPath is the path to the canonical run defaults file.
const DefaultConfigPath = "config/objdetect.defaults.json"

// Config is the run configuration. Every field is optional; the Get*
// accessors supply the default for anything the file leaves out, so partial
// configs are safe.
type Config struct {
	// Simulator connection
	Host           *string `json:"host,omitempty"`
	Port           *int    `json:"port,omitempty"`
	ConnectTimeout *string `json:"connect_timeout,omitempty"` // duration string like "10s"

	// Actors
	Vehicles      *int    `json:"vehicles,omitempty"`
	HeroFilter    *string `json:"hero_filter,omitempty"`
	VehicleFilter *string `json:"vehicle_filter,omitempty"`

	// LiDAR sensor
	LidarChannels          *int     `json:"lidar_channels,omitempty"`
	LidarPointsPerSecond   *int     `json:"lidar_points_per_second,omitempty"`
	LidarRotationFrequency *float64 `json:"lidar_rotation_frequency,omitempty"`
	LidarRange             *float64 `json:"lidar_range,omitempty"`
	LidarMountHeight       *float64 `json:"lidar_mount_height,omitempty"`

	// Logs
	RawLog     *string `json:"raw_log,omitempty"`
	SummaryLog *string `json:"summary_log,omitempty"`
	Fsync      *bool   `json:"fsync,omitempty"`

	// Ingestion
	TopK          *int    `json:"top_k,omitempty"`
	QueueSize     *int    `json:"queue_size,omitempty"`
	LogDetections *bool   `json:"log_detections,omitempty"`
	StatsInterval *string `json:"stats_interval,omitempty"`

	// Main loop
	TickPause       *string `json:"tick_pause,omitempty"`
	ShutdownTimeout *string `json:"shutdown_timeout,omitempty"`

	// Taxonomy replaces the stock class table when set.
	Taxonomy map[string]taxonomy.Tag `json:"taxonomy,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Default returns a Config with every field set to its default value.
func Default() *Config {
	c := Empty()
	return &Config{
		Host:                   ptrString(c.GetHost()),
		Port:                   ptrInt(c.GetPort()),
		ConnectTimeout:         ptrString(c.GetConnectTimeout().String()),
		Vehicles:               ptrInt(c.GetVehicles()),
		HeroFilter:             ptrString(c.GetHeroFilter()),
		VehicleFilter:          ptrString(c.GetVehicleFilter()),
		LidarChannels:          ptrInt(c.GetLidarChannels()),
		LidarPointsPerSecond:   ptrInt(c.GetLidarPointsPerSecond()),
		LidarRotationFrequency: ptrFloat64(c.GetLidarRotationFrequency()),
		LidarRange:             ptrFloat64(c.GetLidarRange()),
		LidarMountHeight:       ptrFloat64(c.GetLidarMountHeight()),
		RawLog:                 ptrString(c.GetRawLog()),
		SummaryLog:             ptrString(c.GetSummaryLog()),
		Fsync:                  ptrBool(c.GetFsync()),
		TopK:                   ptrInt(c.GetTopK()),
		QueueSize:              ptrInt(c.GetQueueSize()),
		LogDetections:          ptrBool(c.GetLogDetections()),
		StatsInterval:          ptrString(c.GetStatsInterval().String()),
		TickPause:              ptrString(c.GetTickPause().String()),
		ShutdownTimeout:        ptrString(c.GetShutdownTimeout().String()),
	}
}

// Load loads a Config from a JSON file. The file must have a .json extension
// and be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads DefaultConfigPath relative to the working directory. When
// no defaults file is installed there it returns Empty, whose getters yield
// the same values.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat(DefaultConfigPath); errors.Is(err, fs.ErrNotExist) {
		return Empty(), nil
	}
	return Load(DefaultConfigPath)
}

// MustLoadDefault loads DefaultConfigPath from the current directory or one
// of its parents. Panics if the file cannot be loaded, intended for tests.
func MustLoadDefault() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/simulator/synthetic/
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.Port != nil && (*c.Port <= 0 || *c.Port > 65535) {
		return fmt.Errorf("port must be between 1 and 65535, got %d", *c.Port)
	}
	if c.Vehicles != nil && *c.Vehicles < 0 {
		return fmt.Errorf("vehicles must be non-negative, got %d", *c.Vehicles)
	}
	if c.LidarChannels != nil && *c.LidarChannels <= 0 {
		return fmt.Errorf("lidar_channels must be positive, got %d", *c.LidarChannels)
	}
	if c.LidarPointsPerSecond != nil && *c.LidarPointsPerSecond <= 0 {
		return fmt.Errorf("lidar_points_per_second must be positive, got %d", *c.LidarPointsPerSecond)
	}
	if c.LidarRotationFrequency != nil && *c.LidarRotationFrequency <= 0 {
		return fmt.Errorf("lidar_rotation_frequency must be positive, got %f", *c.LidarRotationFrequency)
	}
	if c.LidarRange != nil && *c.LidarRange <= 0 {
		return fmt.Errorf("lidar_range must be positive, got %f", *c.LidarRange)
	}
	if c.TopK != nil && *c.TopK < 1 {
		return fmt.Errorf("top_k must be positive, got %d", *c.TopK)
	}
	if c.QueueSize != nil && *c.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive, got %d", *c.QueueSize)
	}
	if c.RawLog != nil && c.SummaryLog != nil && *c.RawLog != "" &&
		filepath.Clean(*c.RawLog) == filepath.Clean(*c.SummaryLog) {
		return fmt.Errorf("raw_log and summary_log must differ, both are %q", *c.RawLog)
	}
	for name, s := range map[string]*string{
		"connect_timeout":  c.ConnectTimeout,
		"stats_interval":   c.StatsInterval,
		"tick_pause":       c.TickPause,
		"shutdown_timeout": c.ShutdownTimeout,
	} {
		if s == nil || *s == "" {
			continue
		}
		d, err := time.ParseDuration(*s)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *s, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *s)
		}
	}
	if c.Taxonomy != nil {
		if _, err := taxonomy.New(c.Taxonomy); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the configured taxonomy, or the stock one.
func (c *Config) Registry() (*taxonomy.Registry, error) {
	if c.Taxonomy == nil {
		return taxonomy.Default(), nil
	}
	return taxonomy.New(c.Taxonomy)
}

func parseDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetHost returns the simulator host or the default.
func (c *Config) GetHost() string {
	if c.Host == nil {
		return "127.0.0.1"
	}
	return *c.Host
}

// GetPort returns the simulator port or the default.
func (c *Config) GetPort() int {
	if c.Port == nil {
		return 2000
	}
	return *c.Port
}

// GetConnectTimeout returns the bounded connect wait.
func (c *Config) GetConnectTimeout() time.Duration {
	return parseDuration(c.ConnectTimeout, 10*time.Second)
}

// GetVehicles returns the requested fleet size.
func (c *Config) GetVehicles() int {
	if c.Vehicles == nil {
		return 30
	}
	return *c.Vehicles
}

// GetHeroFilter returns the hero blueprint filter.
func (c *Config) GetHeroFilter() string {
	if c.HeroFilter == nil || *c.HeroFilter == "" {
		return "model3"
	}
	return *c.HeroFilter
}

// GetVehicleFilter returns the fleet blueprint filter.
func (c *Config) GetVehicleFilter() string {
	if c.VehicleFilter == nil || *c.VehicleFilter == "" {
		return "vehicle.*"
	}
	return *c.VehicleFilter
}

// GetLidarChannels returns the lidar_channels value or the default.
func (c *Config) GetLidarChannels() int {
	if c.LidarChannels == nil {
		return 64
	}
	return *c.LidarChannels
}

// GetLidarPointsPerSecond returns the lidar_points_per_second value or the default.
func (c *Config) GetLidarPointsPerSecond() int {
	if c.LidarPointsPerSecond == nil {
		return 56000
	}
	return *c.LidarPointsPerSecond
}

// GetLidarRotationFrequency returns the lidar_rotation_frequency value or the default.
func (c *Config) GetLidarRotationFrequency() float64 {
	if c.LidarRotationFrequency == nil {
		return 80
	}
	return *c.LidarRotationFrequency
}

// GetLidarRange returns the lidar_range value or the default.
func (c *Config) GetLidarRange() float64 {
	if c.LidarRange == nil {
		return 100
	}
	return *c.LidarRange
}

// GetLidarMountHeight returns the sensor height above the hero.
func (c *Config) GetLidarMountHeight() float64 {
	if c.LidarMountHeight == nil {
		return 2.2
	}
	return *c.LidarMountHeight
}

// GetRawLog returns the raw point log path.
func (c *Config) GetRawLog() string {
	if c.RawLog == nil || *c.RawLog == "" {
		return "lidar_points.csv"
	}
	return *c.RawLog
}

// GetSummaryLog returns the detection summary log path.
func (c *Config) GetSummaryLog() string {
	if c.SummaryLog == nil || *c.SummaryLog == "" {
		return "object_log.csv"
	}
	return *c.SummaryLog
}

// GetFsync returns whether every append is synced to disk.
func (c *Config) GetFsync() bool {
	if c.Fsync == nil {
		return true
	}
	return *c.Fsync
}

// GetTopK returns the per-class summary cap.
func (c *Config) GetTopK() int {
	if c.TopK == nil {
		return 8
	}
	return *c.TopK
}

// GetQueueSize returns the ingest queue capacity.
func (c *Config) GetQueueSize() int {
	if c.QueueSize == nil {
		return 8
	}
	return *c.QueueSize
}

// GetLogDetections returns whether summaries are echoed to the log.
func (c *Config) GetLogDetections() bool {
	if c.LogDetections == nil {
		return true
	}
	return *c.LogDetections
}

// GetStatsInterval returns how often ingest statistics are logged. Zero
// disables them.
func (c *Config) GetStatsInterval() time.Duration {
	return parseDuration(c.StatsInterval, 10*time.Second)
}

// GetTickPause returns the pause between main loop iterations.
func (c *Config) GetTickPause() time.Duration {
	return parseDuration(c.TickPause, 50*time.Millisecond)
}

// GetShutdownTimeout bounds teardown after the run context is cancelled.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.ShutdownTimeout, 15*time.Second)
}
