package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/objdetect/internal/taxonomy"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Vehicles == nil || *cfg.Vehicles != 30 {
		t.Errorf("Expected Vehicles 30, got %v", cfg.Vehicles)
	}
	if cfg.HeroFilter == nil || *cfg.HeroFilter != "model3" {
		t.Errorf("Expected HeroFilter 'model3', got %v", cfg.HeroFilter)
	}
	if cfg.TickPause == nil || *cfg.TickPause != "50ms" {
		t.Errorf("Expected TickPause '50ms', got %v", cfg.TickPause)
	}
	if cfg.Fsync == nil || *cfg.Fsync != true {
		t.Errorf("Expected Fsync true, got %v", cfg.Fsync)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config does not validate: %v", err)
	}
}

func TestGetterDefaults(t *testing.T) {
	cfg := Empty()

	if got := cfg.GetHost(); got != "127.0.0.1" {
		t.Errorf("GetHost() = %q, want 127.0.0.1", got)
	}
	if got := cfg.GetPort(); got != 2000 {
		t.Errorf("GetPort() = %d, want 2000", got)
	}
	if got := cfg.GetConnectTimeout(); got != 10*time.Second {
		t.Errorf("GetConnectTimeout() = %v, want 10s", got)
	}
	if got := cfg.GetVehicleFilter(); got != "vehicle.*" {
		t.Errorf("GetVehicleFilter() = %q, want vehicle.*", got)
	}
	if got := cfg.GetLidarChannels(); got != 64 {
		t.Errorf("GetLidarChannels() = %d, want 64", got)
	}
	if got := cfg.GetLidarPointsPerSecond(); got != 56000 {
		t.Errorf("GetLidarPointsPerSecond() = %d, want 56000", got)
	}
	if got := cfg.GetLidarRotationFrequency(); got != 80 {
		t.Errorf("GetLidarRotationFrequency() = %f, want 80", got)
	}
	if got := cfg.GetLidarRange(); got != 100 {
		t.Errorf("GetLidarRange() = %f, want 100", got)
	}
	if got := cfg.GetLidarMountHeight(); got != 2.2 {
		t.Errorf("GetLidarMountHeight() = %f, want 2.2", got)
	}
	if got := cfg.GetRawLog(); got != "lidar_points.csv" {
		t.Errorf("GetRawLog() = %q", got)
	}
	if got := cfg.GetSummaryLog(); got != "object_log.csv" {
		t.Errorf("GetSummaryLog() = %q", got)
	}
	if got := cfg.GetTopK(); got != 8 {
		t.Errorf("GetTopK() = %d, want 8", got)
	}
	if got := cfg.GetQueueSize(); got != 8 {
		t.Errorf("GetQueueSize() = %d, want 8", got)
	}
	if !cfg.GetLogDetections() {
		t.Error("GetLogDetections() = false, want true")
	}
	if got := cfg.GetStatsInterval(); got != 10*time.Second {
		t.Errorf("GetStatsInterval() = %v, want 10s", got)
	}
	if got := cfg.GetShutdownTimeout(); got != 15*time.Second {
		t.Errorf("GetShutdownTimeout() = %v, want 15s", got)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "run.json", `{
  "host": "sim.local",
  "port": 3000,
  "vehicles": 5,
  "tick_pause": "20ms",
  "fsync": false,
  "top_k": 3
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetHost() != "sim.local" {
		t.Errorf("Expected host sim.local, got %q", cfg.GetHost())
	}
	if cfg.GetPort() != 3000 {
		t.Errorf("Expected port 3000, got %d", cfg.GetPort())
	}
	if cfg.GetVehicles() != 5 {
		t.Errorf("Expected 5 vehicles, got %d", cfg.GetVehicles())
	}
	if cfg.GetTickPause() != 20*time.Millisecond {
		t.Errorf("Expected tick pause 20ms, got %v", cfg.GetTickPause())
	}
	if cfg.GetFsync() {
		t.Error("Expected fsync disabled")
	}
	if cfg.GetTopK() != 3 {
		t.Errorf("Expected top_k 3, got %d", cfg.GetTopK())
	}
	// Omitted fields keep their defaults.
	if cfg.GetHeroFilter() != "model3" {
		t.Errorf("Expected default hero filter, got %q", cfg.GetHeroFilter())
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load("/nonexistent/path/to/config.json"); err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := writeConfig(t, "invalid.json", `{"vehicles": "many"`)
	if _, err := Load(path); err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestLoadRejectsNonJSON(t *testing.T) {
	if _, err := Load("/some/path/config.yaml"); err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadRejectsLargeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "large.json")
	if err := os.WriteFile(path, make([]byte, 2*1024*1024), 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg := MustLoadDefault()
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("defaults file disagrees with the built-in defaults (-getters +file):\n%s", diff)
	}
}

func TestLoadDefaultFromRepositoryRoot(t *testing.T) {
	chdir(t, "../..")
	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	if cfg.Vehicles == nil || *cfg.Vehicles != 30 {
		t.Errorf("Expected Vehicles loaded from %s, got %v", DefaultConfigPath, cfg.Vehicles)
	}
}

func TestLoadDefaultWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	if cfg.Vehicles != nil {
		t.Errorf("Expected an empty config, got Vehicles %v", *cfg.Vehicles)
	}
	if cfg.GetVehicles() != 30 {
		t.Errorf("GetVehicles() = %d, want 30", cfg.GetVehicles())
	}
}

func TestLoadDefaultRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigPath), []byte(`{"top_k": 0}`), 0644); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)
	if _, err := LoadDefault(); err == nil {
		t.Error("Expected error for invalid defaults file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"empty", Empty(), false},
		{"bad port", &Config{Port: ptrInt(70000)}, true},
		{"negative vehicles", &Config{Vehicles: ptrInt(-1)}, true},
		{"zero vehicles", &Config{Vehicles: ptrInt(0)}, false},
		{"zero channels", &Config{LidarChannels: ptrInt(0)}, true},
		{"zero frequency", &Config{LidarRotationFrequency: ptrFloat64(0)}, true},
		{"negative range", &Config{LidarRange: ptrFloat64(-5)}, true},
		{"negative top_k", &Config{TopK: ptrInt(-1)}, true},
		{"zero top_k", &Config{TopK: ptrInt(0)}, true},
		{"zero queue", &Config{QueueSize: ptrInt(0)}, true},
		{"bad duration", &Config{TickPause: ptrString("soon")}, true},
		{"negative duration", &Config{StatsInterval: ptrString("-1s")}, true},
		{"same log paths", &Config{RawLog: ptrString("a.csv"), SummaryLog: ptrString("./a.csv")}, true},
		{"duplicate taxonomy tag", &Config{Taxonomy: map[string]taxonomy.Tag{"A": 1, "B": 1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	reg, err := Empty().Registry()
	if err != nil {
		t.Fatalf("Registry() error = %v", err)
	}
	if reg.Len() != 23 {
		t.Errorf("Expected stock registry, got %d classes", reg.Len())
	}

	cfg := &Config{Taxonomy: map[string]taxonomy.Tag{"Car": 1, "Road": 2}}
	reg, err = cfg.Registry()
	if err != nil {
		t.Fatalf("Registry() error = %v", err)
	}
	if got := reg.Classify(1); got != "Car" {
		t.Errorf("Classify(1) = %q, want Car", got)
	}

	_, err = (&Config{Taxonomy: map[string]taxonomy.Tag{}}).Registry()
	if !errors.Is(err, taxonomy.ErrInvalidTaxonomy) {
		t.Errorf("Expected ErrInvalidTaxonomy, got %v", err)
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
