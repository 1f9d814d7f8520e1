package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"courier_mesh/internal/domain"
)

const DefaultPath = "courier_mesh.toml"

type Config struct {
	Dispatcher DispatcherConfig `toml:"dispatcher"`
	Workers    []WorkerSeed     `toml:"workers"`
	Jobs       []JobSeed        `toml:"jobs"`
	Raw        map[string]any   `toml:"-"`
	Path       string           `toml:"-"`
}

type DispatcherConfig struct {
	Addr             string `toml:"addr"`
	DBPath           string `toml:"db_path"`
	ReportDir        string `toml:"report_dir"`
	MaxRouteLen      int    `toml:"max_route_len"`
	ReplanDebounceMS int    `toml:"replan_debounce_ms"`
	StatusTimeoutMS  int    `toml:"status_timeout_ms"`
}

type Point struct {
	X float64 `toml:"x"`
	Y float64 `toml:"y"`
}

type WorkerSeed struct {
	ID              string  `toml:"id"`
	Name            string  `toml:"name"`
	Origin          Point   `toml:"origin"`
	Capacity        float64 `toml:"capacity"`
	WorkloadLimit   int     `toml:"workload_limit"`
	CostPerDistance float64 `toml:"cost_per_distance"`
}

type JobSeed struct {
	ID      string  `toml:"id"`
	Pickup  Point   `toml:"pickup"`
	Dropoff Point   `toml:"dropoff"`
	Weight  float64 `toml:"weight"`
	Price   float64 `toml:"price"`
}

func (p Point) Location() domain.Location {
	return domain.Location{X: p.X, Y: p.Y}
}

func (s WorkerSeed) Spec() domain.WorkerSpec {
	return domain.WorkerSpec{
		ID:              s.ID,
		Name:            s.Name,
		Origin:          s.Origin.Location(),
		Capacity:        s.Capacity,
		WorkloadLimit:   s.WorkloadLimit,
		CostPerDistance: s.CostPerDistance,
	}
}

func (s JobSeed) Spec() domain.JobSpec {
	return domain.JobSpec{
		ID:      s.ID,
		Pickup:  s.Pickup.Location(),
		Dropoff: s.Dropoff.Location(),
		Weight:  s.Weight,
		Price:   s.Price,
	}
}

func Default() Config {
	return Config{
		Dispatcher: DispatcherConfig{
			Addr:             "127.0.0.1:8092",
			DBPath:           "data/courier_mesh.db",
			ReportDir:        "reports",
			MaxRouteLen:      8,
			ReplanDebounceMS: 1000,
			StatusTimeoutMS:  2000,
		},
	}
}

// Load reads a TOML file over the defaults. An empty path falls back to
// DefaultPath and, if that file does not exist, to the defaults alone.
func Load(path string) (Config, error) {
	resolved := path
	if resolved == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			return Default(), nil
		}
		resolved = DefaultPath
	}
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	cfg := Default()
	if _, err := toml.Decode(string(bytes), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	var raw map[string]any
	if _, err := toml.Decode(string(bytes), &raw); err != nil {
		return Config{}, fmt.Errorf("decode raw config: %w", err)
	}
	cfg.Raw = raw
	cfg.Path = resolved
	return cfg, nil
}

func (c DispatcherConfig) ReplanDebounce() time.Duration {
	return time.Duration(c.ReplanDebounceMS) * time.Millisecond
}

func (c DispatcherConfig) StatusTimeout() time.Duration {
	return time.Duration(c.StatusTimeoutMS) * time.Millisecond
}
