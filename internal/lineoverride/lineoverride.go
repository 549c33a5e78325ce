// Package lineoverride loads manual line-formation corrections for races
// whose predicted line is known to be wrong or stale (a scratch, a late
// line change the upstream source hasn't republished, a deliberate
// analyst correction).
//
// Example configuration (lineoverride.yaml):
//
//	overrides:
//	  - race_id: "2024030112059901"
//	    line_formation: "1・23・4"
//
// The override file is optional: a missing or malformed file degrades to
// no overrides rather than failing the run, since this is a manual
// correction mechanism layered on top of the predicted line, not a
// required input.
package lineoverride

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

type (
	// Override replaces the predicted line formation for one race.
	Override struct {
		RaceID        string `yaml:"race_id"`
		LineFormation string `yaml:"line_formation"`
	}

	// Config holds the overrides loaded from a lineoverride YAML file.
	Config struct {
		Overrides []Override `yaml:"overrides"`
	}
)

// Load reads path and returns a race id -> line formation map. A missing
// file (logged at debug level), an empty file (not logged), and an
// unreadable file or invalid YAML (logged as a warning) all yield an empty
// map rather than an error, since line overrides are an optional
// correction layer.
func Load(path string, logger *slog.Logger) map[string]string {
	overrides := make(map[string]string)

	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted pipeline config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("line override file not found, continuing without overrides", "path", path)
			return overrides
		}
		logger.Warn("failed to read line override file, continuing without overrides", "path", path, "error", err)
		return overrides
	}

	if len(data) == 0 {
		return overrides
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Warn("failed to parse line override file, continuing without overrides", "path", path, "error", err)
		return overrides
	}

	for _, o := range cfg.Overrides {
		if o.RaceID == "" || o.LineFormation == "" {
			continue
		}
		overrides[o.RaceID] = o.LineFormation
	}
	return overrides
}
