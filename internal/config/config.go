// Package config loads the scanner's enumerated ignore/binary/patch
// settings from an optional JSON file, per spec.md §9's design note
// that these stay configuration rather than hard-coded.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"sit/internal/scan"
)

// Config is the on-disk shape of .sit/config.json. Any field left zero
// falls back to scan.DefaultConfig()'s value.
type Config struct {
	ExtraIgnores        []string `json:"extra_ignores"`
	BinaryExtensions    []string `json:"binary_extensions"`
	BinaryProbeBytes    int      `json:"binary_probe_bytes"`
	PatchThresholdRatio float64  `json:"patch_threshold_ratio"`
	LogLevel            string   `json:"log_level"`
}

func getConfigPath(repoRoot string) string {
	env := os.Getenv("SIT_ENV")
	if env == "" {
		return fmt.Sprintf("%s/.sit/config.json", repoRoot)
	}
	return fmt.Sprintf("%s/.sit/config.%s.json", repoRoot, env)
}

// Load reads path and returns it merged over scan.DefaultConfig(). A
// missing file is not an error: it yields the defaults untouched.
func Load(path string) (scan.Config, error) {
	cfg := scan.DefaultConfig()

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	defer file.Close()

	var raw Config
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return cfg, err
	}

	if len(raw.ExtraIgnores) > 0 {
		cfg.ExtraIgnores = raw.ExtraIgnores
	}
	if len(raw.BinaryExtensions) > 0 {
		cfg.BinaryExtensions = raw.BinaryExtensions
	}
	if raw.BinaryProbeBytes > 0 {
		cfg.BinaryProbeBytes = raw.BinaryProbeBytes
	}
	if raw.PatchThresholdRatio > 0 {
		cfg.PatchThresholdRatio = raw.PatchThresholdRatio
	}

	return cfg, nil
}

// LoadForRepo is a convenience wrapper around Load(getConfigPath(root)).
func LoadForRepo(repoRoot string) (scan.Config, error) {
	return Load(getConfigPath(repoRoot))
}
