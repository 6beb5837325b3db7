package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sit/internal/scan"
)

func TestLoadReturnsDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, scan.DefaultConfig().PatchThresholdRatio, cfg.PatchThresholdRatio)
}

func TestLoadMergesPresentFieldsOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"extra_ignores": ["vendor"],
		"patch_threshold_ratio": 0.25
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.ExtraIgnores, "vendor")
	assert.Equal(t, 0.25, cfg.PatchThresholdRatio)
	assert.NotEmpty(t, cfg.BinaryExtensions, "unset fields should still fall back to defaults")
}

func TestLoadForRepoHonorsSitEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".sit"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".sit", "config.staging.json"), []byte(`{"patch_threshold_ratio": 0.1}`), 0644))

	t.Setenv("SIT_ENV", "staging")
	cfg, err := LoadForRepo(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.PatchThresholdRatio)
}
