package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_FillsDocumentedDefaults(t *testing.T) {
	path := writeConfig(t, "input_file: refs.txt\noutput_file: refs.txt\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, SelectionAllIncomplete, cfg.SelectionMode)
	require.Equal(t, QuerySmart, cfg.QueryMode)
	require.Equal(t, 6, cfg.PrimarySplit)
	require.Equal(t, 2, cfg.SecondarySplit)
	require.Equal(t, 75.0, cfg.PrimaryThreshold)
	require.Equal(t, 75.0, cfg.SecondaryThreshold)
	require.Equal(t, 1000, cfg.RateLimit.SearchMs)
	require.Equal(t, 20, cfg.ValidateTopK)
	require.Equal(t, 10, cfg.RankBatchSize)
	require.Equal(t, 18000, cfg.RankTimeoutMs)
	require.Equal(t, "BATCH_v1.0", cfg.BatchVersion)
}

func TestLoad_PreservesExplicitValuesOverDefaults(t *testing.T) {
	path := writeConfig(t, "primary_threshold: 80\nvalidate_top_k: 30\nauto_finalize: true\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 80.0, cfg.PrimaryThreshold)
	require.Equal(t, 30, cfg.ValidateTopK)
	require.True(t, cfg.AutoFinalize)
}

func TestLoad_EnvOverridesYAMLValue(t *testing.T) {
	path := writeConfig(t, "input_file: from-yaml.txt\n")
	t.Setenv("REFENRICH_INPUT_FILE", "from-env.txt")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env.txt", cfg.InputFile)
}

func TestLoad_ReturnsErrorForMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
