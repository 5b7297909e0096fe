package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadReturnsDefaultsWhenNoFilesPresent(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadAppliesJSONOverride(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".rigger"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".rigger", "config.json"),
		[]byte(`{"vector_dimension": 1536}`), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, 1536, cfg.VectorDimension)
	require.Equal(t, DefaultRouting(), cfg.Routing) // untouched fields keep their defaults
}

func TestLoadMergesYAMLOnTopOfJSON(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".rigger"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".rigger", "config.json"),
		[]byte(`{"vector_dimension": 1536}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".rigger", "config.yaml"),
		[]byte("routing:\n  threshold: 9\n"), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, 1536, cfg.VectorDimension) // JSON value survives the YAML merge
	require.Equal(t, float64(9), cfg.Routing.Threshold)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".rigger"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".rigger", "config.json"),
		[]byte(`{not json`), 0o644))

	_, err := Load(root)
	require.Error(t, err)
}

func TestModelForFallsBackToDefaultWhenRoleUnspecialised(t *testing.T) {
	cfg := Default()
	require.Equal(t, cfg.DefaultModel, cfg.ModelFor(RoleEnhancer))

	cfg.RoleModels[RoleEnhancer] = ProviderModel{Provider: "genai", Model: "gemini-2.5-pro"}
	require.Equal(t, ProviderModel{Provider: "genai", Model: "gemini-2.5-pro"}, cfg.ModelFor(RoleEnhancer))
}
