package integration

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPreset_hasReasonableDefaults(t *testing.T) {
	cfg := DefaultPreset()
	require.Equal(t, "default", cfg.Name)
	require.True(t, cfg.CacheMB > 0 && cfg.CacheMB <= 10000)
	require.Positive(t, cfg.Handles)
	require.Positive(t, cfg.VDFCacheSize)
	require.True(t, cfg.Prover)
	require.False(t, cfg.InMemory)
}

func TestPresets_overrideDefaults(t *testing.T) {
	def := DefaultPreset()

	lite := LitePreset()
	require.Less(t, lite.CacheMB, def.CacheMB)
	require.False(t, lite.Prover)
	require.True(t, lite.EnableMetrics)

	full := FullPreset()
	require.Greater(t, full.CacheMB, def.CacheMB)
	require.Greater(t, full.MaxPendingJobs, def.MaxPendingJobs)
	require.True(t, full.Prover)

	light := LightPreset()
	require.True(t, light.InMemory)
	require.False(t, light.Prover)
}

func TestPresets_haveDistinctValues(t *testing.T) {
	all := []PresetConfig{DefaultPreset(), LitePreset(), FullPreset(), LightPreset()}
	seen := make(map[PresetConfig]bool)
	for _, p := range all {
		require.False(t, seen[p], "duplicate preset %s", p.Name)
		seen[p] = true
	}
}

func TestGetPresetByName(t *testing.T) {
	for _, tc := range []struct {
		name string
		want string
	}{
		{"", "default"},
		{"default", "default"},
		{"lite", "lite"},
		{"full", "full"},
		{"light", "light"},
	} {
		t.Run(tc.want, func(t *testing.T) {
			p, err := GetPresetByName(tc.name)
			require.NoError(t, err)
			require.Equal(t, tc.want, p.Name)
		})
	}

	_, err := GetPresetByName("archive")
	require.Error(t, err)
	require.Contains(t, err.Error(), "archive")
}
