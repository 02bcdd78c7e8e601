package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
[renderer]
backend = "null"
frames = 10

[descriptor]
block_size = 8
`))
	require.NoError(t, err)

	assert.Equal(t, BackendNull, cfg.Renderer.Backend)
	assert.Equal(t, 10, cfg.Renderer.Frames)
	assert.Equal(t, uint32(8), cfg.Descriptor.BlockSize)
	// untouched sections stay at their defaults
	assert.Equal(t, uint32(1280), cfg.Renderer.Width)
	assert.Equal(t, 2, cfg.Jobs.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"backend":    "[renderer]\nbackend = \"metal\"\n",
		"block size": "[descriptor]\nblock_size = 0\n",
		"workers":    "[jobs]\nworkers = 0\n",
		"log level":  "[log]\nlevel = \"loud\"\n",
		"syntax":     "[renderer\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.Name = "roundtrip"
	cfg.Assets.Watch = true
	data, err := cfg.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "framegraph.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, lvl)
	assert.Equal(t, "warn", lvl.String())
}
