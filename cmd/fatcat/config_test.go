package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	err := os.WriteFile(path, []byte(`
spidev:
  path: /dev/spidev0.0
  speed: 1000000
card:
  init-retries: 8
  retry-delay: 25ms
  read-window: 600
partition: 1
`), 0o644)
	require.NoError(t, err)

	cfg := defaultConfig()
	require.NoError(t, readConfig(path, &cfg))
	assert.Equal(t, "/dev/spidev0.0", cfg.SPIDev.Path)
	assert.Equal(t, uint32(1000000), cfg.SPIDev.Speed)
	assert.Equal(t, uint8(0), cfg.SPIDev.Mode)
	assert.Equal(t, CardConfig{InitRetries: 8, RetryDelay: 25 * time.Millisecond, ReadWindow: 600}, cfg.Card)
	assert.Equal(t, 1, cfg.Partition)
	assert.Equal(t, 512, cfg.ChunkSize, "unset keys keep their defaults")
	assert.NoError(t, cfg.validate())
}

func TestReadConfigMissing(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, readConfig(filepath.Join(t.TempDir(), "nope.yml"), &cfg))
	assert.Equal(t, defaultConfig(), cfg)
}

func TestReadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("partition: [1, 2"), 0o644))
	cfg := defaultConfig()
	assert.Error(t, readConfig(path, &cfg))
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		mod  func(*GlobalConfig)
		ok   bool
	}{
		{"defaults", func(*GlobalConfig) {}, true},
		{"image", func(c *GlobalConfig) { c.Image = "card.img" }, true},
		{"image and spidev", func(c *GlobalConfig) { c.Image = "card.img"; c.SPIDev.Path = "/dev/spidev0.0" }, false},
		{"slot 3", func(c *GlobalConfig) { c.Partition = 3 }, true},
		{"slot 4", func(c *GlobalConfig) { c.Partition = 4 }, false},
		{"slot -2", func(c *GlobalConfig) { c.Partition = -2 }, false},
		{"negative chunk", func(c *GlobalConfig) { c.ChunkSize = -1 }, false},
		{"mode 4", func(c *GlobalConfig) { c.SPIDev.Mode = 4 }, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mod(&cfg)
			err := cfg.validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSetupLogging(t *testing.T) {
	assert.NoError(t, setupLogging(false, 2, true))
	assert.NoError(t, setupLogging(true, 1, false))
	assert.Error(t, setupLogging(true, 1, true))
	assert.Error(t, setupLogging(false, 4, true))
}
