package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// GlobalConfig is the tool configuration read from the config file.
// Command line flags take precedence.
type GlobalConfig struct {
	Image     string       `yaml:"image"`
	SPIDev    SPIDevConfig `yaml:"spidev"`
	Card      CardConfig   `yaml:"card"`
	Partition int          `yaml:"partition"`
	ChunkSize int          `yaml:"chunk-size"`
}

// SPIDevConfig selects a live card on a spidev bus.
type SPIDevConfig struct {
	Path  string `yaml:"path"`
	Speed uint32 `yaml:"speed"`
	Mode  uint8  `yaml:"mode"`
}

// CardConfig tunes SD card bring-up and reads.
type CardConfig struct {
	InitRetries int           `yaml:"init-retries"`
	RetryDelay  time.Duration `yaml:"retry-delay"`
	ReadWindow  int           `yaml:"read-window"`
}

// firstFAT32 selects the first FAT32 partition of the MBR.
const firstFAT32 = -1

func defaultConfig() GlobalConfig {
	return GlobalConfig{
		Partition: firstFAT32,
		ChunkSize: 512,
	}
}

func defaultConfigPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "fatcat", "config.yml")
}

// readConfig merges the YAML file at path into cfg. A missing file is not
// an error.
func readConfig(path string, cfg *GlobalConfig) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to read %q", path)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return errors.Wrapf(err, "failed to parse %q", path)
	}
	return nil
}

func (cfg *GlobalConfig) validate() error {
	switch {
	case cfg.Image != "" && cfg.SPIDev.Path != "":
		return errors.New("image and spidev are mutually exclusive")
	case cfg.Partition < firstFAT32 || cfg.Partition > 3:
		return errors.Errorf("partition must be -1 or a slot 0..3, got %d", cfg.Partition)
	case cfg.ChunkSize < 0:
		return errors.Errorf("chunk-size must not be negative, got %d", cfg.ChunkSize)
	case cfg.SPIDev.Mode > 3:
		return errors.Errorf("spidev mode must be 0..3, got %d", cfg.SPIDev.Mode)
	}
	return nil
}
