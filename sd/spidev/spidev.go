/*
package spidev drives an SD card from a Linux host through the kernel's
spidev interface (/dev/spidevB.C). A [Device] satisfies [sd.SPI] and its
[Device.CS] method returns the matching [sd.Pin].
*/
package spidev

import "github.com/pkg/errors"

// ErrUnsupportedPlatform is returned by Open on systems without spidev.
var ErrUnsupportedPlatform = errors.New("spidev: only supported on linux")

// Config configures the bus. Zero fields take their defaults.
type Config struct {
	// SpeedHz is the maximum clock rate. Default 400kHz, the highest rate
	// allowed before a card is initialized.
	SpeedHz uint32
	// Mode is the SPI mode (0..3). SD cards use mode 0.
	Mode uint8
	// BitsPerWord defaults to 8.
	BitsPerWord uint8
}

const defaultSpeedHz = 400_000

func (cfg *Config) setDefaults() {
	if cfg.SpeedHz == 0 {
		cfg.SpeedHz = defaultSpeedHz
	}
	if cfg.BitsPerWord == 0 {
		cfg.BitsPerWord = 8
	}
}
