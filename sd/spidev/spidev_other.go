//go:build !linux

package spidev

// Device is unavailable on this platform.
type Device struct{}

// Open always returns ErrUnsupportedPlatform.
func Open(path string, cfg Config) (*Device, error) {
	return nil, ErrUnsupportedPlatform
}

func (d *Device) Close() error                  { return ErrUnsupportedPlatform }
func (d *Device) Tx(w, r []byte) error          { return ErrUnsupportedPlatform }
func (d *Device) Transfer(b byte) (byte, error) { return 0, ErrUnsupportedPlatform }
func (d *Device) CS() *ChipSelect               { return &ChipSelect{} }

// ChipSelect is a no-op on this platform.
type ChipSelect struct{}

func (cs *ChipSelect) Low()  {}
func (cs *ChipSelect) High() {}
