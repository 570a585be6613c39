//go:build linux

package spidev

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ioctl requests from linux/spi/spidev.h.
const (
	iocMessage1      = 0x40206b00 // SPI_IOC_MESSAGE(1)
	iocWrMode        = 0x40016b01 // SPI_IOC_WR_MODE
	iocWrBitsPerWord = 0x40016b03 // SPI_IOC_WR_BITS_PER_WORD
	iocWrMaxSpeedHz  = 0x40046b04 // SPI_IOC_WR_MAX_SPEED_HZ
	modeNoCS         = 0x40       // SPI_NO_CS
)

// iocTransfer mirrors struct spi_ioc_transfer.
type iocTransfer struct {
	txBuf          uint64
	rxBuf          uint64
	len            uint32
	speedHz        uint32
	delayUsecs     uint16
	bitsPerWord    uint8
	csChange       uint8
	txNbits        uint8
	rxNbits        uint8
	wordDelayUsecs uint8
	pad            uint8
}

// Device is an open spidev bus. It is not safe for concurrent use.
type Device struct {
	fd   int
	cfg  Config
	held bool  // Chip select kept asserted between messages.
	err  error // Deferred error from releasing chip select.
}

// Open opens the spidev node at path and configures mode, word size and
// clock rate.
func Open(path string, cfg Config) (*Device, error) {
	cfg.setDefaults()
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "spidev: open %s", path)
	}
	d := &Device{fd: fd, cfg: cfg}
	mode := cfg.Mode
	speed := cfg.SpeedHz
	bits := cfg.BitsPerWord
	for _, set := range []struct {
		name string
		req  uintptr
		arg  unsafe.Pointer
	}{
		{"mode", iocWrMode, unsafe.Pointer(&mode)},
		{"bits per word", iocWrBitsPerWord, unsafe.Pointer(&bits)},
		{"max speed", iocWrMaxSpeedHz, unsafe.Pointer(&speed)},
	} {
		if err := d.ioctl(set.req, set.arg); err != nil {
			unix.Close(fd)
			return nil, errors.Wrapf(err, "spidev: set %s", set.name)
		}
	}
	return d, nil
}

// Close closes the device node.
func (d *Device) Close() error {
	return unix.Close(d.fd)
}

// Tx writes w while reading into r. Either may be nil.
func (d *Device) Tx(w, r []byte) error {
	if d.err != nil {
		err := d.err
		d.err = nil
		return err
	}
	if !d.held {
		return d.deselected(func() error { return d.message(w, r, false) })
	}
	return d.message(w, r, true)
}

// Transfer exchanges a single byte.
func (d *Device) Transfer(b byte) (byte, error) {
	w := [1]byte{b}
	var r [1]byte
	err := d.Tx(w[:], r[:])
	return r[0], err
}

// CS returns the chip select line of the device. While low, consecutive
// messages keep the card selected. Raising it ends the selection with one
// trailing fill byte.
func (d *Device) CS() *ChipSelect { return &ChipSelect{d: d} }

// ChipSelect implements sd.Pin on top of the kernel's chip select handling.
type ChipSelect struct {
	d *Device
}

func (cs *ChipSelect) Low() { cs.d.held = true }

func (cs *ChipSelect) High() {
	if !cs.d.held {
		return
	}
	cs.d.held = false
	fill := [1]byte{0xFF}
	if err := cs.d.message(fill[:], nil, false); err != nil {
		cs.d.err = err
	}
}

// deselected runs fn with the controller's chip select disabled so clocks
// reach the card while it is not selected. Controllers without SPI_NO_CS
// support run fn as is.
func (d *Device) deselected(fn func() error) error {
	mode := d.cfg.Mode | modeNoCS
	if d.ioctl(iocWrMode, unsafe.Pointer(&mode)) != nil {
		return fn()
	}
	err := fn()
	mode = d.cfg.Mode
	if rerr := d.ioctl(iocWrMode, unsafe.Pointer(&mode)); rerr != nil && err == nil {
		err = errors.Wrap(rerr, "spidev: restore mode")
	}
	return err
}

func (d *Device) message(w, r []byte, keepCS bool) error {
	n := len(w)
	if w == nil {
		n = len(r)
	} else if r != nil && len(r) != len(w) {
		return errors.Errorf("spidev: tx length %d != rx length %d", len(w), len(r))
	}
	if n == 0 {
		return nil
	}
	tr := iocTransfer{
		len:         uint32(n),
		speedHz:     d.cfg.SpeedHz,
		bitsPerWord: d.cfg.BitsPerWord,
	}
	if w != nil {
		tr.txBuf = uint64(uintptr(unsafe.Pointer(&w[0])))
	}
	if r != nil {
		tr.rxBuf = uint64(uintptr(unsafe.Pointer(&r[0])))
	}
	if keepCS {
		tr.csChange = 1
	}
	err := d.ioctl(iocMessage1, unsafe.Pointer(&tr))
	runtime.KeepAlive(w)
	runtime.KeepAlive(r)
	if err != nil {
		return errors.Wrap(err, "spidev: message")
	}
	return nil
}

func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
