/*
package sd implements a read-only SD card driver over SPI. A [Card] brings
the card out of its power-on state and then serves 512 byte blocks through
the [blockdev.Accessor] interface.
*/
package sd

import (
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/soypat/sdfat/blockdev"
)

// SPI is a full duplex SPI bus. Tx writes w while reading into r; either may
// be nil, otherwise they have the same length.
type SPI interface {
	Tx(w, r []byte) error
	Transfer(b byte) (byte, error)
}

// Pin is the card's chip select line. Low selects the card.
type Pin interface {
	High()
	Low()
}

var (
	ErrNoResponse   = errors.New("sd: card did not respond")
	ErrNoIdle       = errors.New("sd: card did not enter idle state")
	ErrVoltageCheck = errors.New("sd: voltage check failed")
	ErrInitTimeout  = errors.New("sd: card initialization timed out")
	ErrNoDataToken  = errors.New("sd: data start token not found")
	ErrNotReady     = errors.New("sd: card not initialized")
)

// State is the bring-up state of a card.
type State uint8

const (
	StatePowerOn State = iota
	StateIdle
	StateVoltageChecked
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePowerOn:
		return "power-on"
	case StateIdle:
		return "idle"
	case StateVoltageChecked:
		return "voltage-checked"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Config configures a Card. Zero fields take their defaults.
type Config struct {
	// InitRetries is the number of CMD55+ACMD41 attempts. Default 4.
	InitRetries int
	// RetryDelay is the wait between ACMD41 attempts. Default 10ms.
	RetryDelay time.Duration
	// ReadWindow is the number of bytes clocked after CMD17 while looking
	// for the data token and payload. Default 700.
	ReadWindow int
	Logger     logrus.FieldLogger
	// Sleep waits between retries. Default time.Sleep.
	Sleep func(time.Duration)
}

const (
	defaultInitRetries = 4
	defaultRetryDelay  = 10 * time.Millisecond
	defaultReadWindow  = 700
)

// Card is an SD card attached to an SPI bus. It is not safe for concurrent use.
type Card struct {
	spi   SPI
	cs    Pin
	cfg   Config
	log   logrus.FieldLogger
	state State
	ff    []byte // All 0xFF, clocked out while reading.
	rx    []byte
}

var _ blockdev.Accessor = (*Card)(nil)

// New returns a card in the power-on state. Call Init before reading.
func New(spi SPI, cs Pin, cfg Config) *Card {
	if cfg.InitRetries <= 0 {
		cfg.InitRetries = defaultInitRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.ReadWindow <= 0 {
		cfg.ReadWindow = defaultReadWindow
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	window := max(cfg.ReadWindow, cmdWindow)
	ff := make([]byte, window)
	for i := range ff {
		ff[i] = 0xFF
	}
	return &Card{
		spi: spi,
		cs:  cs,
		cfg: cfg,
		log: log,
		ff:  ff,
		rx:  make([]byte, window),
	}
}

// State returns the bring-up state of the card.
func (c *Card) State() State { return c.state }

// Init runs the SPI mode bring-up sequence: 80 wake clocks, CMD0 to enter
// idle, CMD8 to check the voltage range and CMD55+ACMD41 polled until the
// card leaves idle. On failure the card is left in StateFailed.
func (c *Card) Init() error {
	c.setState(StatePowerOn)
	err := c.init()
	if err != nil {
		c.log.WithError(err).Error("sd: init failed")
		c.setState(StateFailed)
		return err
	}
	c.setState(StateReady)
	return nil
}

func (c *Card) init() error {
	c.cs.High()
	for i := 0; i < wakeBytes; i++ {
		if _, err := c.spi.Transfer(0xFF); err != nil {
			return errors.Wrap(err, "sd: wake clocks")
		}
	}

	resp, err := c.command(cmd0, cmdWindow)
	if err != nil {
		return err
	}
	if resp[0] != r1Idle {
		return errors.Wrapf(ErrNoIdle, "R1 %#02x", resp[0])
	}
	c.setState(StateIdle)

	resp, err = c.command(cmd8, cmdWindow)
	if err != nil {
		return err
	}
	if len(resp) <= cmd8PatternOff || resp[cmd8VoltageOff] != 0x01 || resp[cmd8PatternOff] != 0xAA {
		return errors.Wrapf(ErrVoltageCheck, "R7 % x", resp)
	}
	c.setState(StateVoltageChecked)

	c.setState(StateInitializing)
	var r1 byte = 0xFF
	for attempt := 1; attempt <= c.cfg.InitRetries; attempt++ {
		if _, err = c.command(cmd55, cmdWindow); err != nil {
			return err
		}
		resp, err = c.command(acmd41, cmdWindow)
		if err != nil {
			return err
		}
		r1 = resp[0]
		if r1 == 0 {
			return nil
		}
		c.log.WithFields(logrus.Fields{"attempt": attempt, "r1": r1}).Info("sd: card busy, retrying ACMD41")
		if attempt < c.cfg.InitRetries {
			c.cfg.Sleep(c.cfg.RetryDelay)
		}
	}
	return errors.Wrapf(ErrInitTimeout, "%d attempts, last R1 %#02x", c.cfg.InitRetries, r1)
}

func (c *Card) setState(s State) {
	if c.state != s {
		c.log.WithFields(logrus.Fields{"from": c.state, "to": s}).Debug("sd: state")
	}
	c.state = s
}

// command selects the card, sends a spacer byte and the frame, then clocks
// a response window of n bytes. It returns the window starting at R1.
func (c *Card) command(cmd command, n int) ([]byte, error) {
	c.cs.Low()
	defer c.cs.High()
	var frame [1 + len(cmd)]byte
	frame[0] = 0xFF
	copy(frame[1:], cmd[:])
	if err := c.spi.Tx(frame[:], nil); err != nil {
		return nil, errors.Wrapf(err, "sd: sending CMD%d", cmd.index())
	}
	window := c.rx[:n]
	if err := c.spi.Tx(c.ff[:n], window); err != nil {
		return nil, errors.Wrapf(err, "sd: reading CMD%d response", cmd.index())
	}
	r1 := firstResponse(window)
	if r1 < 0 {
		return nil, errors.Wrapf(ErrNoResponse, "CMD%d", cmd.index())
	}
	return window[r1:], nil
}

// BlockSize returns 512.
func (c *Card) BlockSize() int { return blockdev.BlockSize }

// ReadBlock reads a single block with CMD17. Blocks are addressed by index,
// as done by high capacity cards.
func (c *Card) ReadBlock(dst []byte, block int64) error {
	if len(dst) != blockdev.BlockSize {
		return blockdev.ErrBadBuffer
	} else if c.state != StateReady {
		return ErrNotReady
	} else if block < 0 || block > 0xFFFF_FFFF {
		return errors.Wrapf(blockdev.ErrBlockOutOfRange, "block %d", block)
	}
	resp, err := c.command(cmd17(uint32(block)), c.cfg.ReadWindow)
	if err != nil {
		return err
	}
	switch r1 := resp[0]; {
	case r1&(r1AddressError|r1ParamError) != 0:
		return errors.Wrapf(blockdev.ErrBlockOutOfRange, "block %d: R1 %#02x", block, r1)
	case r1 != 0:
		return errors.Wrapf(blockdev.ErrMisc, "block %d: R1 %#02x", block, r1)
	}
	data := resp[1:]
	tok := -1
	for i, b := range data {
		if b == dataStartToken {
			tok = i
			break
		}
	}
	if tok < 0 || len(data)-(tok+1) < blockdev.BlockSize {
		c.log.WithFields(logrus.Fields{"block": block, "token": tok}).Warn("sd: data token missing")
		return errors.Wrapf(ErrNoDataToken, "block %d", block)
	}
	copy(dst, data[tok+1:tok+1+blockdev.BlockSize])
	return nil
}

// WriteBlock is not supported and always returns blockdev.ErrMisc.
func (c *Card) WriteBlock(data []byte, block int64) error {
	return errors.Wrap(blockdev.ErrMisc, "sd: card is read-only")
}
