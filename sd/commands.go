package sd

// command is a 6 byte SPI mode command frame: 0x40|index, a big-endian
// argument and a CRC7 byte with the end bit set. Only CMD0 and CMD8 need a
// valid CRC in SPI mode, the rest are sent with fixed values.
type command [6]byte

const (
	cmdGoIdleState     = 0  // CMD0
	cmdSendIfCond      = 8  // CMD8
	cmdReadSingleBlock = 17 // CMD17
	cmdAppCmd          = 55 // CMD55
	acmdSendOpCond     = 41 // ACMD41
)

var (
	cmd0   = command{0x40 | cmdGoIdleState, 0x00, 0x00, 0x00, 0x00, 0x95}
	cmd8   = command{0x40 | cmdSendIfCond, 0x00, 0x00, 0x01, 0xAA, 0x87}
	cmd55  = command{0x40 | cmdAppCmd, 0x00, 0x00, 0x00, 0x00, 0x65}
	acmd41 = command{0x40 | acmdSendOpCond, 0x40, 0x00, 0x00, 0x00, 0x77} // HCS set.
)

// cmd17 returns the single block read command for block.
func cmd17(block uint32) command {
	return command{
		0x40 | cmdReadSingleBlock,
		byte(block >> 24),
		byte(block >> 16),
		byte(block >> 8),
		byte(block),
		0xFF,
	}
}

func (c command) index() byte { return c[0] &^ 0x40 }

// R1 response bits.
const (
	r1Idle          = 1 << 0
	r1EraseReset    = 1 << 1
	r1IllegalCmd    = 1 << 2
	r1CRCError      = 1 << 3
	r1EraseSeqError = 1 << 4
	r1AddressError  = 1 << 5
	r1ParamError    = 1 << 6
)

const (
	dataStartToken = 0xFE
	// cmd8 echo: voltage accepted (0x01) and check pattern (0xAA) at
	// offsets 3 and 4 after R1.
	cmd8VoltageOff = 3
	cmd8PatternOff = 4
	// Response window for commands other than CMD17.
	cmdWindow = 8
	// Bytes clocked with chip select high before the first command.
	wakeBytes = 10
)

// firstResponse returns the index of the first byte in window that is not
// 0xFF, or -1 if the card never answered.
func firstResponse(window []byte) int {
	for i, b := range window {
		if b != 0xFF {
			return i
		}
	}
	return -1
}
