/*
package blockdev defines the block transport contract used by the MBR and
FAT32 readers and ships two stand-in implementations: [Memory] for RAM-backed
images and [File] for card dumps on a host filesystem.
*/
package blockdev

import (
	"math/bits"

	"github.com/pkg/errors"
)

// BlockSize is the only block size this stack addresses.
const BlockSize = 512

// Accessor is a synchronous block device. ReadBlock fills dst completely or
// returns an error; it never returns partial data. WriteBlock errors are
// always matchable against ErrBlockOutOfRange or ErrMisc with errors.Is.
type Accessor interface {
	BlockSize() int
	ReadBlock(dst []byte, block int64) error
	WriteBlock(data []byte, block int64) error
}

var (
	// ErrBlockOutOfRange is returned when a block index lies outside the device.
	ErrBlockOutOfRange = errors.New("block out of range")
	// ErrMisc is returned for any other block access failure, including
	// writes to read-only devices.
	ErrMisc = errors.New("block access failed")
	// ErrBadBuffer is returned when a buffer is not exactly one block long.
	ErrBadBuffer = errors.New("buffer length must equal block size")
)

// blkIdxer is a helper for calculating block indexes and offsets.
type blkIdxer struct {
	blockshift int64
}

func makeBlockIndexer(blockSize int) (blkIdxer, error) {
	if blockSize <= 0 {
		return blkIdxer{}, errors.New("blockSize must be positive and non-zero")
	}
	tz := bits.TrailingZeros(uint(blockSize))
	if blockSize>>tz != 1 {
		return blkIdxer{}, errors.New("blockSize must be a power of 2")
	}
	return blkIdxer{blockshift: int64(tz)}, nil
}

// size returns the size of a block in bytes.
func (blk *blkIdxer) size() int64 { return 1 << blk.blockshift }

// idx gets the block index that contains the byte at byteIdx.
func (blk *blkIdxer) idx(byteIdx int64) int64 { return byteIdx >> blk.blockshift }
