package blockdev

import "github.com/pkg/errors"

var _ Accessor = (*Memory)(nil)

// Memory is a RAM-backed block device. It is mostly useful for tests and for
// building images before copying them elsewhere.
type Memory struct {
	blk blkIdxer
	buf []byte
}

// NewMemory returns a zeroed device of numBlocks blocks.
func NewMemory(numBlocks int) *Memory {
	return MemoryFrom(make([]byte, numBlocks*BlockSize))
}

// MemoryFrom wraps buf as a device. A trailing partial block is not addressable.
func MemoryFrom(buf []byte) *Memory {
	blk, _ := makeBlockIndexer(BlockSize)
	return &Memory{
		blk: blk,
		buf: buf[:blk.idx(int64(len(buf)))*blk.size()],
	}
}

func (m *Memory) BlockSize() int { return int(m.blk.size()) }

// NumBlocks returns the number of addressable blocks.
func (m *Memory) NumBlocks() int64 { return m.blk.idx(int64(len(m.buf))) }

// Bytes returns the backing buffer. Modifying it modifies the device.
func (m *Memory) Bytes() []byte { return m.buf }

func (m *Memory) ReadBlock(dst []byte, block int64) error {
	if int64(len(dst)) != m.blk.size() {
		return ErrBadBuffer
	}
	off, err := m.offset(block)
	if err != nil {
		return err
	}
	copy(dst, m.buf[off:off+m.blk.size()])
	return nil
}

func (m *Memory) WriteBlock(data []byte, block int64) error {
	if int64(len(data)) != m.blk.size() {
		return errors.Wrap(ErrMisc, ErrBadBuffer.Error())
	}
	off, err := m.offset(block)
	if err != nil {
		return err
	}
	copy(m.buf[off:off+m.blk.size()], data)
	return nil
}

func (m *Memory) offset(block int64) (int64, error) {
	if block < 0 || block >= m.NumBlocks() {
		return 0, errors.Wrapf(ErrBlockOutOfRange, "block %d of %d", block, m.NumBlocks())
	}
	return block * m.blk.size(), nil
}
