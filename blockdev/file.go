package blockdev

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

var _ Accessor = (*File)(nil)

// File is a read-only block device backed by an image file such as a dump
// of an SD card.
type File struct {
	blk  blkIdxer
	f    *os.File
	size int64
}

// OpenFile opens the image at path for reading.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open image")
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "stat image")
	}
	blk, _ := makeBlockIndexer(BlockSize)
	return &File{blk: blk, f: f, size: fi.Size()}, nil
}

// Close releases the underlying file.
func (f *File) Close() error { return f.f.Close() }

func (f *File) BlockSize() int { return int(f.blk.size()) }

// NumBlocks returns the number of whole blocks in the image.
func (f *File) NumBlocks() int64 { return f.blk.idx(f.size) }

func (f *File) ReadBlock(dst []byte, block int64) error {
	if int64(len(dst)) != f.blk.size() {
		return ErrBadBuffer
	}
	if block < 0 || block >= f.NumBlocks() {
		return errors.Wrapf(ErrBlockOutOfRange, "block %d of %d", block, f.NumBlocks())
	}
	n, err := f.f.ReadAt(dst, block*f.blk.size())
	if n == len(dst) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return errors.Wrapf(err, "read block %d", block)
}

// WriteBlock always fails, images are opened read-only.
func (f *File) WriteBlock(data []byte, block int64) error {
	return errors.Wrapf(ErrMisc, "write block %d: read-only image", block)
}
