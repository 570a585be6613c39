package fat

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/pkg/errors"
	"github.com/soypat/sdfat/blockdev"
	"github.com/stretchr/testify/require"
)

const blkmapsize = blockdev.BlockSize

// BlockMap is a sparse block device. Unwritten blocks read as zeros.
// Every read is logged so tests can check which blocks were touched.
type BlockMap struct {
	data  map[int64]*[blkmapsize]byte
	fail  map[int64]bool
	reads []int64
}

var _ blockdev.Accessor = (*BlockMap)(nil)

func NewBlockMap() *BlockMap {
	return &BlockMap{
		data: make(map[int64]*[blkmapsize]byte),
		fail: make(map[int64]bool),
	}
}

func (b *BlockMap) BlockSize() int { return blkmapsize }

func (b *BlockMap) ReadBlock(dst []byte, block int64) error {
	if len(dst) != blkmapsize {
		return blockdev.ErrBadBuffer
	} else if block < 0 {
		return errors.Wrapf(blockdev.ErrBlockOutOfRange, "block %d", block)
	}
	b.reads = append(b.reads, block)
	if b.fail[block] {
		return errors.Wrapf(blockdev.ErrMisc, "injected failure at block %d", block)
	}
	if blk, ok := b.data[block]; ok {
		copy(dst, blk[:])
	} else {
		clear(dst)
	}
	return nil
}

func (b *BlockMap) WriteBlock(data []byte, block int64) error {
	return errors.Wrap(blockdev.ErrMisc, "read-only")
}

// block returns the block at idx, allocating it if needed.
func (b *BlockMap) block(idx int64) *[blkmapsize]byte {
	blk, ok := b.data[idx]
	if !ok {
		blk = new([blkmapsize]byte)
		b.data[idx] = blk
	}
	return blk
}

// put writes data starting at block idx, spilling into following blocks.
func (b *BlockMap) put(idx int64, data []byte) {
	for len(data) > 0 {
		n := copy(b.block(idx)[:], data)
		data = data[n:]
		idx++
	}
}

func (b *BlockMap) resetReads() { b.reads = b.reads[:0] }

// Test image geometry. Data region starts at testDataStart.
const (
	testPartStart     = 2048
	testReserved      = 32
	testSectorsPerFAT = 8 // 1024 FAT entries.
	testFATStart      = testPartStart + testReserved
	testDataStart     = testFATStart + 2*testSectorsPerFAT
)

type testImage struct {
	*BlockMap
	spc int
}

func newTestImage(t testing.TB, spc int) *testImage {
	t.Helper()
	img := &testImage{BlockMap: NewBlockMap(), spc: spc}
	img.put(testPartStart, makeBootSector(uint8(spc), 2))
	img.setFAT(0, 0x0FFF_FFF8)
	img.setFAT(1, 0x0FFF_FFFF)
	img.setFAT(RootCluster, 0x0FFF_FFFF)
	return img
}

func makeBootSector(spc, nfats uint8) []byte {
	b := make([]byte, bootSectorSize)
	copy(b[bsJmpBoot:], "\xEB\x58\x90")
	copy(b[bsOEMName:], "MSWIN4.1")
	binary.LittleEndian.PutUint16(b[11:], blkmapsize)
	b[13] = spc
	binary.LittleEndian.PutUint16(b[14:], testReserved)
	b[16] = nfats
	b[21] = 0xF8
	binary.LittleEndian.PutUint16(b[24:], 63)
	binary.LittleEndian.PutUint16(b[26:], 255)
	binary.LittleEndian.PutUint32(b[28:], testPartStart)
	binary.LittleEndian.PutUint32(b[32:], 8192)
	binary.LittleEndian.PutUint32(b[36:], testSectorsPerFAT)
	binary.LittleEndian.PutUint32(b[bpbRootClus32:], RootCluster)
	binary.LittleEndian.PutUint16(b[48:], 1)
	binary.LittleEndian.PutUint16(b[50:], 6)
	b[64] = 0x80
	b[bsBootSig32] = ebpbBootSig
	binary.LittleEndian.PutUint32(b[67:], 0x1234abcd)
	copy(b[71:], "SDFAT TEST ")
	copy(b[82:], "FAT32   ")
	b[bs55AA], b[bs55AA+1] = 0x55, 0xAA
	return b
}

func (img *testImage) setFAT(cluster, value uint32) {
	off := int64(cluster) * sizeFATEntry
	blk := img.block(testFATStart + off/blkmapsize)
	binary.LittleEndian.PutUint32(blk[off%blkmapsize:], value)
}

// chain links clusters in order and terminates the last one.
func (img *testImage) chain(clusters ...uint32) {
	for i, c := range clusters {
		next := uint32(0x0FFF_FFFF)
		if i+1 < len(clusters) {
			next = clusters[i+1]
		}
		img.setFAT(c, next)
	}
}

func (img *testImage) clusterBlock(cluster uint32) int64 {
	return testDataStart + int64(img.spc)*int64(cluster-2)
}

func (img *testImage) clusterSize() int { return img.spc * blkmapsize }

func (img *testImage) writeCluster(cluster uint32, data []byte) {
	if len(data) > img.clusterSize() {
		panic("data larger than cluster")
	}
	img.put(img.clusterBlock(cluster), data)
}

// writeFile spreads data over clusters and chains them.
func (img *testImage) writeFile(data []byte, clusters ...uint32) {
	cs := img.clusterSize()
	for _, c := range clusters {
		n := min(cs, len(data))
		img.writeCluster(c, data[:n])
		data = data[n:]
	}
	img.chain(clusters...)
}

func (img *testImage) mount(t testing.TB) *Volume {
	t.Helper()
	v := new(Volume)
	require.NoError(t, v.Mount(img, testPartStart))
	return v
}

// shortSlot builds an 8.3 directory entry. name11 is the raw 11 byte name.
func shortSlot(name11 string, attr Attr, cluster, size uint32) []byte {
	if len(name11) != 11 {
		panic("short name must be 11 bytes")
	}
	s := make([]byte, sizeDirEntry)
	copy(s, name11)
	s[dirAttrOff] = byte(attr)
	binary.LittleEndian.PutUint16(s[dirFstClusHIOff:], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(s[dirFstClusLOOff:], uint16(cluster))
	binary.LittleEndian.PutUint32(s[dirFileSizeOff:], size)
	return s
}

// lfnSlots builds the long filename entries for name in on-disk order,
// highest sequence number first.
func lfnSlots(name string) [][]byte {
	units := utf16.Encode([]rune(name))
	nslots := (len(units) + lfnChars - 1) / lfnChars
	padded := make([]uint16, nslots*lfnChars)
	for i := range padded {
		switch {
		case i < len(units):
			padded[i] = units[i]
		case i == len(units):
			padded[i] = 0x0000
		default:
			padded[i] = 0xFFFF
		}
	}
	slots := make([][]byte, nslots)
	for seq := 1; seq <= nslots; seq++ {
		s := make([]byte, sizeDirEntry)
		s[ldirOrdOff] = byte(seq)
		if seq == nslots {
			s[ldirOrdOff] |= 0x40
		}
		s[dirAttrOff] = byte(attrLFN)
		part := padded[(seq-1)*lfnChars : seq*lfnChars]
		var raw [2 * lfnChars]byte
		for i, u := range part {
			binary.LittleEndian.PutUint16(raw[2*i:], u)
		}
		copy(s[1:11], raw[0:10])
		copy(s[14:26], raw[10:22])
		copy(s[28:32], raw[22:26])
		slots[nslots-seq] = s
	}
	return slots
}

// longEntry returns the LFN slots for name followed by its short entry.
func longEntry(name, short11 string, attr Attr, cluster, size uint32) [][]byte {
	return append(lfnSlots(name), shortSlot(short11, attr, cluster, size))
}

func joinSlots(groups ...[][]byte) []byte {
	var dir []byte
	for _, g := range groups {
		for _, s := range g {
			dir = append(dir, s...)
		}
	}
	return dir
}

func one(s []byte) [][]byte { return [][]byte{s} }
