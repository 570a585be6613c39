package mbr

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putPTE(block []byte, slot int, rec [16]byte) {
	copy(block[pteOffsets[slot]:], rec[:])
}

func fat32Record(lba, count uint32) (rec [16]byte) {
	rec[0] = 0x80
	rec[1], rec[2], rec[3] = 0x20, 0x21, 0x00
	rec[4] = byte(PartitionTypeFAT32CHS)
	rec[5], rec[6], rec[7] = 0xfe, 0xff, 0xff
	binary.LittleEndian.PutUint32(rec[8:], lba)
	binary.LittleEndian.PutUint32(rec[12:], count)
	return rec
}

func TestSingleFAT32Partition(t *testing.T) {
	block := make([]byte, 512)
	putPTE(block, 0, fat32Record(2048, 0x00e8_0000))
	block[510], block[511] = 0x55, 0xaa

	m, err := FromBytes(block)
	require.NoError(t, err)
	assert.Equal(t, 1, m.PartitionCount())
	assert.Equal(t, uint16(BootSignature), m.BootSignature())

	p := m.Partitions[0]
	require.NotNil(t, p)
	assert.Equal(t, uint32(2048), p.FirstSectorBlockAddress)
	assert.Equal(t, PartitionTypeFAT32CHS, p.Type)
	assert.True(t, p.Status.IsBootable())
	assert.Equal(t, CHS(0x202100), p.FirstSectorCHS)
	assert.Equal(t, CHS(0xfeffff), p.LastSectorCHS)
	// Bytes 12..15 are 00 00 e8 00 on disk.
	assert.Equal(t, uint32(0x0000e800), p.SectorCount)
	assert.Equal(t, uint32(0x00e8_0000), p.NumberOfLBA())

	for _, slot := range m.Partitions[1:] {
		assert.Nil(t, slot)
	}
	idx, first := m.FirstOfType(PartitionTypeFAT32LBA, PartitionTypeFAT32CHS)
	assert.Equal(t, 0, idx)
	assert.Same(t, p, first)
}

func TestZeroTypeIsAbsent(t *testing.T) {
	block := make([]byte, 512)
	rec := fat32Record(63, 1000)
	putPTE(block, 0, rec)
	rec[4] = 0 // Everything else populated, type says unused.
	putPTE(block, 1, rec)
	putPTE(block, 3, fat32Record(4096, 1000))

	m, err := FromBytes(block)
	require.NoError(t, err)
	assert.NotNil(t, m.Partitions[0])
	assert.Nil(t, m.Partitions[1])
	assert.Nil(t, m.Partitions[2])
	assert.NotNil(t, m.Partitions[3])
	assert.Equal(t, 2, m.PartitionCount())
	assert.Equal(t, uint32(4096), m.Partitions[3].FirstSectorBlockAddress)
}

func TestPartitionCountRange(t *testing.T) {
	for used := 0; used <= 4; used++ {
		block := make([]byte, 512)
		for i := 0; i < used; i++ {
			putPTE(block, i, fat32Record(uint32(2048*(i+1)), 2048))
		}
		m, err := FromBytes(block)
		require.NoError(t, err)
		assert.Equal(t, used, m.PartitionCount())
	}
}

func TestFromBytesBadLength(t *testing.T) {
	for _, n := range []int{0, 511, 513, 1024} {
		_, err := FromBytes(make([]byte, n))
		assert.ErrorIs(t, err, ErrBadLength, "len %d", n)
	}
}

func TestFirstOfTypeMissing(t *testing.T) {
	block := make([]byte, 512)
	rec := fat32Record(2048, 100)
	rec[4] = byte(PartitionTypeLinux)
	putPTE(block, 0, rec)
	m, err := FromBytes(block)
	require.NoError(t, err)
	idx, p := m.FirstOfType(PartitionTypeFAT32CHS)
	assert.Equal(t, -1, idx)
	assert.Nil(t, p)
	assert.Equal(t, "Linux", m.Partitions[0].Type.String())
	assert.Equal(t, "0x42", PartitionType(0x42).String())
}

func TestCHSTuple(t *testing.T) {
	h, s, c := CHS(0x0a0b0c).Tuple()
	assert.Equal(t, [3]uint8{0x0a, 0x0b, 0x0c}, [3]uint8{h, s, c})
}
