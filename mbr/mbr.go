/*
package mbr implements a Master Boot Record partition table decoder.
*/
package mbr

import (
	"encoding/binary"
	"strconv"

	"github.com/pkg/errors"
	"github.com/soypat/sdfat/internal/bytedec"
)

const (
	mbrLen           = 512
	pteLen           = 16 // partition table entry length
	bootSignatureOff = 510
	BootSignature    = 0xAA55
)

// Partition table entry offsets, in on-disk order.
var pteOffsets = [4]int{0x1BE, 0x1CE, 0x1DE, 0x1EE}

// ErrBadLength is returned when the MBR block is not 512 bytes long.
var ErrBadLength = errors.New("mbr must be 512 bytes")

// MBR is a decoded Master Boot Record. A nil slot is an unused entry,
// which is the case iff its partition type byte is 0.
type MBR struct {
	Partitions [4]*PartitionEntry
	signature  uint16
}

// PartitionEntry represents one of the four partition table entries in the MBR.
// See https://en.wikipedia.org/wiki/Master_boot_record#PTE for more information.
type PartitionEntry struct {
	Status         DriveAttributes
	FirstSectorCHS CHS
	Type           PartitionType
	LastSectorCHS  CHS
	// FirstSectorBlockAddress is the LBA of the first sector, little-endian on disk.
	FirstSectorBlockAddress uint32
	// SectorCount is assembled with byte 12 as the most significant byte.
	// This is the reverse of FirstSectorBlockAddress; see NumberOfLBA.
	SectorCount uint32
	raw         [4]byte
}

// FromBytes decodes the four partition table records of block.
func FromBytes(block []byte) (*MBR, error) {
	if len(block) != mbrLen {
		return nil, errors.Wrapf(ErrBadLength, "got %d", len(block))
	}
	m := &MBR{
		signature: binary.LittleEndian.Uint16(block[bootSignatureOff:]),
	}
	for i, off := range pteOffsets {
		m.Partitions[i] = parseEntry(block[off : off+pteLen])
	}
	return m, nil
}

func parseEntry(b []byte) *PartitionEntry {
	c := bytedec.NewCursor(b)
	status := c.TakeOne()
	chsStart := msbFirst(c.TakeN(3))
	ptype := c.TakeOne()
	if ptype == 0 {
		return nil
	}
	pte := &PartitionEntry{
		Status:                  DriveAttributes(status),
		FirstSectorCHS:          CHS(chsStart),
		Type:                    PartitionType(ptype),
		LastSectorCHS:           CHS(msbFirst(c.TakeN(3))),
		FirstSectorBlockAddress: c.TakeUint(4),
	}
	copy(pte.raw[:], c.TakeN(4))
	pte.SectorCount = msbFirst(pte.raw[:])
	return pte
}

func msbFirst(b []byte) (v uint32) {
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

// PartitionCount returns the number of used partition slots, 0 to 4.
func (m *MBR) PartitionCount() int {
	n := 0
	for _, p := range m.Partitions {
		if p != nil {
			n++
		}
	}
	return n
}

// BootSignature returns the trailer at offset 510. Expect 0xAA55.
func (m *MBR) BootSignature() uint16 { return m.signature }

// FirstOfType returns the first used slot whose type is one of types.
func (m *MBR) FirstOfType(types ...PartitionType) (int, *PartitionEntry) {
	for i, p := range m.Partitions {
		if p == nil {
			continue
		}
		for _, t := range types {
			if p.Type == t {
				return i, p
			}
		}
	}
	return -1, nil
}

// NumberOfLBA returns the sector count bytes read little-endian, which is
// how most partitioning tools write them.
func (pte *PartitionEntry) NumberOfLBA() uint32 {
	return binary.LittleEndian.Uint32(pte.raw[:])
}

// IsBootable returns true if the partition the PTE refers to is bootable.
func (attrs DriveAttributes) IsBootable() bool {
	return attrs&DriveAttrsBootable != 0
}

// CHS is a packed cylinder-head-sector address, first on-disk byte most
// significant. This addressing scheme is deprecated by modern operating
// systems in favor of LBA, or Logical Block Addressing.
type CHS uint32

// Tuple returns the three raw on-disk bytes in disk order.
func (chs CHS) Tuple() (head, sectorCylHi, cylinderLo uint8) {
	return uint8(chs >> 16), uint8(chs >> 8), uint8(chs)
}

// PartitionType refers to the type of partition the Partition Table Entry refers to.
type PartitionType byte

const (
	PartitionTypeUnused   PartitionType = 0x00
	PartitionTypeFAT12    PartitionType = 0x01
	PartitionTypeFAT16    PartitionType = 0x04
	PartitionTypeExtended PartitionType = 0x05
	PartitionTypeNTFS     PartitionType = 0x07 // Also includes exFAT.
	PartitionTypeFAT32CHS PartitionType = 0x0B
	PartitionTypeFAT32LBA PartitionType = 0x0C
	PartitionTypeLinux    PartitionType = 0x83
	PartitionTypeFreeBSD  PartitionType = 0xA5
	PartitionTypeAppleHFS PartitionType = 0xAF
	PartitionTypeGPT      PartitionType = 0xEE // Protective MBR.
)

func (pt PartitionType) String() string {
	switch pt {
	case PartitionTypeUnused:
		return "unused"
	case PartitionTypeFAT12:
		return "FAT12"
	case PartitionTypeFAT16:
		return "FAT16"
	case PartitionTypeExtended:
		return "extended"
	case PartitionTypeNTFS:
		return "NTFS/exFAT"
	case PartitionTypeFAT32CHS:
		return "FAT32"
	case PartitionTypeFAT32LBA:
		return "FAT32 LBA"
	case PartitionTypeLinux:
		return "Linux"
	case PartitionTypeFreeBSD:
		return "FreeBSD"
	case PartitionTypeAppleHFS:
		return "HFS"
	case PartitionTypeGPT:
		return "GPT protective"
	}
	return "0x" + strconv.FormatUint(uint64(pt), 16)
}

// DriveAttributes refers to the first byte of a Partition Table Entry. It specifies
// if the partition is bootable.
type DriveAttributes byte

const (
	DriveAttrsBootable DriveAttributes = 0x80
)
