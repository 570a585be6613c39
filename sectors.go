package fat

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/soypat/sdfat/internal/bytedec"
)

// Boot sector offsets.
const (
	bsJmpBoot      = 0
	bsOEMName      = 3
	bpbBytsPerSec  = 11 // Start of the EBPB.
	bpbFATSz16     = 22
	bpbFSVer32     = 42
	bpbRootClus32  = 44
	bsBootSig32    = 66
	bsBootCode32   = 90
	bsEBPBEnd      = 509
	bs55AA         = 510
	bootSectorSize = 512
	ebpbBootSig    = 0x29
)

// Directory entry offsets.
const (
	dirNameOff       = 0
	dirExtOff        = 8
	dirAttrOff       = 11
	dirFstClusHIOff  = 20
	dirModTimeOff    = 22
	dirFstClusLOOff  = 26
	dirFileSizeOff   = 28
	ldirOrdOff       = 0
	dirDeletedMarker = 0xE5
	dirEndMarker     = 0x00
)

// BootSector is the FAT32 volume boot record: the DOS 2.0 and 3.31 BIOS
// Parameter Blocks followed by the DOS 7.1 extension. It is parsed once on
// mount and never changes afterwards.
type BootSector struct {
	JumpInstruction [3]byte
	OEMName         [8]byte

	// DOS 2.0 BPB.
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumberOfFATs      uint8
	RootDirEntries    uint16
	TotalSectors16    uint16
	MediaDescriptor   uint8

	// DOS 3.31 BPB.
	SectorsPerTrack uint16
	HeadsPerDisk    uint16
	HiddenSectors   uint32
	TotalSectors32  uint32

	// DOS 7.1 EBPB.
	SectorsPerFAT      uint32
	Flags              uint16
	Version            uint16
	RootCluster        uint32
	FSInfoSector       uint16
	BackupBootSector   uint16
	DriveNumber        uint8
	BootSignature      uint8
	VolumeSerialNumber uint32
	VolumeLabel        [11]byte
	FilesystemType     [8]byte
}

// ParseBootSector decodes a 512 byte FAT32 boot sector. It fails if the
// trailer is not 0x55,0xAA or the extended boot signature is not 0x29.
func ParseBootSector(b []byte) (BootSector, error) {
	var bs BootSector
	if len(b) != bootSectorSize {
		return bs, errors.Wrapf(ErrBadLength, "got %d bytes", len(b))
	}
	if b[bs55AA] != 0x55 || b[bs55AA+1] != 0xAA {
		return bs, errors.Wrapf(ErrBadTrailer, "got %#02x %#02x", b[bs55AA], b[bs55AA+1])
	}
	copy(bs.JumpInstruction[:], b[bsJmpBoot:])
	copy(bs.OEMName[:], b[bsOEMName:])

	c := bytedec.NewCursor(b[bpbBytsPerSec:bsEBPBEnd])
	bs.BytesPerSector = uint16(c.TakeUint(2))
	bs.SectorsPerCluster = c.TakeOne()
	bs.ReservedSectors = uint16(c.TakeUint(2))
	bs.NumberOfFATs = c.TakeOne()
	bs.RootDirEntries = uint16(c.TakeUint(2))
	bs.TotalSectors16 = uint16(c.TakeUint(2))
	bs.MediaDescriptor = c.TakeOne()
	c.Skip(2) // 16 bit sectors per FAT, always 0 on FAT32.

	bs.SectorsPerTrack = uint16(c.TakeUint(2))
	bs.HeadsPerDisk = uint16(c.TakeUint(2))
	bs.HiddenSectors = c.TakeUint(4)
	bs.TotalSectors32 = c.TakeUint(4)

	bs.SectorsPerFAT = c.TakeUint(4)
	bs.Flags = uint16(c.TakeUint(2))
	bs.Version = uint16(c.TakeUint(2))
	bs.RootCluster = c.TakeUint(4)
	bs.FSInfoSector = uint16(c.TakeUint(2))
	bs.BackupBootSector = uint16(c.TakeUint(2))
	c.Skip(12)
	bs.DriveNumber = c.TakeOne()
	c.Skip(1)
	bs.BootSignature = c.TakeOne()
	bs.VolumeSerialNumber = c.TakeUint(4)
	copy(bs.VolumeLabel[:], c.TakeN(11))
	copy(bs.FilesystemType[:], c.TakeN(8))

	if bs.BootSignature != ebpbBootSig {
		return BootSector{}, errors.Wrapf(ErrBadSignature, "got %#02x", bs.BootSignature)
	}
	return bs, nil
}

// TotalSectors returns the number of sectors in the volume.
func (bs *BootSector) TotalSectors() uint32 {
	if bs.TotalSectors16 != 0 {
		return uint32(bs.TotalSectors16)
	}
	return bs.TotalSectors32
}

// BytesPerCluster returns the size of a cluster in bytes.
func (bs *BootSector) BytesPerCluster() uint32 {
	return uint32(bs.SectorsPerCluster) * uint32(bs.BytesPerSector)
}

func (bs *BootSector) String() string {
	return string(bs.Appendf(nil, '\n'))
}

func labelAppend(dst []byte, label string, data []byte, sep byte) []byte {
	if len(data) == 0 {
		return dst
	}
	dst = append(dst, label...)
	dst = append(dst, ':')
	dst = append(dst, data...)
	dst = append(dst, sep)
	return dst
}

func labelAppendUint32(label string, dst []byte, data uint32, sep byte) []byte {
	dst = append(dst, label...)
	dst = append(dst, ':')
	dst = strconv.AppendUint(dst, uint64(data), 10)
	dst = append(dst, sep)
	return dst
}

// Appendf appends a human readable "Field:value" listing of the boot sector
// to dst, each field followed by separator.
func (bs *BootSector) Appendf(dst []byte, separator byte) []byte {
	appendData := func(name string, data []byte) {
		dst = labelAppend(dst, name, data, separator)
	}
	appendInt := func(name string, data uint32) {
		dst = labelAppendUint32(name, dst, data, separator)
	}
	appendData("OEM", clipname(bs.OEMName[:]))
	appendData("FSType", clipname(bs.FilesystemType[:]))
	appendData("VolumeLabel", clipname(bs.VolumeLabel[:]))
	appendInt("VolumeSerialNumber", bs.VolumeSerialNumber)
	appendInt("VolumeOffset", bs.HiddenSectors)
	appendInt("SectorSize", uint32(bs.BytesPerSector))
	appendInt("SectorsPerCluster", uint32(bs.SectorsPerCluster))
	appendInt("ReservedSectors", uint32(bs.ReservedSectors))
	appendInt("NumberOfFATs", uint32(bs.NumberOfFATs))
	appendInt("TotalSectors", bs.TotalSectors())
	appendInt("SectorsPerFAT", bs.SectorsPerFAT)
	appendInt("RootCluster", bs.RootCluster)
	appendInt("FSInfo", uint32(bs.FSInfoSector))
	appendInt("DriveNumber", uint32(bs.DriveNumber))
	if bs.Version != 0 {
		appendInt("Version", uint32(bs.Version))
	}
	return dst
}

// clipname trims trailing padding spaces and NULs.
func clipname(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == 0) {
		b = b[:len(b)-1]
	}
	return b
}

type datetime struct {
	time uint16
	date uint16
}

func (dt datetime) Date() (year int, month time.Month, day int) {
	yearSince1980 := int(dt.date >> 9)
	month = time.Month((dt.date >> 5) & 0xf)
	day = int(dt.date & 0x1f)
	return 1980 + yearSince1980, month, day
}

func (dt datetime) Clock() (hour, min, sec int) {
	hour = int(dt.time >> 11)
	min = int((dt.time >> 5) & 0x3f)
	sec = 2 * int(dt.time&0x1f)
	return hour, min, sec
}

func (dt datetime) Time() time.Time {
	// https://www.win.tue.nl/~aeb/linux/fs/fat/fat-1.html
	if dt.date == 0 {
		return time.Time{}
	}
	hour, min, sec := dt.Clock()
	year, month, day := dt.Date()
	return time.Date(year, month, day, hour, min, sec, 0, time.UTC)
}

// Attr holds the attribute flags of a directory entry.
type Attr byte

const (
	AttrReadOnly     Attr = 1 << 0
	AttrHidden       Attr = 1 << 1
	AttrSystem       Attr = 1 << 2
	AttrVolumeLabel  Attr = 1 << 3
	AttrSubdirectory Attr = 1 << 4
	AttrArchive      Attr = 1 << 5
	AttrDevice       Attr = 1 << 6

	attrLFN Attr = 0x0F
)

// IsLFN indicates that the entry is a Long File Name entry.
func (attr Attr) IsLFN() bool { return attr == attrLFN }

// IsReadonly indicates that the file is read-only and must not be written to.
func (attr Attr) IsReadonly() bool { return attr&AttrReadOnly != 0 }

// IsHidden indicates that the file is hidden and should not be shown in directory listings.
func (attr Attr) IsHidden() bool { return attr&AttrHidden != 0 }

// IsSystem indicates that the file belongs to the system and must not be physically moved.
func (attr Attr) IsSystem() bool { return attr&AttrSystem != 0 }

// IsVolumeLabel indicates an optional directory volume label, normally only residing in a volume's root directory.
func (attr Attr) IsVolumeLabel() bool { return attr&AttrVolumeLabel != 0 }

// IsSubdirectory indicates that the cluster-chain associated with this entry gets interpreted as subdirectory instead of as a file.
func (attr Attr) IsSubdirectory() bool { return attr&AttrSubdirectory != 0 }

// IsArchive returns bit used to indicate whether or not the file has been backed up (archived).
func (attr Attr) IsArchive() bool { return attr&AttrArchive != 0 }

// IsDevice returns bit internally set for character device names found in filespecs, never found on disk.
func (attr Attr) IsDevice() bool { return attr&AttrDevice != 0 }

type slotKind uint8

const (
	slotShort slotKind = iota
	slotLFN
	slotDeleted
	slotEnd
)

// dirSlot is a 32 byte directory entry.
type dirSlot struct {
	data []byte
}

func (ds *dirSlot) kind() slotKind {
	switch ds.data[dirNameOff] {
	case dirEndMarker:
		return slotEnd
	case dirDeletedMarker:
		return slotDeleted
	}
	if ds.attributes().IsLFN() {
		return slotLFN
	}
	return slotShort
}

func (ds *dirSlot) attributes() Attr {
	return Attr(ds.data[dirAttrOff])
}

// shortname writes the untrimmed 8.3 name as "NNNNNNNN.EEE" into dst and
// returns the number of bytes written.
func (ds *dirSlot) shortname(dst *[12]byte) int {
	copy(dst[:8], ds.data[dirNameOff:dirExtOff])
	dst[8] = '.'
	copy(dst[9:], ds.data[dirExtOff:dirAttrOff])
	return len(dst)
}

func (ds *dirSlot) cluster() uint32 {
	hi := bytedec.Uint(ds.data[dirFstClusHIOff : dirFstClusHIOff+2])
	lo := bytedec.Uint(ds.data[dirFstClusLOOff : dirFstClusLOOff+2])
	return hi<<16 | lo
}

func (ds *dirSlot) size() uint32 {
	return bytedec.Uint(ds.data[dirFileSizeOff : dirFileSizeOff+4])
}

func (ds *dirSlot) modifiedAt() datetime {
	return datetime{
		time: uint16(bytedec.Uint(ds.data[dirModTimeOff : dirModTimeOff+2])),
		date: uint16(bytedec.Uint(ds.data[dirModTimeOff+2 : dirModTimeOff+4])),
	}
}

const lfnChars = 5 + 6 + 2

type longFilenameEntry struct {
	data []byte
}

// SequenceNumber returns the sequence number of this LFN entry (1..20).
// The entry representing the end of the filename comes first and will
// have the highest sequence number.
func (lfn *longFilenameEntry) SequenceNumber() uint8 {
	return lfn.data[ldirOrdOff] & 0x1F
}

// ReadData reads the raw UCS-2 name data (26 bytes) from the three name
// ranges of the entry. It panics if the buffer is too small.
func (lfn *longFilenameEntry) ReadData(b []byte) {
	_ = b[2*lfnChars-1]
	copy(b, lfn.data[1:1+10])
	copy(b[10:], lfn.data[14:14+12])
	copy(b[22:], lfn.data[28:28+4])
}
