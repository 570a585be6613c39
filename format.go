package fat

import "strconv"

// Format is the FAT variant of a volume as determined by its cluster count.
type Format uint8

const (
	_FormatUnknown Format = iota
	FormatFAT12
	FormatFAT16
	FormatFAT32
	FormatExFAT
)

// Cluster counts at which Microsoft defines the FAT variant to change.
const (
	maxClustersFAT12 = 4085
	maxClustersFAT16 = 65525
)

func (f Format) String() string {
	switch f {
	case FormatFAT12:
		return "FAT12"
	case FormatFAT16:
		return "FAT16"
	case FormatFAT32:
		return "FAT32"
	case FormatExFAT:
		return "exFAT"
	}
	return "Format(" + strconv.Itoa(int(f)) + ")"
}

// ClusterCount returns the number of data clusters described by the boot
// sector, or 0 if the geometry does not leave room for a data region.
func (bs *BootSector) ClusterCount() uint32 {
	if bs.SectorsPerCluster == 0 || bs.BytesPerSector == 0 {
		return 0
	}
	rootDirSectors := (uint32(bs.RootDirEntries)*sizeDirEntry + uint32(bs.BytesPerSector) - 1) / uint32(bs.BytesPerSector)
	meta := uint64(bs.ReservedSectors) + uint64(bs.NumberOfFATs)*uint64(bs.SectorsPerFAT) + uint64(rootDirSectors)
	total := uint64(bs.TotalSectors())
	if meta >= total {
		return 0
	}
	return uint32((total - meta) / uint64(bs.SectorsPerCluster))
}

// Format classifies the volume the way Microsoft defines it: by
// cluster count alone. Small cards formatted as FAT32 may classify as
// FAT16; a Volume reads them as FAT32 regardless.
func (bs *BootSector) Format() Format {
	if string(bs.OEMName[:]) == "EXFAT   " {
		return FormatExFAT
	}
	n := bs.ClusterCount()
	switch {
	case n == 0:
		return _FormatUnknown
	case n < maxClustersFAT12:
		return FormatFAT12
	case n < maxClustersFAT16:
		return FormatFAT16
	}
	return FormatFAT32
}
