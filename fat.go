package fat

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/soypat/sdfat/blockdev"
	"github.com/soypat/sdfat/internal/bytedec"
)

const (
	// MaxClusterSize is the largest cluster, in bytes, a Volume can hold in
	// its scratch buffer.
	MaxClusterSize = 32 * 1024
	// RootCluster is the cluster where path lookups start.
	RootCluster = 2

	fatCopies        = 2 // Data region math assumes two FATs regardless of the BPB.
	sizeFATEntry     = 4
	sizeDirEntry     = 32
	defaultChunkSize = 512
	lfnBufSize       = 255
	mask28bits       = 0x0FFF_FFFF
	clusterEOCMin    = 0x0FFF_FFF8
	badBlock         = -1
)

var (
	ErrBadLength           = errors.New("boot sector must be 512 bytes")
	ErrBadTrailer          = errors.New("boot sector trailer is not 0x55 0xAA")
	ErrBadSignature        = errors.New("extended boot signature is not 0x29")
	ErrUnsupportedGeometry = errors.New("unsupported volume geometry")
	ErrNotMounted          = errors.New("volume not mounted")
	ErrClusterRange        = errors.New("cluster outside of allocation table")
	ErrBusy                = errors.New("volume has an open traversal")
	ErrTrailingSlash       = errors.New("path has trailing slash")
	ErrIsDirectory         = errors.New("item is a directory")
	ErrChainTruncated      = errors.New("cluster chain ended before file size")
	ErrCorruptChain        = errors.New("cluster chain links to reserved cluster")
	ErrCorruptEntry        = errors.New("directory entry has invalid cluster")
)

// Volume is a read-only FAT32 volume living on a block device. The zero value
// is ready to be mounted. A Volume is not safe for concurrent use and holds
// at most one open directory iterator, file stream or path lookup at a time.
type Volume struct {
	dev     blockdev.Accessor
	start   uint32
	bs      BootSector
	mounted bool
	busy    bool
	gen     uint32 // Bumped on every mount to orphan open traversals.
	log     logrus.FieldLogger

	bpc      uint32 // Bytes per cluster.
	fatbase  int64  // First block of the FAT.
	database int64  // First block of the data region.
	fatsize  uint32 // FAT size in bytes.

	clust   uint32 // Cluster held in scratch. 0 when invalid.
	scratch [MaxClusterSize]byte
	winsect int64 // Block held in win. badBlock when invalid.
	win     [blockdev.BlockSize]byte
}

var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}()

// SetLogger sets the logger used by the volume. A nil logger silences it.
func (v *Volume) SetLogger(l logrus.FieldLogger) { v.log = l }

// Mount reads the boot sector found at startBlock of dev and prepares the
// volume for reading. Previously open traversals are invalidated. Any failure
// leaves the volume unmounted.
func (v *Volume) Mount(dev blockdev.Accessor, startBlock uint32) error {
	v.mounted = false
	v.busy = false
	v.gen++
	v.invalidate()
	if dev.BlockSize() != blockdev.BlockSize {
		return errors.Wrapf(ErrUnsupportedGeometry, "device block size %d", dev.BlockSize())
	}
	v.dev = dev
	if err := v.moveWindow(int64(startBlock)); err != nil {
		return errors.Wrap(err, "reading boot sector")
	}
	bs, err := ParseBootSector(v.win[:])
	if err != nil {
		v.logerror("mount:parse", logrus.Fields{"block": startBlock, "err": err})
		return err
	}
	switch {
	case int(bs.BytesPerSector) != dev.BlockSize():
		return errors.Wrapf(ErrUnsupportedGeometry, "%d bytes per sector", bs.BytesPerSector)
	case bs.SectorsPerCluster == 0:
		return errors.Wrap(ErrUnsupportedGeometry, "zero sectors per cluster")
	case bs.BytesPerCluster() > MaxClusterSize:
		return errors.Wrapf(ErrUnsupportedGeometry, "cluster of %d bytes", bs.BytesPerCluster())
	}
	if bs.NumberOfFATs != fatCopies {
		v.warn("mount:fat-copies", logrus.Fields{"nfats": bs.NumberOfFATs, "assumed": fatCopies})
	}
	if bs.RootCluster != RootCluster {
		v.warn("mount:root-cluster", logrus.Fields{"bpb": bs.RootCluster, "assumed": RootCluster})
	}
	v.bs = bs
	v.start = startBlock
	v.bpc = bs.BytesPerCluster()
	v.fatbase = int64(startBlock) + int64(bs.ReservedSectors)
	v.database = v.fatbase + fatCopies*int64(bs.SectorsPerFAT)
	v.fatsize = bs.SectorsPerFAT * uint32(bs.BytesPerSector)
	v.mounted = true
	v.info("mounted", logrus.Fields{"label": string(clipname(bs.VolumeLabel[:])), "start": startBlock})
	v.debug("mount", logrus.Fields{
		"start":    startBlock,
		"spc":      bs.SectorsPerCluster,
		"reserved": bs.ReservedSectors,
		"fatsz":    bs.SectorsPerFAT,
		"fatbase":  v.fatbase,
		"database": v.database,
		"clusters": bs.ClusterCount(),
		"format":   bs.Format(),
	})
	return nil
}

// BootSector returns the boot sector parsed on mount.
func (v *Volume) BootSector() BootSector { return v.bs }

// BytesPerCluster returns the cluster size of the mounted volume.
func (v *Volume) BytesPerCluster() int { return int(v.bpc) }

// StartBlock returns the block index of the volume's boot sector.
func (v *Volume) StartBlock() uint32 { return v.start }

// GetCluster copies the bytes of cluster starting at offset into dst and
// returns the number of bytes copied. The copy is clipped to the end of the
// cluster so an offset at or past the end copies nothing. It panics if
// cluster is below 2 or offset is negative.
func (v *Volume) GetCluster(cluster uint32, offset int, dst []byte) (int, error) {
	if cluster < 2 {
		panic("fat: cluster number below 2")
	} else if offset < 0 {
		panic("fat: negative cluster offset")
	}
	if !v.mounted {
		return 0, ErrNotMounted
	}
	if offset >= int(v.bpc) {
		return 0, nil
	}
	if err := v.loadCluster(cluster); err != nil {
		return 0, err
	}
	return copy(dst, v.scratch[offset:v.bpc]), nil
}

// ClusterNumberAfter looks up the FAT entry of cluster. It returns ok=false
// when the entry is free (0) or marks the end of the chain. Otherwise next is
// the successor cluster. It panics if cluster is below 2.
func (v *Volume) ClusterNumberAfter(cluster uint32) (next uint32, ok bool, err error) {
	if cluster < 2 {
		panic("fat: cluster number below 2")
	}
	if !v.mounted {
		return 0, false, ErrNotMounted
	}
	off := uint64(cluster) * sizeFATEntry
	if off+sizeFATEntry > uint64(v.fatsize) {
		return 0, false, errors.Wrapf(ErrClusterRange, "cluster %d", cluster)
	}
	sect := v.fatbase + int64(off/blockdev.BlockSize)
	if err := v.moveWindow(sect); err != nil {
		return 0, false, err
	}
	winoff := off % blockdev.BlockSize
	val := bytedec.Uint(v.win[winoff:winoff+sizeFATEntry]) & mask28bits
	if val == 0 || val >= clusterEOCMin {
		return 0, false, nil
	}
	return val, true, nil
}

// clst2sect returns the first block of a cluster.
func (v *Volume) clst2sect(clst uint32) int64 {
	return v.database + int64(v.bs.SectorsPerCluster)*int64(clst-2)
}

// loadCluster reads all blocks of clst into scratch unless already there.
func (v *Volume) loadCluster(clst uint32) error {
	if clst == v.clust {
		return nil
	}
	v.clust = 0
	first := v.clst2sect(clst)
	for i := 0; i < int(v.bs.SectorsPerCluster); i++ {
		off := i * blockdev.BlockSize
		err := v.dev.ReadBlock(v.scratch[off:off+blockdev.BlockSize], first+int64(i))
		if err != nil {
			v.logerror("loadCluster:read", logrus.Fields{"cluster": clst, "block": first + int64(i), "err": err})
			return errors.Wrapf(err, "reading cluster %d", clst)
		}
	}
	v.clust = clst
	return nil
}

// moveWindow loads a single block into win, the FAT sector cache.
func (v *Volume) moveWindow(sector int64) error {
	if sector == v.winsect {
		return nil // Do nothing if window offset not changed.
	}
	err := v.dev.ReadBlock(v.win[:], sector)
	if err != nil {
		v.logerror("moveWindow:read", logrus.Fields{"block": sector, "err": err})
		v.winsect = badBlock
		return errors.Wrapf(err, "reading block %d", sector)
	}
	v.winsect = sector
	return nil
}

func (v *Volume) invalidate() {
	v.clust = 0
	v.winsect = badBlock
}

// acquire marks the volume busy and returns the mount generation the
// traversal belongs to.
func (v *Volume) acquire() (uint32, error) {
	if !v.mounted {
		return 0, ErrNotMounted
	} else if v.busy {
		return 0, ErrBusy
	}
	v.busy = true
	return v.gen, nil
}

func (v *Volume) release(gen uint32) {
	if gen == v.gen {
		v.busy = false
	}
}

func (v *Volume) logger() logrus.FieldLogger {
	if v.log == nil {
		return discard
	}
	return v.log
}

func (v *Volume) debug(msg string, fields logrus.Fields) {
	v.logger().WithFields(fields).Debug(msg)
}
func (v *Volume) info(msg string, fields logrus.Fields) {
	v.logger().WithFields(fields).Info(msg)
}
func (v *Volume) warn(msg string, fields logrus.Fields) {
	v.logger().WithFields(fields).Warn(msg)
}
func (v *Volume) logerror(msg string, fields logrus.Fields) {
	v.logger().WithFields(fields).Error(msg)
}
