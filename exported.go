package fat

import (
	"encoding/binary"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/soypat/sdfat/internal/utf16x"
)

// Item is a decoded directory entry.
type Item struct {
	// Name is the long filename if the entry had one, otherwise the
	// untrimmed 8.3 name in "NNNNNNNN.EEE" form.
	Name    string
	Cluster uint32
	Size    uint32
	Attr    Attr
	mod     datetime
}

// IsDir reports whether the item is a directory.
func (it Item) IsDir() bool { return it.Attr.IsSubdirectory() }

// ModTime returns the last modification time recorded in the entry, or the
// zero time if none was recorded.
func (it Item) ModTime() time.Time { return it.mod.Time() }

// DirIter walks the 32 byte entries of a single directory cluster. It does
// not follow the cluster chain. A DirIter is not restartable.
type DirIter struct {
	v       *Volume
	gen     uint32
	owner   bool // Close releases the volume.
	cluster uint32
	entry   int
	done    bool
	item    Item
	err     error
	// Accumulated long name occupies name[namepos:].
	name    [lfnBufSize]byte
	namepos int
}

// OpenDir starts iterating the entries of cluster. The iterator must be
// exhausted or closed before another traversal can be opened on v.
func (v *Volume) OpenDir(cluster uint32) (*DirIter, error) {
	if cluster < 2 {
		return nil, errors.Wrapf(ErrCorruptEntry, "directory at cluster %d", cluster)
	}
	gen, err := v.acquire()
	if err != nil {
		return nil, err
	}
	d := &DirIter{}
	d.reset(v, cluster)
	d.gen, d.owner = gen, true
	return d, nil
}

func (d *DirIter) reset(v *Volume, cluster uint32) {
	*d = DirIter{v: v, cluster: cluster, namepos: lfnBufSize}
}

// Next advances to the next file or directory entry and reports whether
// there is one.
func (d *DirIter) Next() bool {
	for !d.done {
		off := d.entry * sizeDirEntry
		if off+sizeDirEntry > int(d.v.bpc) {
			break // End of cluster.
		}
		d.entry++
		var buf [sizeDirEntry]byte
		_, err := d.v.GetCluster(d.cluster, off, buf[:])
		if err != nil {
			d.err = err
			break
		}
		ds := dirSlot{data: buf[:]}
		switch ds.kind() {
		case slotEnd:
			d.Close()
			return false
		case slotDeleted:
			d.namepos = lfnBufSize
		case slotLFN:
			d.prependLFN(&ds)
		case slotShort:
			d.item = d.makeItem(&ds)
			d.namepos = lfnBufSize
			return true
		}
	}
	d.Close()
	return false
}

func (d *DirIter) prependLFN(ds *dirSlot) {
	lfn := longFilenameEntry{data: ds.data}
	var raw [2 * lfnChars]byte
	var frag [lfnChars]byte
	lfn.ReadData(raw[:])
	n, _ := utf16x.ToASCII(frag[:], raw[:], binary.LittleEndian)
	text := frag[:n]
	if len(text) > d.namepos {
		// Buffer full, drop the earliest characters.
		text = text[len(text)-d.namepos:]
	}
	d.namepos -= len(text)
	copy(d.name[d.namepos:], text)
}

func (d *DirIter) makeItem(ds *dirSlot) Item {
	it := Item{
		Cluster: ds.cluster(),
		Size:    ds.size(),
		Attr:    ds.attributes(),
		mod:     ds.modifiedAt(),
	}
	if d.namepos < lfnBufSize {
		it.Name = string(d.name[d.namepos:])
	} else {
		var short [12]byte
		n := ds.shortname(&short)
		it.Name = string(short[:n])
	}
	return it
}

// Item returns the entry found by the last call to Next.
func (d *DirIter) Item() Item { return d.item }

// Err returns the error that stopped iteration, if any.
func (d *DirIter) Err() error { return d.err }

// Close releases the volume. It is safe to call more than once.
func (d *DirIter) Close() {
	if !d.done {
		d.done = true
		if d.owner {
			d.v.release(d.gen)
		}
	}
}

// ForEachItem calls fn for every entry of the directory cluster in on-disk
// order. Iteration stops at the first error returned by fn.
func (v *Volume) ForEachItem(cluster uint32, fn func(Item) error) error {
	d, err := v.OpenDir(cluster)
	if err != nil {
		return err
	}
	defer d.Close()
	for d.Next() {
		if err := fn(d.Item()); err != nil {
			return err
		}
	}
	return d.Err()
}

// ItemInfo looks up a slash separated path starting at the root cluster.
// Empty segments are skipped. The final segment may name a file or a
// directory. ok is false if no such item exists. Paths ending in a slash
// are rejected with ErrTrailingSlash.
func (v *Volume) ItemInfo(path string) (item Item, ok bool, err error) {
	if strings.HasSuffix(path, "/") {
		return Item{}, false, ErrTrailingSlash
	}
	gen, err := v.acquire()
	if err != nil {
		return Item{}, false, err
	}
	defer v.release(gen)

	var d DirIter
	segments := strings.Split(path, "/")
	cluster := uint32(RootCluster)
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		last := i == len(segments)-1
		descended := false
		d.reset(v, cluster) // Shares the lookup's hold on the volume.
		for d.Next() {
			it := d.Item()
			if it.Name != seg {
				continue
			}
			if last {
				return it, true, nil
			} else if !it.IsDir() {
				continue
			}
			if it.Cluster < 2 {
				v.warn("ItemInfo:descend", logrus.Fields{"path": path, "segment": seg, "cluster": it.Cluster})
				return Item{}, false, errors.Wrapf(ErrCorruptEntry, "%q points to cluster %d", seg, it.Cluster)
			}
			cluster = it.Cluster
			descended = true
			break
		}
		if d.Err() != nil {
			return Item{}, false, d.Err()
		} else if !descended {
			return Item{}, false, nil
		}
	}
	return Item{}, false, nil
}

// FileStream reads the contents of a file in chunks by following its
// cluster chain. Use either Next and Chunk or Read, not both.
type FileStream struct {
	v       *Volume
	gen     uint32
	cluster uint32
	linked  bool // cluster holds unread data.
	read    uint32
	size    uint32
	buf     []byte
	chunk   []byte
	pending []byte
	err     error
	done    bool
}

// OpenFile starts streaming item in chunks of at most chunkSize bytes.
// A chunkSize of zero or less selects 512. chunkSize should divide the
// cluster size. The stream must be exhausted or closed before another
// traversal can be opened on v.
func (v *Volume) OpenFile(item Item, chunkSize int) (*FileStream, error) {
	if item.IsDir() {
		return nil, errors.Wrap(ErrIsDirectory, item.Name)
	} else if item.Size > 0 && item.Cluster < 2 {
		return nil, errors.Wrapf(ErrCorruptEntry, "%q points to cluster %d", item.Name, item.Cluster)
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	gen, err := v.acquire()
	if err != nil {
		return nil, err
	}
	return &FileStream{
		v:       v,
		gen:     gen,
		cluster: item.Cluster,
		linked:  item.Size > 0,
		size:    item.Size,
		buf:     make([]byte, chunkSize),
	}, nil
}

// Next reads the next chunk of the file and reports whether there is one.
func (s *FileStream) Next() bool {
	if s.done {
		return false
	}
	if s.read == s.size {
		s.Close()
		return false
	}
	if !s.linked {
		s.fail(errors.Wrapf(ErrChainTruncated, "read %d of %d bytes", s.read, s.size))
		return false
	}
	n := s.size - s.read
	if n > uint32(len(s.buf)) {
		n = uint32(len(s.buf))
	}
	copied, err := s.v.GetCluster(s.cluster, int(s.read%s.v.bpc), s.buf[:n])
	if err != nil {
		s.fail(err)
		return false
	}
	s.read += uint32(copied)
	s.chunk = s.buf[:copied]
	if s.read%s.v.bpc == 0 && s.read < s.size {
		next, ok, err := s.v.ClusterNumberAfter(s.cluster)
		if err != nil {
			s.fail(err)
			return false
		} else if ok && next < 2 {
			s.fail(errors.Wrapf(ErrCorruptChain, "cluster %d links to %d", s.cluster, next))
			return false
		}
		s.cluster, s.linked = next, ok
	}
	return true
}

func (s *FileStream) fail(err error) {
	s.v.warn("FileStream:stop", logrus.Fields{"read": s.read, "size": s.size, "err": err})
	s.err = err
	s.chunk = nil
	s.Close()
}

// Chunk returns the data read by the last call to Next. It is only valid
// until the next call to Next.
func (s *FileStream) Chunk() []byte { return s.chunk }

// Err returns the error that stopped the stream, if any.
func (s *FileStream) Err() error { return s.err }

// BytesRead returns how many bytes of the file have been read.
func (s *FileStream) BytesRead() uint32 { return s.read }

// Size returns the file size recorded in its directory entry.
func (s *FileStream) Size() uint32 { return s.size }

// Read implements [io.Reader].
func (s *FileStream) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(s.pending) == 0 {
			if !s.Next() {
				break
			}
			s.pending = s.chunk
		}
		c := copy(p[n:], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	if n == 0 && len(p) > 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	return n, nil
}

// Close releases the volume. It is safe to call more than once.
func (s *FileStream) Close() error {
	if !s.done {
		s.done = true
		s.v.release(s.gen)
	}
	return nil
}
