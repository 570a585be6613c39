package fat

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func FuzzBootSector(f *testing.F) {
	f.Add(makeBootSector(1, 2))
	f.Add(makeBootSector(64, 1))
	f.Fuzz(func(t *testing.T, b []byte) {
		bs, err := ParseBootSector(b)
		if err != nil {
			return
		}
		_ = bs.String()
		img := NewBlockMap()
		img.put(testPartStart, b)
		var v Volume
		if v.Mount(img, testPartStart) != nil {
			return
		}
		if v.BytesPerCluster() > MaxClusterSize || v.BytesPerCluster() == 0 {
			t.Fatalf("mounted bad cluster size %d", v.BytesPerCluster())
		}
	})
}

// This function is a self contained fuzzing function whose working
// principle is similiar to that of a virtual machine. It takes in the
// raw root directory cluster, a FAT sector and a series of 64-bit
// read operations to perform on the resulting volume.
func FuzzVolume(f *testing.F) {
	// 64-bit operation definition, starting with least significant bits:
	//
	//  - OP:       First 4 bits are the operation to perform.
	//  - WHO:      Next 4 bits select the target entry of the root directory.
	//  - RESERVED: Middle bits are reserved.
	//  - DATASIZE: Last 16 bits is the chunk size, if applicable.
	const (
		opListRoot uint64 = iota
		opListEntry
		opLookup
		opStream
		opRead
		opFollow

		datasizeOff = 48
		whoOff      = 4
		maxChunks   = 256
	)
	seed := newTestImage(f, 1)
	root := joinSlots(
		longEntry("hello.txt", "HELLO   TXT", AttrArchive, 10, 700),
		longEntry("sub", "SUB        ", AttrSubdirectory, 3, 0),
	)
	var fatsect [blkmapsize]byte
	copy(fatsect[:], seed.block(testFATStart)[:])
	binary.LittleEndian.PutUint32(fatsect[10*4:], 11)
	binary.LittleEndian.PutUint32(fatsect[11*4:], 0x0FFF_FFFF)
	f.Add(root, fatsect[:], opListRoot, opLookup, opStream|(512<<datasizeOff), opRead|(100<<datasizeOff), opListEntry|(1<<whoOff), opFollow)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	f.Fuzz(func(t *testing.T, rootdir, fatdata []byte, op0, op1, op2, op3, op4, op5 uint64) {
		img := newTestImage(t, 1)
		if len(rootdir) > blkmapsize {
			rootdir = rootdir[:blkmapsize]
		}
		img.writeCluster(RootCluster, rootdir)
		if len(fatdata) > blkmapsize {
			fatdata = fatdata[:blkmapsize]
		}
		img.put(testFATStart, fatdata)
		var v Volume
		v.SetLogger(logger)
		if err := v.Mount(img, testPartStart); err != nil {
			t.Fatal(err)
		}
		var items []Item
		if err := v.ForEachItem(RootCluster, func(it Item) error {
			if len(it.Name) > lfnBufSize {
				t.Fatalf("name longer than buffer: %d", len(it.Name))
			}
			items = append(items, it)
			return nil
		}); err != nil {
			t.Fatal(err)
		}
		getWho := func(who uint8) *Item {
			if len(items) == 0 {
				return nil
			}
			return &items[int(who)%len(items)]
		}
		for _, op := range [...]uint64{op0, op1, op2, op3, op4, op5} {
			who := uint8(op>>whoOff) & 0xf
			datasize := int(uint16(op >> datasizeOff))
			it := getWho(who)
			switch op & 0xf {
			case opListRoot:
				if err := v.ForEachItem(RootCluster, func(Item) error { return nil }); err != nil {
					t.Fatal(err)
				}

			case opListEntry:
				if it == nil || !it.IsDir() {
					break
				}
				v.ForEachItem(it.Cluster, func(Item) error { return nil })

			case opLookup:
				if it == nil || strings.Contains(it.Name, "/") {
					break
				}
				got, ok, err := v.ItemInfo(it.Name)
				if err == nil && ok && got.Name != it.Name {
					t.Fatalf("lookup %q returned %q", it.Name, got.Name)
				}

			case opStream, opRead:
				if it == nil || it.IsDir() {
					break
				}
				s, err := v.OpenFile(*it, datasize)
				if err != nil {
					break
				}
				if op&0xf == opRead {
					buf := make([]byte, datasize%4096+1)
					for i := 0; i < maxChunks; i++ {
						if _, err := s.Read(buf); err != nil {
							break
						}
					}
				} else {
					for i := 0; i < maxChunks && s.Next(); i++ {
					}
				}
				if s.BytesRead() > s.Size() {
					t.Fatalf("read %d past size %d", s.BytesRead(), s.Size())
				}
				s.Close()

			case opFollow:
				if it == nil || it.Cluster < 2 {
					break
				}
				v.ClusterNumberAfter(it.Cluster)
			}
		}
		// All traversals above were closed.
		d, err := v.OpenDir(RootCluster)
		if err != nil {
			t.Fatal(err)
		}
		d.Close()
	})
}
