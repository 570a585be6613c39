package main

import (
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	fat "github.com/soypat/sdfat"
	"github.com/soypat/sdfat/blockdev"
	"github.com/soypat/sdfat/mbr"
	"github.com/soypat/sdfat/sd"
	"github.com/soypat/sdfat/sd/spidev"
)

var errNoDevice = errors.New("no device: set --image or --spidev")

// openDevice opens the image file or brings up the card named by cfg.
func openDevice(cfg GlobalConfig) (blockdev.Accessor, io.Closer, error) {
	switch {
	case cfg.Image != "":
		f, err := blockdev.OpenFile(cfg.Image)
		if err != nil {
			return nil, nil, err
		}
		log.WithFields(log.Fields{"image": cfg.Image, "blocks": f.NumBlocks()}).Debug("opened image")
		return f, f, nil
	case cfg.SPIDev.Path != "":
		bus, err := spidev.Open(cfg.SPIDev.Path, spidev.Config{
			SpeedHz: cfg.SPIDev.Speed,
			Mode:    cfg.SPIDev.Mode,
		})
		if err != nil {
			return nil, nil, err
		}
		card := sd.New(bus, bus.CS(), sd.Config{
			InitRetries: cfg.Card.InitRetries,
			RetryDelay:  cfg.Card.RetryDelay,
			ReadWindow:  cfg.Card.ReadWindow,
			Logger:      log.StandardLogger(),
		})
		if err := card.Init(); err != nil {
			bus.Close()
			return nil, nil, err
		}
		log.WithField("spidev", cfg.SPIDev.Path).Debug("card ready")
		return card, bus, nil
	}
	return nil, nil, errNoDevice
}

func readMBR(dev blockdev.Accessor) (*mbr.MBR, error) {
	block := make([]byte, dev.BlockSize())
	if err := dev.ReadBlock(block, 0); err != nil {
		return nil, errors.Wrap(err, "reading MBR")
	}
	table, err := mbr.FromBytes(block)
	if err != nil {
		return nil, err
	}
	if table.BootSignature() != mbr.BootSignature {
		log.Warnf("MBR signature is %#04x, want %#04x", table.BootSignature(), mbr.BootSignature)
	}
	return table, nil
}

// pickPartition returns the slot selected by partition, or the first FAT32
// slot when partition is firstFAT32.
func pickPartition(table *mbr.MBR, partition int) (int, *mbr.PartitionEntry, error) {
	if partition == firstFAT32 {
		idx, pte := table.FirstOfType(mbr.PartitionTypeFAT32CHS, mbr.PartitionTypeFAT32LBA)
		if pte == nil {
			return -1, nil, errors.New("no FAT32 partition in MBR")
		}
		return idx, pte, nil
	}
	pte := table.Partitions[partition]
	if pte == nil {
		return -1, nil, errors.Errorf("partition %d is unused", partition)
	}
	return partition, pte, nil
}

// openVolume opens the device in cfg and mounts the selected partition.
func openVolume(cfg GlobalConfig) (*fat.Volume, io.Closer, error) {
	dev, closer, err := openDevice(cfg)
	if err != nil {
		return nil, nil, err
	}
	table, err := readMBR(dev)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	idx, pte, err := pickPartition(table, cfg.Partition)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	vol := new(fat.Volume)
	vol.SetLogger(log.StandardLogger())
	if err := vol.Mount(dev, pte.FirstSectorBlockAddress); err != nil {
		closer.Close()
		return nil, nil, errors.Wrapf(err, "mounting partition %d", idx)
	}
	log.WithFields(log.Fields{"partition": idx, "type": pte.Type, "start": pte.FirstSectorBlockAddress}).Debug("mounted")
	return vol, closer, nil
}
