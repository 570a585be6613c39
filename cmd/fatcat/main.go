// fatcat inspects MBR partitioned FAT32 media, either a card image or a live
// SD card attached to a Linux spidev bus.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := newCmd().Execute(); err != nil {
		log.Debugf("fatcat: %+v", err)
		os.Exit(1)
	}
}
