package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	fat "github.com/soypat/sdfat"
	"golang.org/x/text/encoding/charmap"
)

func lsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "list a directory",
		Long: `List the entries of a directory, or a single file. Paths are slash
separated and start at the root directory. Only the first cluster of a
directory is listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			vol, closer, err := openVolume(Config)
			if err != nil {
				return err
			}
			defer closer.Close()
			return list(cmd.OutOrStdout(), vol, path, all)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show volume labels and dot entries")
	return cmd
}

func list(w io.Writer, vol *fat.Volume, path string, all bool) error {
	cluster := uint32(fat.RootCluster)
	if path = strings.Trim(path, "/"); path != "" {
		item, ok, err := vol.ItemInfo(path)
		if err != nil {
			return err
		} else if !ok {
			return errors.Errorf("%s: no such file or directory", path)
		}
		if !item.IsDir() {
			printItem(w, item)
			return nil
		}
		cluster = item.Cluster
	}
	return vol.ForEachItem(cluster, func(item fat.Item) error {
		if !all && (item.Attr.IsVolumeLabel() || isDotEntry(displayName(item.Name))) {
			return nil
		}
		printItem(w, item)
		return nil
	})
}

func printItem(w io.Writer, item fat.Item) {
	kind := byte('-')
	switch {
	case item.IsDir():
		kind = 'd'
	case item.Attr.IsVolumeLabel():
		kind = 'v'
	}
	fmt.Fprintf(w, "%c %10d %s %s\n", kind, item.Size, item.ModTime().Format("2006-01-02 15:04"), displayName(item.Name))
}

// displayName renders an entry name for a terminal. Short names are padded
// as NNNNNNNN.EEE in the OEM code page, so they are trimmed and decoded. Long
// names are printable ASCII, which code page 437 leaves as is.
func displayName(name string) string {
	if len(name) == 12 && name[8] == '.' {
		base := strings.TrimRight(name[:8], " ")
		ext := strings.TrimRight(name[9:], " ")
		name = base
		if ext != "" {
			name += "." + ext
		}
	}
	if decoded, err := charmap.CodePage437.NewDecoder().String(name); err == nil {
		return decoded
	}
	return name
}

func isDotEntry(name string) bool { return name == "." || name == ".." }
