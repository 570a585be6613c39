package main

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	fat "github.com/soypat/sdfat"
)

func catCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "write a file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vol, closer, err := openVolume(Config)
			if err != nil {
				return err
			}
			defer closer.Close()
			stream, err := openPath(vol, args[0])
			if err != nil {
				return err
			}
			defer stream.Close()
			_, err = io.Copy(cmd.OutOrStdout(), stream)
			return err
		},
	}
	return cmd
}

// openPath resolves path and opens it for streaming with the configured
// chunk size.
func openPath(vol *fat.Volume, path string) (*fat.FileStream, error) {
	item, ok, err := vol.ItemInfo(path)
	if err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.Errorf("%s: no such file or directory", path)
	}
	return vol.OpenFile(item, Config.ChunkSize)
}
