package main

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zeebo/xxh3"
)

func sumCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sum <path>",
		Short: "print the xxh3-128 digest of a file",
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
			data, err := io.ReadAll(stream)
			if err != nil {
				return err
			}
			log.WithField("bytes", len(data)).Debug("hashed")
			fmt.Fprintf(cmd.OutOrStdout(), "%x  %s\n", xxh3.Hash128(data).Bytes(), args[0])
			return nil
		},
	}
	return cmd
}
