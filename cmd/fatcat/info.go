package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func infoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "print the geometry of the mounted FAT32 volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vol, closer, err := openVolume(Config)
			if err != nil {
				return err
			}
			defer closer.Close()
			bs := vol.BootSector()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "StartBlock:%d\nBytesPerCluster:%d\nClusters:%d\nFormat:%s\n",
				vol.StartBlock(), vol.BytesPerCluster(), bs.ClusterCount(), bs.Format())
			fmt.Fprint(out, bs.String())
			return nil
		},
	}
	return cmd
}
