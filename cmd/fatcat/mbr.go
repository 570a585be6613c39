package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func mbrCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mbr",
		Short: "print the partition table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, closer, err := openDevice(Config)
			if err != nil {
				return err
			}
			defer closer.Close()
			table, err := readMBR(dev)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "signature %#04x, %d partitions\n", table.BootSignature(), table.PartitionCount())
			for i, p := range table.Partitions {
				if p == nil {
					fmt.Fprintf(out, "%d: unused\n", i)
					continue
				}
				fmt.Fprintf(out, "%d: %-10s bootable=%-5t start=%d sectors=%d\n",
					i, p.Type, p.Status.IsBootable(), p.FirstSectorBlockAddress, p.NumberOfLBA())
			}
			return nil
		},
	}
	return cmd
}
