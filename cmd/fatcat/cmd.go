package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Config is the effective tool configuration, set before any subcommand runs.
var Config = defaultConfig()

func newCmd() *cobra.Command {
	var (
		flagQuiet       bool
		flagVerbose     int
		flagVerboseName = "verbose"
		flagConfig      string
		flagImage       string
		flagSPIDev      string
		flagPartition   int
	)
	cmd := &cobra.Command{
		Use:               "fatcat",
		Short:             "Read files from FAT32 SD cards and card images",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(flagQuiet, flagVerbose, cmd.Flag(flagVerboseName).Changed); err != nil {
				return err
			}
			Config = defaultConfig()
			if err := readConfig(flagConfig, &Config); err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("image") && flags.Changed("spidev") {
				return errors.New("--image and --spidev are mutually exclusive")
			}
			if flags.Changed("image") {
				Config.Image = flagImage
				Config.SPIDev.Path = ""
			}
			if flags.Changed("spidev") {
				Config.SPIDev.Path = flagSPIDev
				Config.Image = ""
			}
			if flags.Changed("partition") {
				Config.Partition = flagPartition
			}
			return Config.validate()
		},
	}

	cmd.AddCommand(mbrCmd())
	cmd.AddCommand(infoCmd())
	cmd.AddCommand(lsCmd())
	cmd.AddCommand(catCmd())
	cmd.AddCommand(sumCmd())

	cmd.PersistentFlags().StringVar(&flagConfig, "config", defaultConfigPath(), "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&flagImage, "image", "", "Card image to read")
	cmd.PersistentFlags().StringVar(&flagSPIDev, "spidev", "", "spidev node of a live card, e.g. /dev/spidev0.0")
	cmd.PersistentFlags().IntVar(&flagPartition, "partition", firstFAT32, "MBR slot to mount, -1 picks the first FAT32 partition")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Quiet execution")
	cmd.PersistentFlags().IntVarP(&flagVerbose, flagVerboseName, "v", 1, "Verbosity of logging: 0 = quiet, 1 = info, 2 = debug, 3 = trace")

	return cmd
}
