package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	debug     bool
	localRoot string
)

var rootCmd = &cobra.Command{
	Use:   "s3zip",
	Short: "s3zip - extract and build zip archives in object storage",
	Long: `s3zip runs the unzip and zip functions from the command line, against S3
or against a local directory that stands in for buckets.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
	rootCmd.PersistentFlags().StringVar(&localRoot, "local-root", "", "use this directory as object storage, one subdirectory per bucket")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
