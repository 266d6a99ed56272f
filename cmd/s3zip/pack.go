package main

import (
	"github.com/newthinker/s3zip/internal/handler"
	"github.com/spf13/cobra"
)

var packEvent handler.PackEvent

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Bundle every object of a bucket into one zip archive",
	Example: `  s3zip pack --source-bucket photos --dest-bucket backups
  s3zip pack --source-bucket photos --source-prefix 2024/ --dest-key photos-2024.zip --dest-bucket backups`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return invoke(cmd.OutOrStdout(), handler.Pack, packEvent, 0)
	},
}

func init() {
	f := packCmd.Flags()
	f.StringVar(&packEvent.SourceBucket, "source-bucket", "", "bucket to archive")
	f.StringVar(&packEvent.SourcePrefix, "source-prefix", "", "only archive keys under this prefix")
	f.StringVar(&packEvent.DestinationBucket, "dest-bucket", "", "bucket receiving the archive")
	f.StringVar(&packEvent.DestinationKey, "dest-key", "", "archive key (default: all_files.zip)")
	f.StringVar(&packEvent.Password, "password", "", "encrypt members with AES-256 using this passphrase")

	rootCmd.AddCommand(packCmd)
}
