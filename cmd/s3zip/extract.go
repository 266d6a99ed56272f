package main

import (
	"time"

	"github.com/newthinker/s3zip/internal/handler"
	"github.com/spf13/cobra"
)

var (
	extractEvent   handler.ExtractEvent
	extractTimeout time.Duration
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract a zip archive back into object storage",
	Long: `Download a zip archive, extract every member and upload it next to the
archive (or under --dest-prefix). Flags override the extract section of the
config file.`,
	Example: `  s3zip extract --bucket uploads --key in/data.zip --password s3cret
  s3zip extract --local-root ./buckets --bucket src --key data.zip`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return invoke(cmd.OutOrStdout(), handler.Extract, extractEvent, extractTimeout)
	},
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractEvent.Bucket, "bucket", "", "source bucket")
	f.StringVar(&extractEvent.Key, "key", "", "archive key, must end in .zip")
	f.StringVar(&extractEvent.Password, "password", "", "archive passphrase")
	f.StringVar(&extractEvent.DestinationBucket, "dest-bucket", "", "destination bucket (default: source bucket)")
	f.StringVar(&extractEvent.DestinationPrefix, "dest-prefix", "", "destination prefix (default: directory of the key)")
	f.DurationVar(&extractTimeout, "timeout", 0, "time budget for the run, e.g. 15m (default: extract.default_budget)")

	rootCmd.AddCommand(extractCmd)
}
