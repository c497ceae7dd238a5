package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planetpulse/internal/archive"
)

var archiveCmd = &cobra.Command{
	Use:     "archive",
	Short:   "Export audit records to the configured archive destinations once",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		after, _ := cmd.Flags().GetInt64("after")
		limit, _ := cmd.Flags().GetInt("limit")

		dests, err := archiveDestinations(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if len(dests) == 0 {
			return fmt.Errorf("no archive destination configured (set PLANETS_ARCHIVE_S3_BUCKET or PLANETS_ARCHIVE_DIR)")
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		a := archive.New(st, dests, logger, archive.WithWatermark(after), archive.WithMaxRecords(limit))
		if err := a.Run(ctx); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]int64{"watermark": a.Watermark()})
		}
		fmt.Printf("Archived through audit record %d\n", a.Watermark())
		return nil
	},
}

func init() {
	archiveCmd.Flags().Int64("after", 0, "export records with an id greater than this")
	archiveCmd.Flags().Int("limit", archive.DefaultMaxRecords, "maximum records to export")
}
