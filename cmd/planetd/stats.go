package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planetpulse/internal/analytics"
	"github.com/alfredjeanlab/planetpulse/internal/client"
	"github.com/alfredjeanlab/planetpulse/internal/model"
	"github.com/alfredjeanlab/planetpulse/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show consumed events per day",
	GroupID: "pipeline",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		if remote, _ := cmd.Flags().GetString("remote"); remote != "" {
			counts, err := client.NewHTTPClient(remote, cfg.AuthToken).EventStats(ctx)
			if err != nil {
				return err
			}
			return printCounts(counts)
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		c, err := openCache(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		agg := analytics.New(c, st, cfg.StatsTTL, logger)
		if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
			if err := agg.Invalidate(ctx); err != nil {
				return err
			}
		}
		counts, err := agg.Counts(ctx)
		if err != nil {
			return err
		}

		return printCounts(counts)
	},
}

func printCounts(counts model.DayCounts) error {
	if jsonOutput {
		return printJSON(map[string]any{"status": "success", "data": counts})
	}
	return ui.PrintDayCounts(os.Stdout, counts)
}

func init() {
	statsCmd.Flags().Bool("refresh", false, "drop the cached counts and recompute them from the store")
	statsCmd.Flags().String("remote", "", "read the counts from a running planetd at this URL instead")
}
