package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:     "fetch",
	Short:   "Fetch planets from the external API once and upsert them",
	GroupID: "pipeline",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

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

		pub, err := newPublisher(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pub.Close()

		task := newFetchTask(cfg, newCatalog(st, c, pub, cfg, logger), logger)
		if err := task.Run(ctx); err != nil {
			return fmt.Errorf("planet fetch: %w", err)
		}
		return nil
	},
}
