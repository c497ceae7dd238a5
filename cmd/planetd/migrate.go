package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planetpulse/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Apply pending database migrations",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// postgres.New applies pending migrations before returning.
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		fmt.Println(ui.RenderOK("Migrations applied"))
		return nil
	},
}
