package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planetpulse/internal/client"
	"github.com/alfredjeanlab/planetpulse/internal/ui"
)

func defaultAPIURL() string {
	if s := os.Getenv("PLANETS_API_URL"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

var apiURL string

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health and readiness of a running planetd",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewHTTPClient(apiURL, cfg.AuthToken)
		ctx := context.Background()

		status, err := c.Health(ctx)
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		ready, err := c.Ready(ctx)
		if err != nil {
			return fmt.Errorf("checking readiness: %w", err)
		}

		if jsonOutput {
			if err := printJSON(map[string]any{"health": status, "ready": ready}); err != nil {
				return err
			}
		} else {
			fmt.Printf("Health: %s\n", status)
			fmt.Printf("Ready:  %s\n", renderStatus(ready.Status, "ready"))
			names := make([]string, 0, len(ready.Checks))
			for name := range ready.Checks {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %-8s %s\n", name, renderStatus(ready.Checks[name], "ok"))
			}
		}

		if status != "ok" || ready.Status != "ready" {
			return fmt.Errorf("unhealthy: %s/%s", status, ready.Status)
		}
		return nil
	},
}

func renderStatus(s, good string) string {
	if s == good {
		return ui.RenderOK(s)
	}
	return ui.RenderError(s)
}

func init() {
	healthCmd.Flags().StringVar(&apiURL, "url", defaultAPIURL(), "planetd HTTP URL")
}
