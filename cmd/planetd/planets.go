package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planetpulse/internal/catalog"
	"github.com/alfredjeanlab/planetpulse/internal/model"
	"github.com/alfredjeanlab/planetpulse/internal/ui"
)

var planetsCmd = &cobra.Command{
	Use:     "planets",
	Short:   "Manage the planet catalog",
	GroupID: "catalog",
}

// withCatalog opens the store, cache and publisher, runs fn, and closes them.
func withCatalog(cmd *cobra.Command, fn func(svc *catalog.Service) error) error {
	ctx := cmd.Context()

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

	return fn(newCatalog(st, c, pub, cfg, logger))
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid planet id %q", s)
	}
	return id, nil
}

func printPlanet(p *model.Planet) error {
	if jsonOutput {
		return printJSON(p)
	}
	return ui.PrintPlanets(os.Stdout, []*model.Planet{p})
}

var planetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List planets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(svc *catalog.Service) error {
			list, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(list)
			}
			return ui.PrintPlanets(os.Stdout, list)
		})
	},
}

var planetsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one planet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withCatalog(cmd, func(svc *catalog.Service) error {
			p, err := svc.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printPlanet(p)
		})
	},
}

var planetsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a planet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := planetFromFlags(cmd)
		if err != nil {
			return err
		}
		return withCatalog(cmd, func(svc *catalog.Service) error {
			created, err := svc.Create(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printPlanet(created)
		})
	},
}

var planetsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a planet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		u, err := updateFromFlags(cmd)
		if err != nil {
			return err
		}
		return withCatalog(cmd, func(svc *catalog.Service) error {
			updated, err := svc.Update(cmd.Context(), id, u)
			if err != nil {
				return err
			}
			return printPlanet(updated)
		})
	},
}

var planetsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a planet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withCatalog(cmd, func(svc *catalog.Service) error {
			if err := svc.Delete(cmd.Context(), id); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]int64{"deleted": id})
			}
			fmt.Printf("Deleted planet %d\n", id)
			return nil
		})
	},
}

// planetFromFlags builds a new planet from the create flags.
func planetFromFlags(cmd *cobra.Command) (*model.Planet, error) {
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		return nil, fmt.Errorf("--name is required")
	}
	p := &model.Planet{Name: name}
	if cmd.Flags().Changed("population") {
		pop, _ := cmd.Flags().GetInt64("population")
		p.Population = &pop
	}
	p.Climates, _ = cmd.Flags().GetStringSlice("climate")
	p.Terrains, _ = cmd.Flags().GetStringSlice("terrain")
	return p, nil
}

// updateFromFlags collects only the flags that were set.
func updateFromFlags(cmd *cobra.Command) (model.PlanetUpdate, error) {
	var u model.PlanetUpdate
	changed := false
	if cmd.Flags().Changed("name") {
		name, _ := cmd.Flags().GetString("name")
		u.Name = &name
		changed = true
	}
	if cmd.Flags().Changed("population") {
		pop, _ := cmd.Flags().GetInt64("population")
		u.Population = &pop
		changed = true
	}
	if cmd.Flags().Changed("climate") {
		climates, _ := cmd.Flags().GetStringSlice("climate")
		u.Climates = &climates
		changed = true
	}
	if cmd.Flags().Changed("terrain") {
		terrains, _ := cmd.Flags().GetStringSlice("terrain")
		u.Terrains = &terrains
		changed = true
	}
	if !changed {
		return u, fmt.Errorf("nothing to update (use --name, --population, --climate or --terrain)")
	}
	return u, nil
}

func addPlanetFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "planet name")
	cmd.Flags().Int64("population", 0, "population (omit when unknown)")
	cmd.Flags().StringSlice("climate", nil, "climate (repeatable or comma-separated)")
	cmd.Flags().StringSlice("terrain", nil, "terrain (repeatable or comma-separated)")
}

func init() {
	addPlanetFlags(planetsCreateCmd)
	addPlanetFlags(planetsUpdateCmd)

	planetsCmd.AddCommand(planetsListCmd)
	planetsCmd.AddCommand(planetsGetCmd)
	planetsCmd.AddCommand(planetsCreateCmd)
	planetsCmd.AddCommand(planetsUpdateCmd)
	planetsCmd.AddCommand(planetsDeleteCmd)
}
