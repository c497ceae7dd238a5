package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/planetpulse/internal/model"
)

// PrintDayCounts writes counts as a DATE/COUNT table followed by a total.
func PrintDayCounts(w io.Writer, counts model.DayCounts) error {
	if len(counts) == 0 {
		_, err := fmt.Fprintln(w, RenderMuted("no events recorded"))
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\n", RenderAccent("DATE"), RenderAccent("COUNT"))
	var total int64
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%d\n", c.Date, c.Count)
		total += c.Count
	}
	fmt.Fprintf(tw, "%s\t%d\n", RenderMuted("total"), total)
	return tw.Flush()
}

// PrintPlanets writes planets as an ID/NAME/POPULATION/CLIMATES/TERRAINS table.
func PrintPlanets(w io.Writer, planets []*model.Planet) error {
	if len(planets) == 0 {
		_, err := fmt.Fprintln(w, RenderMuted("no planets"))
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
		RenderAccent("ID"), RenderAccent("NAME"), RenderAccent("POPULATION"),
		RenderAccent("CLIMATES"), RenderAccent("TERRAINS"))
	for _, p := range planets {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			p.ID, p.Name, population(p.Population),
			strings.Join(p.Climates, ", "), strings.Join(p.Terrains, ", "))
	}
	return tw.Flush()
}

func population(p *int64) string {
	if p == nil {
		return RenderMuted("unknown")
	}
	return strconv.FormatInt(*p, 10)
}
