package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alfredjeanlab/planetpulse/internal/ui"
)

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func fmtErr(err error) {
	if !ui.ShouldUseColor(os.Stderr) {
		ui.ForceNoColor()
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("Error:"), err)
}
