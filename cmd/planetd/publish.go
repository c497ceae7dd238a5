package main

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planetpulse/internal/events"
	"github.com/alfredjeanlab/planetpulse/internal/model"
)

var publishCmd = &cobra.Command{
	Use:     "publish <type> [json]",
	Short:   "Publish one event to the planet topic",
	Example: `  planetd publish created '{"id":1,"name":"Tatooine"}'`,
	GroupID: "pipeline",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eventType, data, err := parsePublishArgs(args)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		pub, err := newPublisher(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pub.Close()

		if err := events.NewEmitter(pub, cfg.Topic, logger).Emit(ctx, eventType, data); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(model.Event{Type: eventType, Data: data})
		}
		fmt.Printf("Published %s to %s\n", eventType, cfg.Topic)
		return nil
	},
}

// parsePublishArgs validates the event type and JSON payload.
func parsePublishArgs(args []string) (string, json.RawMessage, error) {
	eventType := args[0]
	if eventType == "" {
		return "", nil, fmt.Errorf("event type must not be empty")
	}
	if utf8.RuneCountInString(eventType) > model.MaxEventTypeLen {
		return "", nil, fmt.Errorf("event type %q exceeds %d characters", eventType, model.MaxEventTypeLen)
	}
	data := json.RawMessage("{}")
	if len(args) > 1 {
		if !json.Valid([]byte(args[1])) {
			return "", nil, fmt.Errorf("payload is not valid JSON: %s", args[1])
		}
		data = json.RawMessage(args[1])
	}
	return eventType, data, nil
}
