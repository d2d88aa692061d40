package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/niolink/niolink-go/pkg/log"
)

// RunExport writes the log as jsonl or csv to output, or to stdout when
// output is empty.
func RunExport(path, format, output string) error {
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return export(path, format, w)
}

func export(path, format string, w io.Writer) error {
	switch format {
	case "jsonl":
		encoder := json.NewEncoder(w)
		return forEach(path, log.Filter{}, func(event log.Event) error {
			if err := encoder.Encode(event); err != nil {
				return fmt.Errorf("failed to encode event: %w", err)
			}
			return nil
		})
	case "csv":
		cw := csv.NewWriter(w)
		header := []string{"timestamp", "connection_id", "network", "stage", "category", "remote", "type", "detail"}
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		err := forEach(path, log.Filter{}, func(event log.Event) error {
			kind, detail := describe(event)
			row := []string{
				event.Timestamp.UTC().Format(timeLayout),
				event.ConnectionID,
				event.Network,
				event.Stage.String(),
				event.Category.String(),
				event.RemoteAddr,
				kind,
				detail,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
			return nil
		})
		cw.Flush()
		if err != nil {
			return err
		}
		return cw.Error()
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

// describe returns a short type label and detail string for a row.
func describe(event log.Event) (string, string) {
	switch {
	case event.StateChange != nil:
		return "state", event.StateChange.OldState + "->" + event.StateChange.NewState
	case event.Registration != nil:
		return "registration", event.Registration.Interest
	case event.Dispatch != nil:
		return "dispatch", event.Dispatch.Event + ":" + event.Dispatch.Outcome
	case event.Error != nil:
		return "error", event.Error.Message
	}
	return "unknown", ""
}
