// Package commands implements the niolink-log CLI commands.
package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/niolink/niolink-go/pkg/log"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format(timeLayout)
	network := event.Network
	if network == "" {
		network = "-"
	}
	fmt.Fprintf(w, "%s [conn:%s] %-3s %-12s %s\n",
		ts, shortenConnID(event.ConnectionID), network, event.Stage, event.Category)

	if event.RemoteAddr != "" || event.LocalAddr != "" {
		fmt.Fprintf(w, "  %s -> %s\n", orDash(event.LocalAddr), orDash(event.RemoteAddr))
	}

	switch {
	case event.StateChange != nil:
		sc := event.StateChange
		if sc.OldState != "" {
			fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
		} else {
			fmt.Fprintf(w, "  -> %s\n", sc.NewState)
		}
		if sc.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
		}
	case event.Registration != nil:
		fmt.Fprintf(w, "  Selector: %d  Interest: %s\n", event.Registration.Selector, event.Registration.Interest)
	case event.Dispatch != nil:
		d := event.Dispatch
		fmt.Fprintf(w, "  %s => %s", d.Event, d.Outcome)
		if d.Reason != "" {
			fmt.Fprintf(w, " (%s)", d.Reason)
		}
		if d.ReadEnabled {
			fmt.Fprint(w, " read-enabled")
		}
		fmt.Fprintln(w)
	case event.Error != nil:
		fmt.Fprintf(w, "  Message: %s\n", event.Error.Message)
		if event.Error.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", event.Error.Context)
		}
	}

	fmt.Fprintln(w)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// ParseStageFlag parses a stage name from a command-line flag.
func ParseStageFlag(s string) (log.Stage, error) {
	st, ok := log.ParseStage(s)
	if !ok {
		return 0, fmt.Errorf("invalid stage: %s (must be setup, registration, handshake, dispatch, io, or close)", s)
	}
	return st, nil
}

// ParseCategoryFlag parses a category name from a command-line flag.
func ParseCategoryFlag(s string) (log.Category, error) {
	c, ok := log.ParseCategory(s)
	if !ok {
		return 0, fmt.Errorf("invalid category: %s (must be state, registration, dispatch, or error)", s)
	}
	return c, nil
}

// RunView prints every event matching filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	return forEach(path, filter, func(event log.Event) error {
		formatEvent(output, event)
		return nil
	})
}

// forEach streams matching events from path into fn.
func forEach(path string, filter log.Filter, fn func(log.Event) error) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}
