package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes lifecycle events to an slog.Logger at Debug level,
// except errors which go out at Warn.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter. A nil logger means slog.Default().
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("stage", event.Stage.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Network != "" {
		attrs = append(attrs, slog.String("network", event.Network))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}

	level := slog.LevelDebug
	switch {
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Registration != nil:
		attrs = append(attrs,
			slog.String("interest", event.Registration.Interest),
			slog.Int("selector", event.Registration.Selector),
		)
	case event.Dispatch != nil:
		attrs = append(attrs,
			slog.String("event", event.Dispatch.Event),
			slog.String("outcome", event.Dispatch.Outcome),
			slog.Bool("read_enabled", event.Dispatch.ReadEnabled),
		)
		if event.Dispatch.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Dispatch.Reason))
		}
	case event.Error != nil:
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", event.Error.Message))
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), level, "lifecycle", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
