// Package log captures connection lifecycle events for niolink transports.
//
// It is separate from operational logging (slog). Operational logs are
// for humans; lifecycle capture is a complete machine-readable trace of
// every connect attempt: state transitions, distributor registrations,
// pipeline dispatch outcomes and failures.
//
// # Basic Usage
//
//	// Development: print events through slog
//	cfg.EventLog = log.NewSlogAdapter(slog.Default())
//
//	// Production: append CBOR records to a file
//	cfg.EventLog, _ = log.NewFileLogger("/var/log/niolink/dial.nlog")
//
//	// Both
//	cfg.EventLog = log.NewMultiLogger(a, b)
//
// # Event Kinds
//
// Every Event carries a Stage (where in the connect sequence it was
// produced) and a Category (what kind of payload it carries):
//   - STATE: INITIAL -> CONNECTING -> CONNECTED -> CLOSED
//   - REGISTRATION: the distributor accepted the channel
//   - DISPATCH: a pipeline event finished with an outcome
//   - ERROR: any failure, with the stage it happened in
//
// # File Format
//
// Files are a plain sequence of CBOR records using integer keys and use
// the .nlog extension. The niolink-log tool views and summarizes them.
package log
