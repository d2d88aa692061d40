// Command niolink-log views and analyzes niolink lifecycle log files.
//
// Log files are written by niolink-dial with --event-log, or by any
// program that installs a log.FileLogger as the transport event log.
//
// Usage:
//
//	niolink-log <command> [flags] <file.nlog>
//
// Examples:
//
//	# View dispatch outcomes only
//	niolink-log view --category dispatch dial.nlog
//
//	# Keep one connection's events
//	niolink-log filter --conn-id 5f0c1b2a-... -o one.nlog dial.nlog
//
//	# Show statistics
//	niolink-log stats dial.nlog
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/niolink/niolink-go/cmd/niolink-log/commands"
)

const usage = `niolink-log - niolink Lifecycle Log Analyzer

Usage:
  niolink-log <command> [flags] <file.nlog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSONL or CSV
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "niolink-log <command> --help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "view":
		err = runView(args)
	case "export":
		err = runExport(args)
	case "filter":
		err = runFilter(args)
	case "stats":
		err = runStats(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "niolink-log %s - %s\n\nUsage:\n  niolink-log %s [flags] <file.nlog>\n\nFlags:\n",
			name, summary, name)
		fs.PrintDefaults()
	}
	return fs
}

func addFilterFlags(fs *flag.FlagSet, opts *commands.FilterOptions) {
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.Network, "network", "", "Filter by network (tcp, udp)")
	fs.StringVar(&opts.Stage, "stage", "", "Filter by stage (setup, registration, handshake, dispatch, io, close)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (state, registration, dispatch, error)")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
}

func logPath(fs *flag.FlagSet) (string, error) {
	if fs.NArg() < 1 {
		fs.Usage()
		return "", fmt.Errorf("log file path required")
	}
	return fs.Arg(0), nil
}

func runView(args []string) error {
	fs := newFlagSet("view", "View log file in human-readable format")
	var opts commands.FilterOptions
	addFilterFlags(fs, &opts)
	_ = fs.Parse(args)

	path, err := logPath(fs)
	if err != nil {
		return err
	}
	filter, err := opts.Build()
	if err != nil {
		return err
	}
	return commands.RunView(path, filter, os.Stdout)
}

func runExport(args []string) error {
	fs := newFlagSet("export", "Export log file to JSONL or CSV")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.StringP("output", "o", "", "Output file (default: stdout)")
	_ = fs.Parse(args)

	path, err := logPath(fs)
	if err != nil {
		return err
	}
	return commands.RunExport(path, *format, *output)
}

func runFilter(args []string) error {
	fs := newFlagSet("filter", "Filter log file and write to new file")
	var opts commands.FilterOptions
	addFilterFlags(fs, &opts)
	output := fs.StringP("output", "o", "", "Output file (required)")
	_ = fs.Parse(args)

	path, err := logPath(fs)
	if err != nil {
		return err
	}
	if *output == "" {
		fs.Usage()
		return fmt.Errorf("output file (-o) required")
	}
	return commands.RunFilter(path, *output, opts, os.Stdout)
}

func runStats(args []string) error {
	fs := newFlagSet("stats", "Show statistics about the log file")
	_ = fs.Parse(args)

	path, err := logPath(fs)
	if err != nil {
		return err
	}
	return commands.RunStats(path, os.Stdout)
}
