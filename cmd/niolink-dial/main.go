// Command niolink-dial opens TCP or UDP connections through the niolink
// transport and connectors, prints what arrives and sends stdin lines.
//
// Usage:
//
//	niolink-dial [flags] <host> <port>
//	niolink-dial [flags] --mdns <instance>
//	niolink-dial -i [flags]
//
// Examples:
//
//	niolink-dial 127.0.0.1 7000                  TCP connect, stdin to peer
//	niolink-dial -u 127.0.0.1 7001               UDP with a fixed peer
//	niolink-dial -u -s 0.0.0.0:7001              UDP receive from anyone
//	niolink-dial --mdns bench-1 --service _echo._tcp
//	niolink-dial -i --event-log dial.nlog        Interactive shell
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/niolink/niolink-go/cmd/niolink-dial/interactive"
	"github.com/niolink/niolink-go/cmd/niolink-dial/session"
	"github.com/niolink/niolink-go/pkg/config"
	"github.com/niolink/niolink-go/pkg/discovery"
	"github.com/niolink/niolink-go/pkg/log"
	"github.com/niolink/niolink-go/pkg/retry"
	"github.com/niolink/niolink-go/pkg/transport"
)

// version is overridable at link time:
//
//	go build -ldflags "-X main.version=1.2.0"
var version = "0.1.0"

type options struct {
	udp         bool
	local       string
	configPath  string
	eventLog    string
	mdns        string
	service     string
	iface       string
	timeout     time.Duration
	retries     int
	interactive bool
	strategy    string
	selectors   int
	verbose     int
	showVersion bool
	showHelp    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var opts options
	fs := flag.NewFlagSet("niolink-dial", flag.ContinueOnError)

	fs.BoolVarP(&opts.udp, "udp", "u", false, "UDP mode")
	fs.StringVarP(&opts.local, "source", "s", "", "Local address to bind (host:port)")
	fs.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	fs.StringVar(&opts.eventLog, "event-log", "", "Write lifecycle events to this .nlog file")
	fs.StringVar(&opts.mdns, "mdns", "", "Resolve this DNS-SD instance instead of host/port")
	fs.StringVar(&opts.service, "service", "_niolink._tcp", "DNS-SD service type for --mdns")
	fs.StringVar(&opts.iface, "iface", "", "Network interface for mDNS browsing")
	fs.DurationVarP(&opts.timeout, "timeout", "w", 0, "Connect timeout (default from config, 30s)")
	fs.IntVarP(&opts.retries, "retries", "r", 1, "Connect attempts on refusal or timeout")
	fs.BoolVarP(&opts.interactive, "interactive", "i", false, "Interactive shell")
	fs.StringVar(&opts.strategy, "strategy", "", "Dispatch strategy: worker or same-thread")
	fs.IntVar(&opts.selectors, "selectors", 0, "Number of selector goroutines")
	fs.CountVarP(&opts.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&opts.showHelp, "help", "h", false, "Show this help")
	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.showHelp {
		printUsage(fs)
		return nil
	}
	if opts.showVersion {
		fmt.Printf("niolink-dial %s\n", version)
		return nil
	}

	file, err := loadConfig(&opts, fs)
	if err != nil {
		return err
	}

	logger, err := newLogger(file, opts.verbose)
	if err != nil {
		return err
	}

	network := "tcp"
	if opts.udp {
		network = "udp"
	}
	target, err := targetFromArgs(&opts, fs.Args())
	if err != nil {
		return err
	}

	var eventLog log.Logger
	if file.Logging.EventLog != "" {
		fl, err := log.NewFileLogger(file.Logging.EventLog)
		if err != nil {
			return fmt.Errorf("event log: %w", err)
		}
		defer func() {
			if err := fl.Close(); err != nil {
				logger.Warn("event log close", "err", err)
			}
			if n := fl.Dropped(); n > 0 {
				logger.Warn("event log dropped events", "count", n, "written", fl.Written())
			}
		}()
		eventLog = fl
	}

	printer := session.NewPrinter(os.Stdout)
	tcfg := file.ToTransportConfig()
	tcfg.Processor = transport.NewFilterChain(printer)
	tcfg.Logger = logger
	tcfg.EventLog = eventLog

	tr := transport.NewTransport(tcfg)
	if err := tr.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := tr.Stop(); err != nil {
			logger.Warn("transport stop", "err", err)
		}
	}()

	sess := session.New(tr, session.Config{
		Output:      os.Stdout,
		Resolver:    discovery.NewResolver(discovery.ResolverConfig{Interface: opts.iface}),
		ServiceType: opts.service,
		Retries:     opts.retries,
		Backoff:     retry.BackoffConfig{Jitter: retry.JitterFactor},
		Logger:      logger,
	})

	if opts.interactive {
		shell, err := interactive.New(sess, tr)
		if err != nil {
			return err
		}
		printer.SetOutput(shell.Stdout())
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		if target != "" || opts.local != "" {
			t := target
			if t == "" {
				t = "-"
			}
			shell.Execute(ctx, fmt.Sprintf("connect %s %s %s", network, t, opts.local))
		}
		shell.Run(ctx, cancel)
		return nil
	}

	e, err := sess.Dial(ctx, network, target, opts.local)
	if err != nil {
		return err
	}
	logger.Info("connected",
		"conn_id", e.Conn.ID().String(),
		"local", addrString(e.Conn.LocalAddr()),
		"remote", addrString(e.Conn.RemoteAddr()))

	return pump(ctx, e.Conn, os.Stdin)
}

// loadConfig reads the optional file and lets flags override it.
func loadConfig(opts *options, fs *flag.FlagSet) (*config.File, error) {
	file := config.Default()
	if opts.configPath != "" {
		var err error
		if file, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	}
	if fs.Changed("timeout") {
		file.Transport.ConnectionTimeout = config.Duration(opts.timeout)
	}
	if fs.Changed("strategy") {
		file.Transport.Strategy = opts.strategy
	}
	if fs.Changed("selectors") {
		file.Transport.Selectors = opts.selectors
	}
	if fs.Changed("event-log") {
		file.Logging.EventLog = opts.eventLog
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return file, nil
}

func newLogger(file *config.File, verbose int) (*slog.Logger, error) {
	level, err := file.SlogLevel()
	if err != nil {
		return nil, err
	}
	if verbose > 0 {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// targetFromArgs builds the dial target from --mdns or host and port.
func targetFromArgs(opts *options, args []string) (string, error) {
	if opts.mdns != "" {
		if len(args) > 0 {
			return "", errors.New("--mdns takes no positional arguments")
		}
		return session.MDNSPrefix + opts.mdns, nil
	}
	switch len(args) {
	case 0:
		if opts.interactive || (opts.udp && opts.local != "") {
			return "", nil
		}
		return "", errors.New("host and port required (use --help for usage)")
	case 2:
		return net.JoinHostPort(args[0], args[1]), nil
	}
	return "", fmt.Errorf("expected <host> <port>, got %d arguments", len(args))
}

// pump sends stdin lines until EOF, then waits for the peer or a signal.
func pump(ctx context.Context, conn *transport.Connection, in io.Reader) error {
	closed := make(chan struct{})
	conn.AddCloseListener(func(*transport.Connection) { close(closed) })

	lines := make(chan []byte)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- append([]byte(scanner.Text()), '\n')
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return conn.Close()
		case <-closed:
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := session.Write(ctx, conn, line); err != nil {
				return err
			}
		}
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return "-"
	}
	return a.String()
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `niolink-dial %s

Opens one connection through the niolink transport, prints received data
and sends stdin lines.

Usage:
  niolink-dial [options] <host> <port>
  niolink-dial [options] --mdns <instance>
  niolink-dial -i [options]

Options:
`, version)
	fs.PrintDefaults()
}
