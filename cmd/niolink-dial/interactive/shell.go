// Package interactive provides the niolink-dial command shell.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"

	"github.com/niolink/niolink-go/cmd/niolink-dial/session"
	"github.com/niolink/niolink-go/pkg/transport"
)

// Shell runs the interactive command loop.
type Shell struct {
	sess *session.Session
	tr   *transport.Transport
	rl   *readline.Instance
}

// New creates a shell over sess.
func New(sess *session.Session, tr *transport.Transport) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "dial> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("connect", readline.PcItem("tcp"), readline.PcItem("udp")),
			readline.PcItem("send"),
			readline.PcItem("close"),
			readline.PcItem("list"),
			readline.PcItem("info"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{sess: sess, tr: tr, rl: rl}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run reads commands until EOF, quit or ctx ends.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		if quit := s.Execute(ctx, line); quit {
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the shell should exit.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	out := s.rl.Stdout()
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "connect", "c":
		err = s.cmdConnect(ctx, args)
	case "send", "s":
		err = s.cmdSend(ctx, args, input)
	case "close":
		err = s.cmdClose(args)
	case "list", "ls":
		s.cmdList()
	case "info":
		fmt.Fprintf(out, "transport running=%v connections=%d selectors=%d\n",
			s.tr.IsRunning(), s.tr.ConnectionCount(), len(s.tr.Selectors()))
	case "quit", "exit", "q":
		s.sess.CloseAll()
		return true
	default:
		err = fmt.Errorf("unknown command %q (type 'help')", cmd)
	}
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
	}
	return false
}

func (s *Shell) cmdConnect(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: connect tcp|udp [target] [local]")
	}
	network := strings.ToLower(args[0])
	var target, local string
	if len(args) > 1 && args[1] != "-" {
		target = args[1]
	}
	if len(args) > 2 {
		local = args[2]
	}

	e, err := s.sess.Dial(ctx, network, target, local)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.rl.Stdout(), "#%d %s %s -> %s [%s]\n",
		e.ID, network, addrString(e.Conn.LocalAddr()), e.Target, e.Conn.ID().String()[:8])
	return nil
}

// cmdSend sends the rest of the line verbatim, after the id.
func (s *Shell) cmdSend(ctx context.Context, args []string, input string) error {
	if len(args) < 2 {
		return errors.New("usage: send <id> <text>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid id %q", args[0])
	}
	rest := strings.TrimSpace(input[strings.Index(input, args[0])+len(args[0]):])
	return s.sess.Send(ctx, id, []byte(rest+"\n"))
}

func (s *Shell) cmdClose(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: close <id>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid id %q", args[0])
	}
	return s.sess.Close(id)
}

func (s *Shell) cmdList() {
	entries := s.sess.List()
	if len(entries) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "no open connections")
		return
	}
	tw := tabwriter.NewWriter(s.rl.Stdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCONN\tNET\tSTATE\tLOCAL\tREMOTE\tREAD\tBYTES")
	for _, e := range entries {
		c := e.Conn
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%v\t%d\n",
			e.ID, c.ID().String()[:8], c.Network(), c.State(),
			addrString(c.LocalAddr()), e.Target, c.ReadEnabled(), c.BytesRead())
	}
	tw.Flush()
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.rl.Stdout(), `Commands:
  connect tcp|udp [target|-] [local] Dial host:port or mdns:<instance>; udp with - listens
  send <id> <text>                   Send a line
  close <id>                         Close a connection
  list                               Show open connections
  info                               Show transport status
  quit                               Close everything and exit
`)
}

func addrString(a fmt.Stringer) string {
	if a == nil {
		return "-"
	}
	return a.String()
}
