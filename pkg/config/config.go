package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/niolink/niolink-go/pkg/transport"
)

// File is the root of a configuration file.
type File struct {
	Transport Transport `yaml:"transport"`
	Logging   Logging   `yaml:"logging"`
}

// Transport holds transport.TransportConfig settings.
type Transport struct {
	// Selectors is the number of selector goroutines. Zero picks NumCPU.
	Selectors int `yaml:"selectors"`

	// Strategy is "worker" or "same-thread".
	Strategy string `yaml:"strategy"`

	// Workers is the worker pool size. Zero picks 2*NumCPU.
	Workers int `yaml:"workers"`

	// QueueSize is the worker queue capacity.
	QueueSize int `yaml:"queue_size"`

	ReuseAddress bool `yaml:"reuse_address"`

	ConnectionTimeout Duration `yaml:"connection_timeout"`
}

// Logging selects the log level and an optional lifecycle event log.
type Logging struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// EventLog is a path for the CBOR lifecycle log. Empty disables it.
	EventLog string `yaml:"event_log,omitempty"`
}

// Error reports a configuration file problem.
type Error struct {
	// File is the path, empty when parsing from memory.
	File string

	// Message describes the problem.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Default returns the built-in configuration.
func Default() *File {
	return &File{
		Transport: Transport{
			Strategy:          string(transport.StrategyWorker),
			QueueSize:         transport.DefaultQueueSize,
			ConnectionTimeout: Duration(transport.DefaultConnectionTimeout),
		},
		Logging: Logging{Level: "info"},
	}
}

// Parse reads YAML data over Default and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	f := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &Error{Message: "failed to parse YAML", Cause: err}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{File: path, Message: "failed to read file", Cause: err}
	}
	f, err := Parse(data)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.File = path
		}
		return nil, err
	}
	return f, nil
}

// Validate checks value ranges and enumerations.
func (f *File) Validate() error {
	t := f.Transport
	switch {
	case t.Selectors < 0:
		return &Error{Message: fmt.Sprintf("transport.selectors must not be negative, got %d", t.Selectors)}
	case t.Workers < 0:
		return &Error{Message: fmt.Sprintf("transport.workers must not be negative, got %d", t.Workers)}
	case t.QueueSize < 0:
		return &Error{Message: fmt.Sprintf("transport.queue_size must not be negative, got %d", t.QueueSize)}
	case t.ConnectionTimeout < 0:
		return &Error{Message: fmt.Sprintf("transport.connection_timeout must not be negative, got %s", t.ConnectionTimeout.Std())}
	}
	switch transport.StrategyKind(t.Strategy) {
	case "", transport.StrategyWorker, transport.StrategySameThread:
	default:
		return &Error{Message: fmt.Sprintf("transport.strategy %q is not one of worker, same-thread", t.Strategy)}
	}
	if _, err := f.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps Logging.Level to a slog.Level. Empty means info.
func (f *File) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(f.Logging.Level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, &Error{Message: fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", f.Logging.Level)}
}

// ToTransportConfig maps the transport section. Loggers, processor and
// custom components are left for the caller.
func (f *File) ToTransportConfig() transport.TransportConfig {
	t := f.Transport
	timeout := t.ConnectionTimeout.Std()
	if timeout == 0 {
		timeout = transport.DefaultConnectionTimeout
	}
	return transport.TransportConfig{
		Selectors:         t.Selectors,
		Strategy:          transport.StrategyKind(t.Strategy),
		Workers:           t.Workers,
		QueueSize:         t.QueueSize,
		ReuseAddress:      t.ReuseAddress,
		ConnectionTimeout: timeout,
	}
}

// Marshal renders f as YAML.
func (f *File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}

// ConnectionTimeout returns the effective connect timeout.
func (f *File) ConnectionTimeout() time.Duration {
	return f.ToTransportConfig().ConnectionTimeout
}
