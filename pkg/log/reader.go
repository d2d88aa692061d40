package log

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero-valued fields match everything.
type Filter struct {
	ConnectionID string
	Network      string
	Stage        *Stage
	Category     *Category
	TimeStart    *time.Time // inclusive
	TimeEnd      *time.Time // exclusive
}

// Match reports whether event satisfies every criterion.
func (f Filter) Match(event Event) bool {
	switch {
	case f.ConnectionID != "" && event.ConnectionID != f.ConnectionID:
		return false
	case f.Network != "" && event.Network != f.Network:
		return false
	case f.Stage != nil && event.Stage != *f.Stage:
		return false
	case f.Category != nil && event.Category != *f.Category:
		return false
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

// Reader streams events from a .nlog file. Session trailers are not
// returned by Next; Sessions totals the ones read so far.
type Reader struct {
	file     *os.File
	decoder  *cbor.Decoder
	filter   Filter
	sessions int
	totals   SessionSummary
}

// NewReader opens path and reads every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path and reads events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at the end of the file.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if event.Summary != nil {
			r.sessions++
			r.totals.Written += event.Summary.Written
			r.totals.Dropped += event.Summary.Dropped
			continue
		}
		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// Sessions returns the number of session trailers read so far and the
// sum of their counters.
func (r *Reader) Sessions() (int, SessionSummary) {
	return r.sessions, r.totals
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
