package commands

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/niolink/niolink-go/pkg/log"
)

// Stats aggregates a lifecycle log.
type Stats struct {
	TotalEvents      int
	EventsByStage    map[log.Stage]int
	EventsByCategory map[log.Category]int
	Outcomes         map[string]int
	Connections      map[string]*ConnectionStats
	Errors           int
	First, Last      time.Time

	// Sessions counts the logger sessions that closed cleanly; Dropped
	// sums the events they could not write.
	Sessions int
	Dropped  int
}

// ConnectionStats summarizes one connection id.
type ConnectionStats struct {
	ID         string
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	Network    string
	RemoteAddr string
	FinalState string
}

func newStats() *Stats {
	return &Stats{
		EventsByStage:    make(map[log.Stage]int),
		EventsByCategory: make(map[log.Category]int),
		Outcomes:         make(map[string]int),
		Connections:      make(map[string]*ConnectionStats),
	}
}

func (s *Stats) add(e log.Event) {
	s.TotalEvents++
	s.EventsByStage[e.Stage]++
	s.EventsByCategory[e.Category]++
	if s.First.IsZero() || e.Timestamp.Before(s.First) {
		s.First = e.Timestamp
	}
	if e.Timestamp.After(s.Last) {
		s.Last = e.Timestamp
	}
	if e.Dispatch != nil {
		s.Outcomes[e.Dispatch.Outcome]++
	}
	if e.Error != nil {
		s.Errors++
	}

	c := s.Connections[e.ConnectionID]
	if c == nil {
		c = &ConnectionStats{ID: e.ConnectionID, FirstSeen: e.Timestamp, LastSeen: e.Timestamp}
		s.Connections[e.ConnectionID] = c
	}
	c.add(e)
}

func (c *ConnectionStats) add(e log.Event) {
	c.Events++
	if e.Timestamp.After(c.LastSeen) {
		c.LastSeen = e.Timestamp
	}
	if c.Network == "" {
		c.Network = e.Network
	}
	if c.RemoteAddr == "" {
		c.RemoteAddr = e.RemoteAddr
	}
	if e.StateChange != nil {
		c.FinalState = e.StateChange.NewState
	}
}

// Lifetime is the span between the first and last event of the connection.
func (c *ConnectionStats) Lifetime() time.Duration {
	return c.LastSeen.Sub(c.FirstSeen).Round(time.Millisecond)
}

// Collect reads path and aggregates statistics.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	s := newStats()
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		s.add(event)
	}
	var summary log.SessionSummary
	s.Sessions, summary = reader.Sessions()
	s.Dropped = summary.Dropped
	return s, nil
}

// RunStats prints the statistics of the log at path.
func RunStats(path string, w io.Writer) error {
	s, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, s)
	return nil
}

func printStats(w io.Writer, s *Stats) {
	fmt.Fprintln(w, "=== niolink Lifecycle Log Statistics ===")
	fmt.Fprintln(w)

	if s.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n", s.First.Format(time.RFC3339), s.Last.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n\n", s.Last.Sub(s.First).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Total Events: %d\n", s.TotalEvents)
	fmt.Fprintf(w, "Logging Sessions: %d\n", s.Sessions)
	if s.Dropped > 0 {
		fmt.Fprintf(w, "Dropped Events: %d\n", s.Dropped)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Stage:")
	for _, st := range log.AllStages {
		if n := s.EventsByStage[st]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", st.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range log.AllCategories {
		if n := s.EventsByCategory[cat]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", cat.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	if len(s.Outcomes) > 0 {
		fmt.Fprintln(w, "Dispatch Outcomes:")
		for _, name := range slices.Sorted(maps.Keys(s.Outcomes)) {
			fmt.Fprintf(w, "  %-22s %d\n", name+":", s.Outcomes[name])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(s.Connections))
	if len(s.Connections) > 0 {
		fmt.Fprintln(w)
		conns := slices.SortedFunc(maps.Values(s.Connections), func(a, b *ConnectionStats) int {
			return a.FirstSeen.Compare(b.FirstSeen)
		})
		for _, c := range conns {
			fmt.Fprintf(w, "  [%s] %s %d events, duration %s\n",
				shortenConnID(c.ID), orDash(c.Network), c.Events, c.Lifetime())
			if c.RemoteAddr != "" {
				fmt.Fprintf(w, "           Remote: %s\n", c.RemoteAddr)
			}
			if c.FinalState != "" {
				fmt.Fprintf(w, "           State: %s\n", c.FinalState)
			}
		}
	}

	if s.Errors > 0 {
		fmt.Fprintf(w, "\nErrors: %d\n", s.Errors)
	}
}
