package log

import (
	"strings"
	"time"
)

// Event is one lifecycle record. CBOR encoding uses integer keys.
// Exactly one of the payload pointers is normally set.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID is the UUID of the connection the event belongs to.
	ConnectionID string `cbor:"2,keyasint"`

	// Network is "tcp" or "udp".
	Network string `cbor:"3,keyasint,omitempty"`

	// Stage of the connect sequence that produced the event.
	Stage Stage `cbor:"4,keyasint"`

	// Category classifies the payload.
	Category Category `cbor:"5,keyasint"`

	LocalAddr  string `cbor:"6,keyasint,omitempty"`
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	StateChange  *StateChangeEvent  `cbor:"8,keyasint,omitempty"`
	Registration *RegistrationEvent `cbor:"9,keyasint,omitempty"`
	Dispatch     *DispatchEvent     `cbor:"10,keyasint,omitempty"`
	Error        *ErrorEventData    `cbor:"11,keyasint,omitempty"`

	// Summary marks the trailer a FileLogger writes on Close. Readers
	// collect trailers instead of returning them as events.
	Summary *SessionSummary `cbor:"12,keyasint,omitempty"`
}

// Stage identifies where in the connect sequence an event was produced.
type Stage uint8

const (
	// StageSetup covers open, configure, bind and the connect syscall.
	StageSetup Stage = 0
	// StageRegistration covers the distributor hand-off.
	StageRegistration Stage = 1
	// StageHandshake covers finishing the OS handshake.
	StageHandshake Stage = 2
	// StageDispatch covers pipeline processing of the connect event.
	StageDispatch Stage = 3
	// StageIO covers post-connect reads and writes.
	StageIO Stage = 4
	// StageClose covers connection teardown.
	StageClose Stage = 5
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageSetup:
		return "SETUP"
	case StageRegistration:
		return "REGISTRATION"
	case StageHandshake:
		return "HANDSHAKE"
	case StageDispatch:
		return "DISPATCH"
	case StageIO:
		return "IO"
	case StageClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// AllStages lists every stage in display order.
var AllStages = []Stage{StageSetup, StageRegistration, StageHandshake, StageDispatch, StageIO, StageClose}

// ParseStage parses a case-insensitive stage name.
func ParseStage(s string) (Stage, bool) {
	for _, st := range AllStages {
		if strings.EqualFold(st.String(), s) {
			return st, true
		}
	}
	return 0, false
}

// Category classifies the event payload.
type Category uint8

const (
	// CategoryState indicates a connection state transition.
	CategoryState Category = 0
	// CategoryRegistration indicates a completed distributor registration.
	CategoryRegistration Category = 1
	// CategoryDispatch indicates a pipeline dispatch outcome.
	CategoryDispatch Category = 2
	// CategoryError indicates a failure.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryState:
		return "STATE"
	case CategoryRegistration:
		return "REGISTRATION"
	case CategoryDispatch:
		return "DISPATCH"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// AllCategories lists every category in display order.
var AllCategories = []Category{CategoryState, CategoryRegistration, CategoryDispatch, CategoryError}

// ParseCategory parses a case-insensitive category name.
func ParseCategory(s string) (Category, bool) {
	for _, c := range AllCategories {
		if strings.EqualFold(c.String(), s) {
			return c, true
		}
	}
	return 0, false
}

// StateChangeEvent records a connection state transition.
type StateChangeEvent struct {
	OldState string `cbor:"1,keyasint,omitempty"`
	NewState string `cbor:"2,keyasint"`
	Reason   string `cbor:"3,keyasint,omitempty"`
}

// RegistrationEvent records a channel accepted by a selector.
type RegistrationEvent struct {
	// Interest is the interest set the channel was registered with.
	Interest string `cbor:"1,keyasint"`

	// Selector is the index of the selector that owns the channel.
	Selector int `cbor:"2,keyasint"`
}

// DispatchEvent records one pipeline dispatch and its outcome.
type DispatchEvent struct {
	// Event is the IO event kind that was dispatched.
	Event string `cbor:"1,keyasint"`

	// Outcome reported by the pipeline.
	Outcome string `cbor:"2,keyasint"`

	// Reason is the termination reason, if any.
	Reason string `cbor:"3,keyasint,omitempty"`

	// ReadEnabled records whether read interest was enabled afterwards.
	ReadEnabled bool `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData records a failure.
type ErrorEventData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Context describes the operation that failed.
	Context string `cbor:"2,keyasint,omitempty"`
}

// SessionSummary accounts for one FileLogger session.
type SessionSummary struct {
	// Written is the number of events encoded to the file.
	Written int `cbor:"1,keyasint"`

	// Dropped counts events that failed to encode or arrived after Close
	// had begun.
	Dropped int `cbor:"2,keyasint,omitempty"`
}
