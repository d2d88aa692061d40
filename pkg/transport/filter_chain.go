package transport

// NextAction tells a FilterChain what to do after a filter ran.
type NextAction struct {
	kind   actionKind
	reason any
}

type actionKind int

const (
	actionInvoke actionKind = iota
	actionStop
	actionStopLeaveOpen
	actionTerminate
	actionRerun
	actionReregister
)

// Invoke continues with the next filter.
func Invoke() NextAction { return NextAction{kind: actionInvoke} }

// Stop ends the chain with OutcomeCompleted.
func Stop() NextAction { return NextAction{kind: actionStop} }

// StopLeaveOpen ends the chain with OutcomeCompletedLeaveOpen.
func StopLeaveOpen() NextAction { return NextAction{kind: actionStopLeaveOpen} }

// Terminate ends the chain with OutcomeTerminate and the given reason.
func Terminate(reason any) NextAction { return NextAction{kind: actionTerminate, reason: reason} }

// Rerun ends the chain with OutcomeRerun.
func Rerun() NextAction { return NextAction{kind: actionRerun} }

// Reregister ends the chain with OutcomeReregister.
func Reregister() NextAction { return NextAction{kind: actionReregister} }

// Filter is one stage of a FilterChain.
type Filter interface {
	HandleEvent(ctx *Context) (NextAction, error)
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(ctx *Context) (NextAction, error)

// HandleEvent calls f(ctx).
func (f FilterFunc) HandleEvent(ctx *Context) (NextAction, error) { return f(ctx) }

// FilterChain is a Processor that runs filters in order.
//
// An empty chain reports OutcomeNotRun. A chain whose filters all
// return Invoke reports OutcomeCompleted. A filter error ends the chain
// with OutcomeError.
type FilterChain struct {
	filters []Filter
}

// NewFilterChain creates a chain from filters. Nil filters are skipped.
func NewFilterChain(filters ...Filter) *FilterChain {
	c := &FilterChain{}
	for _, f := range filters {
		if f != nil {
			c.filters = append(c.filters, f)
		}
	}
	return c
}

// Len returns the number of filters.
func (c *FilterChain) Len() int {
	return len(c.filters)
}

// Process runs the chain for one event.
func (c *FilterChain) Process(ctx *Context) ProcessorResult {
	if len(c.filters) == 0 {
		return NotRun()
	}
	for _, f := range c.filters {
		action, err := f.HandleEvent(ctx)
		if err != nil {
			return Failed(err)
		}
		switch action.kind {
		case actionInvoke:
			continue
		case actionStop:
			return Completed()
		case actionStopLeaveOpen:
			return CompletedLeaveOpen()
		case actionTerminate:
			return Terminated(action.reason)
		case actionRerun:
			return ProcessorResult{Outcome: OutcomeRerun}
		case actionReregister:
			return ProcessorResult{Outcome: OutcomeReregister}
		}
	}
	return Completed()
}
