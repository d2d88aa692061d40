package transport

// Processor handles one dispatched event and reports its outcome.
type Processor interface {
	Process(ctx *Context) ProcessorResult
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx *Context) ProcessorResult

// Process calls f(ctx).
func (f ProcessorFunc) Process(ctx *Context) ProcessorResult { return f(ctx) }

// LifecycleListener observes the outcome of a single dispatch.
// OnResult is called exactly once per dispatch, with the final outcome,
// and must not block. Rerun and Reregister are consumed by the strategy.
type LifecycleListener interface {
	OnResult(ctx *Context, result ProcessorResult)
}

// ListenerFunc adapts a function to LifecycleListener.
type ListenerFunc func(ctx *Context, result ProcessorResult)

// OnResult calls f(ctx, result).
func (f ListenerFunc) OnResult(ctx *Context, result ProcessorResult) { f(ctx, result) }

// maxReruns bounds how often a single dispatch may ask to run again.
const maxReruns = 64

// task is one dispatch in flight. It keeps its Context across reruns.
type task struct {
	ctx      *Context
	listener LifecycleListener
	reruns   int
}

func newTask(conn *Connection, event IOEvent, listener LifecycleListener) *task {
	return &task{ctx: &Context{Conn: conn, Event: event}, listener: listener}
}

// step runs p until it settles. Rerun runs it again in place. It returns
// false on Reregister, which the strategy schedules anew; otherwise the
// listener has heard the final outcome.
func (t *task) step(p Processor) bool {
	for {
		result := runProcessor(p, t.ctx)
		if result.Outcome == OutcomeRerun || result.Outcome == OutcomeReregister {
			t.reruns++
			if t.reruns > maxReruns {
				t.finish(Failed(ErrTooManyReruns))
				return true
			}
			if result.Outcome == OutcomeRerun {
				continue
			}
			return false
		}
		t.finish(result)
		return true
	}
}

func (t *task) finish(result ProcessorResult) {
	if t.listener != nil {
		t.listener.OnResult(t.ctx, result)
	}
}

func runProcessor(p Processor, ctx *Context) (result ProcessorResult) {
	if p == nil {
		return NotRun()
	}
	defer func() {
		if r := recover(); r != nil {
			result = Failed(&PanicError{Value: r})
		}
	}()
	return p.Process(ctx)
}
