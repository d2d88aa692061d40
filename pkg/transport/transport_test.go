package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestInterestString(t *testing.T) {
	tests := []struct {
		interest Interest
		want     string
	}{
		{InterestNone, "NONE"},
		{InterestRead, "READ"},
		{InterestRead | InterestConnect, "READ|CONNECT"},
		{InterestWrite | Interest(1<<7), "WRITE|UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.interest.String(); got != tt.want {
			t.Errorf("Interest(%d).String() = %q, want %q", tt.interest, got, tt.want)
		}
	}
	if InterestRead.Has(InterestNone) {
		t.Error("Has(InterestNone) should be false")
	}
}

func TestFilterChainOutcomes(t *testing.T) {
	boom := errors.New("boom")
	reason := NewTerminateReason("custom")

	tests := []struct {
		name    string
		filters []Filter
		want    Outcome
	}{
		{"empty chain", nil, OutcomeNotRun},
		{"all invoke", []Filter{invoke(), invoke()}, OutcomeCompleted},
		{"stop", []Filter{invoke(), action(Stop())}, OutcomeCompleted},
		{"stop leave open", []Filter{action(StopLeaveOpen())}, OutcomeCompletedLeaveOpen},
		{"terminate", []Filter{action(Terminate(reason)), invoke()}, OutcomeTerminate},
		{"rerun", []Filter{action(Rerun())}, OutcomeRerun},
		{"reregister", []Filter{action(Reregister())}, OutcomeReregister},
		{"error", []Filter{FilterFunc(func(*Context) (NextAction, error) { return Invoke(), boom })}, OutcomeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewFilterChain(tt.filters...).Process(&Context{Event: EventConnect})
			if res.Outcome != tt.want {
				t.Errorf("outcome = %v, want %v", res.Outcome, tt.want)
			}
		})
	}
}

func TestFilterChainTerminateCarriesReason(t *testing.T) {
	res := NewFilterChain(action(Terminate(ConnectTerminate))).Process(&Context{})
	if res.Reason != ConnectTerminate {
		t.Errorf("reason = %v, want ConnectTerminate", res.Reason)
	}
	if ReasonString(res.Reason) != "connect" {
		t.Errorf("ReasonString = %q", ReasonString(res.Reason))
	}
}

func TestFilterChainStopsAfterTerminalAction(t *testing.T) {
	var ran bool
	chain := NewFilterChain(action(Stop()), FilterFunc(func(*Context) (NextAction, error) {
		ran = true
		return Invoke(), nil
	}))
	chain.Process(&Context{})
	if ran {
		t.Error("filter after Stop must not run")
	}
}

func invoke() Filter { return action(Invoke()) }

func action(a NextAction) Filter {
	return FilterFunc(func(*Context) (NextAction, error) { return a, nil })
}

func TestSameThreadStrategyReportsPanic(t *testing.T) {
	s := NewSameThreadStrategy(ProcessorFunc(func(*Context) ProcessorResult {
		panic("bad processor")
	}))

	var got ProcessorResult
	err := s.ExecuteEvent(nil, EventRead, ListenerFunc(func(_ *Context, res ProcessorResult) {
		got = res
	}))
	if err != nil {
		t.Fatalf("ExecuteEvent failed: %v", err)
	}
	var perr *PanicError
	if got.Outcome != OutcomeError || !errors.As(got.Err, &perr) {
		t.Errorf("expected panic reported as error outcome, got %+v", got)
	}
}

func TestWorkerStrategy(t *testing.T) {
	s := NewWorkerStrategy(ProcessorFunc(func(*Context) ProcessorResult {
		return Completed()
	}), 4, 128)

	var wg sync.WaitGroup
	var count atomic.Int32
	listener := ListenerFunc(func(_ *Context, res ProcessorResult) {
		if res.Outcome == OutcomeCompleted {
			count.Add(1)
		}
		wg.Done()
	})

	// Events submitted before Run wait in the queue.
	wg.Add(1)
	if err := s.ExecuteEvent(nil, EventRead, listener); err != nil {
		t.Fatalf("ExecuteEvent before Run failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for i := 0; i < 100; i++ {
		wg.Add(1)
		if err := s.ExecuteEvent(nil, EventRead, listener); err != nil {
			t.Fatalf("ExecuteEvent failed: %v", err)
		}
	}
	wg.Wait()
	if count.Load() != 101 {
		t.Errorf("expected 101 completed dispatches, got %d", count.Load())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if err := s.ExecuteEvent(nil, EventRead, nil); !errors.Is(err, ErrTransportNotRunning) {
		t.Errorf("expected ErrTransportNotRunning after stop, got %v", err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrTransportRunning) {
		t.Errorf("second Run: expected ErrTransportRunning, got %v", err)
	}
}

func TestWorkerStrategyStopLosesNoAcceptedEvent(t *testing.T) {
	for i := 0; i < 20; i++ {
		s := NewWorkerStrategy(ProcessorFunc(func(*Context) ProcessorResult {
			return Completed()
		}), 2, 8)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()

		var accepted, heard atomic.Int32
		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 50; n++ {
					err := s.ExecuteEvent(nil, EventRead, ListenerFunc(func(*Context, ProcessorResult) {
						heard.Add(1)
					}))
					if err == nil {
						accepted.Add(1)
					}
				}
			}()
		}
		time.Sleep(time.Millisecond)
		cancel()
		wg.Wait()
		<-done

		if accepted.Load() != heard.Load() {
			t.Fatalf("iteration %d: %d events accepted, %d listeners called", i, accepted.Load(), heard.Load())
		}
	}
}

// flaky answers with the given actions in turn, then Invoke.
func flaky(calls *atomic.Int32, actions ...NextAction) Filter {
	return FilterFunc(func(*Context) (NextAction, error) {
		n := int(calls.Add(1)) - 1
		if n < len(actions) {
			return actions[n], nil
		}
		return Invoke(), nil
	})
}

func TestStrategiesSettleRerunAndReregister(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	strategies := map[string]func(Processor) Strategy{
		"same-thread": func(p Processor) Strategy { return NewSameThreadStrategy(p) },
		"worker": func(p Processor) Strategy {
			ws := NewWorkerStrategy(p, 2, 4)
			go ws.Run(ctx)
			return ws
		},
	}
	for name, newStrategy := range strategies {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			chain := NewFilterChain(flaky(&calls, Rerun(), Reregister(), Rerun()))
			s := newStrategy(chain)

			results := make(chan ProcessorResult, 4)
			if err := s.ExecuteEvent(nil, EventConnect, ListenerFunc(func(_ *Context, res ProcessorResult) {
				results <- res
			})); err != nil {
				t.Fatalf("ExecuteEvent failed: %v", err)
			}

			select {
			case res := <-results:
				if res.Outcome != OutcomeCompleted {
					t.Errorf("expected final outcome COMPLETED, got %v", res.Outcome)
				}
			case <-time.After(time.Second):
				t.Fatal("dispatch never settled")
			}
			if calls.Load() != 4 {
				t.Errorf("expected 4 processor runs, got %d", calls.Load())
			}
			select {
			case res := <-results:
				t.Errorf("listener called twice, second outcome %v", res.Outcome)
			case <-time.After(20 * time.Millisecond):
			}
		})
	}
}

func TestRerunForeverFails(t *testing.T) {
	var calls atomic.Int32
	s := NewSameThreadStrategy(NewFilterChain(FilterFunc(func(*Context) (NextAction, error) {
		calls.Add(1)
		return Rerun(), nil
	})))

	var got ProcessorResult
	_ = s.ExecuteEvent(nil, EventRead, ListenerFunc(func(_ *Context, res ProcessorResult) { got = res }))
	if got.Outcome != OutcomeError || !errors.Is(got.Err, ErrTooManyReruns) {
		t.Errorf("expected ErrTooManyReruns, got %+v", got)
	}
	if calls.Load() != maxReruns+1 {
		t.Errorf("expected %d runs, got %d", maxReruns+1, calls.Load())
	}
}

func TestTransportAcceptsEventsRightAfterStart(t *testing.T) {
	for i := 0; i < 50; i++ {
		tr := NewTransport(TransportConfig{
			CustomDistributor: NewRoundRobinDistributor(nil),
			Strategy:          StrategyWorker,
			Processor: ProcessorFunc(func(*Context) ProcessorResult {
				return Completed()
			}),
		})
		if err := tr.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		results := make(chan ProcessorResult, 1)
		err := tr.ExecuteEvent(openTestConnection(t), EventConnect, ListenerFunc(func(_ *Context, res ProcessorResult) {
			results <- res
		}))
		if err != nil {
			t.Fatalf("iteration %d: ExecuteEvent right after Start: %v", i, err)
		}
		select {
		case res := <-results:
			if res.Outcome != OutcomeCompleted {
				t.Errorf("iteration %d: outcome %v", i, res.Outcome)
			}
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: listener never called", i)
		}
		if err := tr.Stop(); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
	}
}

func openTestConnection(t *testing.T) *Connection {
	t.Helper()
	ch, err := OpenChannel("udp", unix.AF_INET)
	if err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}
	conn := newConnection(nil, ch)
	t.Cleanup(conn.CloseQuietly)
	return conn
}

func TestConnectionStateTransitions(t *testing.T) {
	conn := openTestConnection(t)

	if conn.State() != StateInitial {
		t.Fatalf("expected INITIAL, got %v", conn.State())
	}
	if conn.IsReadyForDispatch() {
		t.Error("INITIAL connection must not be ready for dispatch")
	}
	if !conn.MarkConnecting() || conn.MarkConnecting() {
		t.Error("MarkConnecting should succeed exactly once")
	}

	var ready atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if conn.IsReadyForDispatch() {
				ready.Add(1)
			}
		}()
	}
	wg.Wait()
	if ready.Load() != 1 {
		t.Errorf("IsReadyForDispatch succeeded %d times, want 1", ready.Load())
	}
	if conn.State() != StateConnected {
		t.Errorf("expected CONNECTED, got %v", conn.State())
	}

	var closed atomic.Int32
	conn.AddCloseListener(func(*Connection) { closed.Add(1) })
	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	conn.AddCloseListener(func(*Connection) { closed.Add(1) })
	if closed.Load() != 2 {
		t.Errorf("close listeners ran %d times, want 2", closed.Load())
	}
	if conn.Channel().IsOpen() {
		t.Error("channel should be closed")
	}
}

func TestConnectionInterestLinearized(t *testing.T) {
	conn := openTestConnection(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = conn.RegisterInterest(InterestConnect)
		}()
		go func() {
			defer wg.Done()
			_ = conn.RegisterInterest(InterestWrite)
		}()
	}
	wg.Wait()
	if conn.Interest() != InterestConnect|InterestWrite {
		t.Fatalf("interest = %v", conn.Interest())
	}

	if err := conn.DeregisterInterest(InterestConnect); err != nil {
		t.Fatalf("DeregisterInterest failed: %v", err)
	}
	if conn.Interest() != InterestWrite {
		t.Errorf("interest = %v, want WRITE", conn.Interest())
	}
}

func TestEnableReadInterestOnce(t *testing.T) {
	conn := openTestConnection(t)

	for i := 0; i < 3; i++ {
		if err := conn.EnableReadInterest(); err != nil {
			t.Fatalf("EnableReadInterest failed: %v", err)
		}
	}
	if !conn.ReadEnabled() || !conn.Interest().Has(InterestRead) {
		t.Error("read interest should be enabled")
	}

	// Removing read interest does not let a second enable through.
	_ = conn.DeregisterInterest(InterestRead)
	_ = conn.EnableReadInterest()
	if conn.Interest().Has(InterestRead) {
		t.Error("EnableReadInterest must only act once")
	}
}

type recordingHandler struct {
	connected atomic.Int32
	failed    atomic.Int32
	err       error
}

func (h *recordingHandler) Connected() error {
	h.connected.Add(1)
	return h.err
}

func (h *recordingHandler) Failed(error) { h.failed.Add(1) }

func TestConnectResultHandlerAtMostOnce(t *testing.T) {
	conn := openTestConnection(t)
	h := &recordingHandler{}
	conn.SetConnectResultHandler(h)

	conn.OnConnect()
	conn.OnConnect()
	conn.CheckAndReportConnectFailure(errors.New("late"))

	if h.connected.Load() != 1 || h.failed.Load() != 0 {
		t.Errorf("connected=%d failed=%d, want 1 and 0", h.connected.Load(), h.failed.Load())
	}
	// No handler left, so the failure closed the connection instead.
	if conn.IsOpen() {
		t.Error("failure without handler should close the connection")
	}
}

func TestOnConnectErrorRoutesToFailed(t *testing.T) {
	conn := openTestConnection(t)
	h := &recordingHandler{err: errors.New("post-configure failed")}
	conn.SetConnectResultHandler(h)

	conn.OnConnect()

	if h.connected.Load() != 1 || h.failed.Load() != 1 {
		t.Errorf("connected=%d failed=%d, want 1 and 1", h.connected.Load(), h.failed.Load())
	}
}

func TestConnectionAttributesReset(t *testing.T) {
	conn := openTestConnection(t)
	conn.SetAttribute("k", 1)
	if v, ok := conn.Attribute("k"); !ok || v != 1 {
		t.Fatalf("Attribute = %v, %v", v, ok)
	}
	conn.ResetProperties()
	if _, ok := conn.Attribute("k"); ok {
		t.Error("ResetProperties should clear attributes")
	}
}

func TestTransportNotRunning(t *testing.T) {
	tr := NewTransport(TransportConfig{})

	if tr.Distributor() != nil {
		t.Error("stopped transport must not expose a distributor")
	}
	if err := tr.ExecuteEvent(nil, EventConnect, nil); !errors.Is(err, ErrTransportNotRunning) {
		t.Errorf("expected ErrTransportNotRunning, got %v", err)
	}
	if err := tr.Stop(); err != nil {
		t.Errorf("Stop on stopped transport: %v", err)
	}
	if tr.ConnectionTimeout() != DefaultConnectionTimeout {
		t.Errorf("ConnectionTimeout = %v", tr.ConnectionTimeout())
	}
}

func TestTransportCustomComponents(t *testing.T) {
	var got IOEvent = -1
	tr := NewTransport(TransportConfig{
		CustomDistributor: NewRoundRobinDistributor(nil),
		CustomStrategy: NewSameThreadStrategy(ProcessorFunc(func(ctx *Context) ProcessorResult {
			got = ctx.Event
			return Completed()
		})),
	})
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer tr.Stop()

	if err := tr.Start(context.Background()); !errors.Is(err, ErrTransportRunning) {
		t.Errorf("second Start: expected ErrTransportRunning, got %v", err)
	}
	if len(tr.Selectors()) != 0 {
		t.Error("custom distributor should start no selectors")
	}

	conn := openTestConnection(t)
	var res ProcessorResult
	if err := tr.ExecuteEvent(conn, EventConnected, ListenerFunc(func(_ *Context, r ProcessorResult) { res = r })); err != nil {
		t.Fatalf("ExecuteEvent failed: %v", err)
	}
	if got != EventConnected || res.Outcome != OutcomeCompleted {
		t.Errorf("event=%v outcome=%v", got, res.Outcome)
	}

	f := tr.Distributor().RegisterChannelAsync(conn.Channel(), InterestNone, conn, nil)
	if _, err := f.GetTimeout(time.Second); !errors.Is(err, ErrTransportNotRunning) {
		t.Errorf("empty distributor: expected ErrTransportNotRunning, got %v", err)
	}
}
