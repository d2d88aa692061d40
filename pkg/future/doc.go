// Package future provides a single-assignment result container used to
// bridge asynchronous completion to callers.
//
// A Future starts PENDING and moves to exactly one of RESULT, FAILURE or
// CANCELLED. The first resolution wins; every later attempt is a silent
// no-op that reports false. Completion handlers attached with AddHandler
// are invoked exactly once, after the Future has been resolved, on the
// goroutine that resolved it.
//
// # Usage
//
//	f := future.New[*transport.Connection]()
//	f.OnCancel(func() { conn.CloseQuietly() })
//	f.AddHandler(future.HandlerFuncs[*transport.Connection]{
//	    OnCompleted: func(c *transport.Connection) { ... },
//	})
//
//	// later, possibly on another goroutine
//	f.Result(conn)
//
// A Future is itself a CompletionHandler, so it can be passed anywhere a
// handler is expected and will resolve itself from the callback.
package future
