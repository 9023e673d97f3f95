// Package turn holds the per-turn session object passed through the pipeline.
//
// A Context is created by the adapter for each inbound activity (or proactive
// continuation) and disposed when the turn ends. It owns:
//
//   - the inbound Activity
//   - a typed side-table (State) for data shared between components
//   - three interceptor chains around outbound send, update, and delete
//   - the responded flag, which only moves from false to true
//
// # Interceptors
//
// Handlers registered with OnSendActivities, OnUpdateActivity, and
// OnDeleteActivity run in registration order. Each receives a next function that
// runs the remaining handlers and finally the Sender. A handler may mutate the
// payload before calling next, inspect the result after, or not call next at
// all, which suppresses the real operation. Handlers see the same activity
// instances, not copies; clone before next if an unmodified view is needed.
//
// # Side-table keys
//
// Keys are typed and namespaced by the component that owns them:
//
//	var counterKey = turn.NewKey[int]("mybot.counter")
//	counterKey.Set(tc.State(), 3)
//	n, ok := counterKey.Get(tc.State())
//
// Runtime keys are prefixed "botkit." and declared in keys.go. Values that
// implement io.Closer are closed when the turn is closed.
package turn
