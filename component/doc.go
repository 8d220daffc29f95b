// Package component defines the contracts shared by the bridge's long-running
// parts: the serial input, the WebSocket hub and the optional sinks.
//
// Every component is Discoverable (Meta, Health, DataFlow) and follows the
// same lifecycle:
//
//	Initialize() error                  // validate and allocate, no I/O
//	Start(ctx context.Context) error    // begin work, return promptly
//	Stop(timeout time.Duration) error   // release resources, idempotent
//
// Group starts components in registration order and stops them in reverse,
// so the part registered last (the serial input) is the first to stop.
//
// StandardLifecycleTests checks any LifecycleComponent against these rules
// from the component's own test file.
package component
