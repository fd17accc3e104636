package acq

import "context"

// Source is one producer of packets for a device's stream. Drivers
// register their sources on the session during AcquisitionStart; the
// session runs each device's sources in order on one goroutine, so a
// device's packets arrive in the order its sources send them.
//
// Run blocks until the source is exhausted (for example a sample limit
// was reached) or ctx is canceled by Session.Stop. A source that fails
// ends its own device's stream; the other devices keep running.
type Source interface {
	Run(ctx context.Context) error
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func(ctx context.Context) error

// Run calls the function.
func (f SourceFunc) Run(ctx context.Context) error { return f(ctx) }
