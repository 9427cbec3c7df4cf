package interfaces

// Scheduler defers work to a later scheduler turn. The broker uses it
// to re-arm its delivery loop without recursing inline, which gives
// concurrent operations a fairness window between passes.
type Scheduler interface {
	// Later enqueues fn to run on the scheduler's goroutine. The
	// returned handle cancels the run if it has not started yet.
	Later(fn func()) Cancelable

	// Stop drains the scheduler. Pending work is discarded.
	Stop()
}

// Cancelable is a handle to a unit of scheduled work.
type Cancelable interface {
	Cancel()
}

// IDGenerator mints identifiers for delivery tags and for generated
// queue and consumer names.
type IDGenerator interface {
	// NextTag returns a random 64-bit delivery tag.
	NextTag() uint64

	// NewID returns a unique string id with the given prefix.
	NewID(prefix string) string
}
