package worker

import "errors"

// Submit errors. ErrQueueFull is the only one a running pool returns; callers
// treat it as a dropped item.
var (
	ErrQueueFull      = errors.New("worker: queue full, item dropped")
	ErrPoolNotStarted = errors.New("worker: submit before start")
	ErrPoolStopped    = errors.New("worker: submit after stop")
)

// Lifecycle errors.
var (
	ErrNilProcessor       = errors.New("worker: nil process func")
	ErrPoolAlreadyStarted = errors.New("worker: started twice")
	ErrStopTimeout        = errors.New("worker: workers still busy at stop deadline")
)
