package arena

import "errors"

var (
	// ErrCycleRunning is returned by TriggerNow while a cycle is in flight.
	ErrCycleRunning = errors.New("arena: cycle already running")

	// ErrAlreadyPaused is returned by Pause when the scheduler is paused.
	ErrAlreadyPaused = errors.New("arena: scheduler already paused")

	// ErrNotPaused is returned by Resume when the scheduler is not paused.
	ErrNotPaused = errors.New("arena: scheduler not paused")

	// ErrSchedulerClosed is returned once Shutdown has been called.
	ErrSchedulerClosed = errors.New("arena: scheduler closed")

	// ErrBusClosed is returned by Subscribe after the event bus is closed.
	ErrBusClosed = errors.New("arena: event bus closed")

	// ErrDuplicateSubscriber is returned when a subscriber name is taken.
	ErrDuplicateSubscriber = errors.New("arena: duplicate subscriber name")

	// ErrUnknownAgent is returned when an agent id has no registry entry.
	ErrUnknownAgent = errors.New("arena: unknown agent")
)
