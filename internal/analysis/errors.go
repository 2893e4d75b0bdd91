package analysis

import "errors"

// Sentinel errors shared across subsystems.
var (
	// ErrJobNotFound is returned by the job store for unknown IDs.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when a job ID collides on creation.
	ErrJobExists = errors.New("job already exists")
	// ErrJobTerminal is returned when an update would move a job out of
	// a terminal state.
	ErrJobTerminal = errors.New("job already in terminal state")
	// ErrUnknownModule is returned for module names outside AllModules.
	ErrUnknownModule = errors.New("unknown analysis module")
	// ErrNoProviders is returned when a runner has no providers to invoke.
	ErrNoProviders = errors.New("no providers configured")
)
