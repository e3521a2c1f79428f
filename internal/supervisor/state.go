package supervisor

// State is the lifecycle state of one process instance. All transitions are
// made by the supervisor loop, never by monitor or readiness goroutines.
type State string

const (
	// StatePending: waiting for dependencies to become ready.
	StatePending State = "pending"
	// StateStarting: spawned, readiness check in progress.
	StateStarting State = "starting"
	// StateReady: readiness check passed; dependents may start.
	StateReady State = "ready"
	// StateRunning: ready and healthy past the restart-reset window.
	StateRunning State = "running"
	// StateStopping: stop requested, waiting for the process to exit.
	StateStopping State = "stopping"
	// StateStopped: terminal until a manual start; automatic restarts are
	// suppressed.
	StateStopped State = "stopped"
	// StateExited: process exited cleanly and policy does not restart it.
	StateExited State = "exited"
	// StateCrashed: process exited unexpectedly; restart decision pending
	// or denied by policy.
	StateCrashed State = "crashed"
	// StateRestarting: waiting out the backoff delay before respawning.
	StateRestarting State = "restarting"
	// StateFailed: launch error or restart budget exhausted; terminal until
	// a manual start.
	StateFailed State = "failed"
)

func (s State) String() string { return string(s) }

// Healthy reports whether the instance satisfies its dependents and counts
// toward composite readiness.
func (s State) Healthy() bool {
	return s == StateReady || s == StateRunning
}

// Alive reports whether an OS process is expected to exist in this state.
func (s State) Alive() bool {
	switch s {
	case StateStarting, StateReady, StateRunning, StateStopping:
		return true
	}
	return false
}

// Terminal reports whether the instance stays in this state until a manual
// command.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed || s == StateExited
}
