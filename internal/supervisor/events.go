package supervisor

// Events are posted to the supervisor loop by monitor goroutines, readiness
// waiters and policy timers. Each carries the run generation it belongs to;
// the loop drops events whose generation no longer matches the instance.

type event interface{ eventName() string }

// becameReady: the readiness check passed for the current run.
type becameReady struct {
	name string
	gen  int
}

func (becameReady) eventName() string { return "ready" }

// readinessFailed: the readiness check timed out or aborted.
type readinessFailed struct {
	name string
	gen  int
	err  error
}

func (readinessFailed) eventName() string { return "readiness-failed" }

// processExited: the monitor observed the process exit.
type processExited struct {
	name string
	gen  int
	err  error // result of Wait; nil on clean exit
}

func (processExited) eventName() string { return "exited" }

// backoffElapsed: the restart backoff delay ran out.
type backoffElapsed struct {
	name string
	gen  int
}

func (backoffElapsed) eventName() string { return "backoff-elapsed" }

// healthSustained: the instance stayed ready for the reset window; the
// restart counter is zeroed and the state advances to running.
type healthSustained struct {
	name string
	gen  int
}

func (healthSustained) eventName() string { return "health-sustained" }

// control commands sent by the public API; Reply is always buffered.

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdRestart
	cmdShutdown
)

type command struct {
	kind    cmdKind
	name    string
	cascade bool
	reply   chan error
}

type statusRequest struct {
	reply chan StackStatus
}
