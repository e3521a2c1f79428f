package supervisor

import (
	"context"
	"time"

	"github.com/quantfold/deskd/internal/logring"
	"github.com/quantfold/deskd/internal/process"
)

// instance is the runtime record for one spec. Every mutable field is owned
// by the supervisor loop; goroutines report back through the event channel
// and never touch these fields directly. The capture ring is the only part
// shared outside the loop (it has its own locking).
type instance struct {
	spec *process.Spec
	ring *logring.Buffer

	state    State
	gen      int // run generation; events carrying a stale gen are dropped
	handle   *process.Handle
	exitDone chan struct{} // closed by the monitor when Wait returns

	restarts   int
	startedAt  time.Time
	readyAt    time.Time
	stoppedAt  time.Time
	exitCode   int
	exitSignal string
	lastErr    error

	stopRequested    bool // manual stop or shutdown; suppresses auto-restart
	readinessFailed  bool // current run timed out its readiness check
	restartAfterStop bool // manual restart: respawn once the stop completes

	readyCancel  context.CancelFunc
	backoffTimer *time.Timer
	healthyTimer *time.Timer

	stopWaiters []chan error
}

func newInstance(spec *process.Spec) *instance {
	ringCap := spec.Log.RingLines
	return &instance{
		spec:     spec,
		ring:     logring.New(ringCap),
		state:    StatePending,
		exitCode: -1,
	}
}

// cancelTimers stops the readiness wait, backoff delay and health-reset
// timers for the current run. Safe to call repeatedly.
func (in *instance) cancelTimers() {
	if in.readyCancel != nil {
		in.readyCancel()
		in.readyCancel = nil
	}
	if in.backoffTimer != nil {
		in.backoffTimer.Stop()
		in.backoffTimer = nil
	}
	if in.healthyTimer != nil {
		in.healthyTimer.Stop()
		in.healthyTimer = nil
	}
}

// notifyStopWaiters releases every caller blocked on this instance reaching
// a stopped state.
func (in *instance) notifyStopWaiters(err error) {
	for _, ch := range in.stopWaiters {
		ch <- err
		close(ch)
	}
	in.stopWaiters = nil
}

// Status is a copy-out snapshot of one instance, safe to hand to callers.
type Status struct {
	Name       string    `json:"name"`
	State      State     `json:"state"`
	Required   bool      `json:"required"`
	DependsOn  []string  `json:"depends_on,omitempty"`
	PID        int       `json:"pid,omitempty"`
	Restarts   int       `json:"restarts"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	ReadyAt    time.Time `json:"ready_at,omitempty"`
	StoppedAt  time.Time `json:"stopped_at,omitempty"`
	ExitCode   int       `json:"exit_code"`
	ExitSignal string    `json:"exit_signal,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

func (in *instance) snapshot() Status {
	st := Status{
		Name:       in.spec.Name,
		State:      in.state,
		Required:   in.spec.Required,
		DependsOn:  append([]string(nil), in.spec.DependsOn...),
		Restarts:   in.restarts,
		StartedAt:  in.startedAt,
		ReadyAt:    in.readyAt,
		StoppedAt:  in.stoppedAt,
		ExitCode:   in.exitCode,
		ExitSignal: in.exitSignal,
	}
	if in.handle != nil {
		st.PID = in.handle.PID()
	}
	if in.lastErr != nil {
		st.LastError = in.lastErr.Error()
	}
	return st
}

// StackStatus is the aggregate snapshot returned by Status().
type StackStatus struct {
	Ready     bool     `json:"ready"`
	Processes []Status `json:"processes"`
}
