// Package supervisor is the orchestration core: it owns the lifecycle of the
// fixed process stack, starts processes in dependency order behind readiness
// gates, watches each one with a dedicated monitor goroutine, restarts per
// policy with bounded backoff, and exposes the aggregate state.
//
// All mutable state lives in the name->instance arena owned by the single
// loop goroutine. Monitors, readiness waiters and timers communicate with the
// loop exclusively through the event channel, which keeps a manual stop and a
// concurrent automatic restart from racing.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quantfold/deskd/internal/env"
	"github.com/quantfold/deskd/internal/graph"
	"github.com/quantfold/deskd/internal/logring"
	"github.com/quantfold/deskd/internal/metrics"
	"github.com/quantfold/deskd/internal/process"
	"github.com/quantfold/deskd/internal/store"
)

// DefaultStopTimeout is how long a process gets between the stop signal and
// SIGKILL escalation.
const DefaultStopTimeout = 10 * time.Second

// ErrShutdown is returned by control calls once the supervisor has stopped.
var ErrShutdown = errors.New("supervisor is shut down")

// Options tune a Supervisor beyond the process specs themselves.
type Options struct {
	Logger      *slog.Logger
	Journal     store.Store // optional lifecycle journal
	GlobalEnv   []string    // "K=V" entries applied to every process
	StopTimeout time.Duration
}

// Supervisor owns the process stack. Construct with New, drive with Run.
type Supervisor struct {
	specs []process.Spec
	graph *graph.Graph
	order []string
	insts map[string]*instance

	env         *env.Env
	log         *slog.Logger
	journal     store.Store
	journalCh   chan store.Transition
	stopTimeout time.Duration

	cmds   chan any // command | statusRequest
	events chan event
	done   chan struct{}

	running       atomic.Bool
	shuttingDown  bool
	shutdownQueue []string
}

// New validates the specs and dependency graph and builds a Supervisor.
// Unknown dependency names, duplicate names and cycles are configuration
// errors: nothing is spawned and the error is returned before Run.
func New(specs []process.Spec, opts Options) (*Supervisor, error) {
	if len(specs) == 0 {
		return nil, process.Configf("no processes defined")
	}
	nodes := make([]graph.Node, 0, len(specs))
	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			return nil, process.Configf("%v", err)
		}
		nodes = append(nodes, graph.Node{Name: specs[i].Name, DependsOn: specs[i].DependsOn})
	}
	g, err := graph.New(nodes)
	if err != nil {
		return nil, process.Configf("%v", err)
	}

	e := env.New()
	e.SetAll(opts.GlobalEnv)

	logg := opts.Logger
	if logg == nil {
		logg = slog.Default()
	}
	stopTimeout := opts.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}

	s := &Supervisor{
		specs:       specs,
		graph:       g,
		order:       g.Order(),
		insts:       make(map[string]*instance, len(specs)),
		env:         e,
		log:         logg,
		journal:     opts.Journal,
		stopTimeout: stopTimeout,
		cmds:        make(chan any),
		events:      make(chan event, len(specs)*8),
		done:        make(chan struct{}),
	}
	for i := range specs {
		s.insts[specs[i].Name] = newInstance(&specs[i])
	}
	if s.journal != nil {
		s.journalCh = make(chan store.Transition, 256)
	}
	return s, nil
}

// Order returns the computed start order.
func (s *Supervisor) Order() []string { return append([]string(nil), s.order...) }

// Run drives the supervisor until shutdown completes. Cancelling ctx starts
// the same reverse-order shutdown as Shutdown(). Run returns once every
// process has terminated.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("supervisor already running")
	}
	if s.journal != nil {
		if err := s.journal.EnsureSchema(ctx); err != nil {
			s.log.Warn("journal schema setup failed, journaling disabled", "error", err)
			s.journalCh = nil
		} else {
			go s.journalWriter()
		}
	}

	s.log.Info("starting stack", "order", s.order)
	s.tryLaunchPending()

	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			s.beginShutdown("context canceled")
		case raw := <-s.cmds:
			switch c := raw.(type) {
			case statusRequest:
				c.reply <- s.stackSnapshot()
			case command:
				s.handleCommand(c)
			}
		case e := <-s.events:
			s.handleEvent(e)
		}
		if s.shuttingDown && s.allTerminal() {
			if s.journalCh != nil {
				close(s.journalCh)
			}
			close(s.done)
			return nil
		}
	}
}

// --- public control surface (thread-safe; serialized through the loop) ---

// Status returns a copy-out snapshot of every instance plus the composite
// readiness flag. Side-effect-free.
func (s *Supervisor) Status() StackStatus {
	req := statusRequest{reply: make(chan StackStatus, 1)}
	select {
	case s.cmds <- req:
		return <-req.reply
	case <-s.done:
		// loop has exited; the arena is no longer mutated
		return s.stackSnapshot()
	}
}

// Start manually starts a stopped or failed instance. Its restart budget is
// reset.
func (s *Supervisor) Start(name string) error { return s.send(command{kind: cmdStart, name: name}) }

// Stop stops one instance. Dependents are soft-degraded to pending unless
// cascade is set, in which case they are stopped first.
func (s *Supervisor) Stop(name string, cascade bool) error {
	return s.send(command{kind: cmdStop, name: name, cascade: cascade})
}

// Restart stops the instance if it is alive, then starts it with a fresh
// restart budget.
func (s *Supervisor) Restart(name string) error {
	return s.send(command{kind: cmdRestart, name: name})
}

// Shutdown stops every process in reverse dependency order and waits for
// completion or ctx expiry. Idempotent: concurrent calls join the same
// shutdown.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- command{kind: cmdShutdown, reply: reply}:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once shutdown has completed.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Journal returns the lifecycle journal, or nil when journaling is not
// configured. The store is safe for concurrent reads.
func (s *Supervisor) Journal() store.Store { return s.journal }

// Logs returns up to n recent captured output lines for the named process.
// The ring is safe to read without going through the loop.
func (s *Supervisor) Logs(name string, n int) ([]logring.Line, error) {
	in, ok := s.insts[name]
	if !ok {
		return nil, fmt.Errorf("unknown process: %s", name)
	}
	return in.ring.Tail(n), nil
}

func (s *Supervisor) send(c command) error {
	c.reply = make(chan error, 1)
	select {
	case s.cmds <- c:
	case <-s.done:
		return ErrShutdown
	}
	select {
	case err := <-c.reply:
		return err
	case <-s.done:
		return ErrShutdown
	}
}

// --- loop internals; everything below runs on the loop goroutine ---

func (s *Supervisor) handleCommand(c command) {
	switch c.kind {
	case cmdShutdown:
		s.beginShutdown("shutdown requested")
		// reply once the loop observes completion
		go func(reply chan error) {
			<-s.done
			reply <- nil
		}(c.reply)
		return
	case cmdStart:
		c.reply <- s.manualStart(c.name)
	case cmdStop:
		s.manualStop(c.name, c.cascade, c.reply)
	case cmdRestart:
		s.manualRestart(c.name, c.reply)
	}
}

func (s *Supervisor) manualStart(name string) error {
	in, ok := s.insts[name]
	if !ok {
		return fmt.Errorf("unknown process: %s", name)
	}
	if s.shuttingDown {
		return ErrShutdown
	}
	if in.state.Alive() {
		return nil // already running; duplicate start is a no-op
	}
	in.stopRequested = false
	in.restartAfterStop = false
	in.readinessFailed = false
	in.restarts = 0
	in.lastErr = nil
	s.spawnOrPend(in)
	return nil
}

func (s *Supervisor) manualStop(name string, cascade bool, reply chan error) {
	in, ok := s.insts[name]
	if !ok {
		reply <- fmt.Errorf("unknown process: %s", name)
		return
	}
	if in.state.Terminal() {
		in.stopRequested = true
		reply <- nil
		return
	}
	if cascade {
		// dependents go down first, deepest first
		deps := s.graph.TransitiveDependents(name)
		for i := len(deps) - 1; i >= 0; i-- {
			s.initiateStop(s.insts[deps[i]], nil, "cascade stop of "+name)
		}
	} else {
		// soft-degrade: prerequisite is going away, so dependents become
		// pending again, but their OS processes are left alone
		for _, dep := range s.graph.TransitiveDependents(name) {
			din := s.insts[dep]
			switch din.state {
			case StateStarting, StateReady, StateRunning:
				din.cancelTimers()
				s.transition(din, StatePending, "dependency "+name+" stopping")
			}
		}
	}
	s.initiateStop(in, reply, "manual stop")
}

func (s *Supervisor) manualRestart(name string, reply chan error) {
	in, ok := s.insts[name]
	if !ok {
		reply <- fmt.Errorf("unknown process: %s", name)
		return
	}
	if s.shuttingDown {
		reply <- ErrShutdown
		return
	}
	if !in.state.Alive() {
		reply <- s.manualStart(name)
		return
	}
	in.restartAfterStop = true
	s.initiateStop(in, reply, "manual restart")
}

// initiateStop moves an instance toward Stopped. reply (optional) is
// released when the instance has fully stopped.
func (s *Supervisor) initiateStop(in *instance, reply chan error, reason string) {
	in.stopRequested = true
	in.cancelTimers()
	if in.handle == nil {
		if !in.state.Terminal() {
			s.transition(in, StateStopped, reason)
		}
		if reply != nil {
			reply <- nil
		}
		return
	}
	if reply != nil {
		in.stopWaiters = append(in.stopWaiters, reply)
	}
	if in.state == StateStopping {
		return // already signaled; just wait
	}
	s.transition(in, StateStopping, reason)
	sig := process.ParseSignal(in.spec.StopSignal)
	if err := in.handle.Signal(sig); err != nil {
		s.log.Warn("stop signal failed", "process", in.spec.Name, "error", err)
	}
	// escalate to SIGKILL if the process ignores the stop signal
	go func(h *process.Handle, exited <-chan struct{}, timeout time.Duration) {
		select {
		case <-exited:
		case <-time.After(timeout):
			_ = h.Kill()
		}
	}(in.handle, in.exitDone, s.stopTimeout)
}

func (s *Supervisor) beginShutdown(reason string) {
	if s.shuttingDown {
		return
	}
	s.shuttingDown = true
	s.log.Info("shutting down stack", "reason", reason)
	s.shutdownQueue = s.graph.ReverseOrder()
	s.advanceShutdown()
}

// advanceShutdown stops the next live instance in reverse dependency order.
// It is re-entered from handleExit each time a process finishes, so shutdown
// proceeds strictly dependents-first.
func (s *Supervisor) advanceShutdown() {
	for len(s.shutdownQueue) > 0 {
		in := s.insts[s.shutdownQueue[0]]
		if in.state.Terminal() {
			in.stopRequested = true
			s.shutdownQueue = s.shutdownQueue[1:]
			continue
		}
		if in.state == StateStopping {
			return // wait for its exit event
		}
		s.initiateStop(in, nil, "shutdown")
		if in.state == StateStopping {
			return
		}
		// stopped without a live process; keep draining the queue
		s.shutdownQueue = s.shutdownQueue[1:]
	}
}

func (s *Supervisor) allTerminal() bool {
	for _, in := range s.insts {
		if !in.state.Terminal() {
			return false
		}
	}
	return true
}

func (s *Supervisor) handleEvent(e event) {
	switch ev := e.(type) {
	case becameReady:
		s.handleReady(ev)
	case readinessFailed:
		s.handleReadinessFailed(ev)
	case processExited:
		s.handleExit(ev)
	case backoffElapsed:
		s.handleBackoffElapsed(ev)
	case healthSustained:
		s.handleHealthSustained(ev)
	}
}

func (s *Supervisor) handleReady(ev becameReady) {
	in := s.insts[ev.name]
	if in == nil || in.gen != ev.gen || in.state != StateStarting {
		return
	}
	in.readyAt = time.Now()
	metrics.ObserveReadinessWait(in.spec.Name, in.readyAt.Sub(in.startedAt).Seconds())
	s.transition(in, StateReady, "")
	gen := in.gen
	in.healthyTimer = time.AfterFunc(in.spec.HealthyResetWindow(), func() {
		s.post(healthSustained{name: ev.name, gen: gen})
	})
	s.tryLaunchPending()
}

func (s *Supervisor) handleReadinessFailed(ev readinessFailed) {
	in := s.insts[ev.name]
	if in == nil || in.gen != ev.gen || in.state != StateStarting {
		return
	}
	if errors.Is(ev.err, context.Canceled) {
		return // readiness wait canceled by a stop, not a timeout
	}
	in.readinessFailed = true
	check := in.spec.Readiness
	in.lastErr = &process.ReadinessTimeoutError{
		Name:    in.spec.Name,
		Check:   check.Type,
		Timeout: check.EffectiveTimeout(),
	}
	s.log.Warn("readiness check failed, terminating", "process", in.spec.Name, "error", ev.err)
	if in.handle != nil {
		_ = in.handle.Terminate()
		go func(h *process.Handle, exited <-chan struct{}, timeout time.Duration) {
			select {
			case <-exited:
			case <-time.After(timeout):
				_ = h.Kill()
			}
		}(in.handle, in.exitDone, s.stopTimeout)
	}
}

func (s *Supervisor) handleExit(ev processExited) {
	in := s.insts[ev.name]
	if in == nil || in.gen != ev.gen {
		return
	}
	in.handle = nil
	in.exitDone = nil
	in.cancelTimers()
	in.stoppedAt = time.Now()
	in.exitCode = process.ExitCode(ev.err)
	in.exitSignal = process.ExitSignal(ev.err)
	metrics.IncStop(in.spec.Name)

	failure := ev.err != nil || in.readinessFailed
	wasReadinessFailure := in.readinessFailed
	in.readinessFailed = false

	if in.stopRequested {
		s.transition(in, StateStopped, "")
		in.notifyStopWaiters(nil)
		if in.restartAfterStop && !s.shuttingDown {
			in.restartAfterStop = false
			in.stopRequested = false
			in.restarts = 0
			in.lastErr = nil
			s.spawnOrPend(in)
		}
		if s.shuttingDown {
			s.advanceShutdown()
		}
		return
	}

	reason := ""
	if wasReadinessFailure {
		// keep the readiness timeout as the cause; the exit that follows is
		// just the supervisor's own termination
		reason = "readiness timeout"
	} else if ev.err != nil {
		in.lastErr = &process.CrashError{Name: in.spec.Name, Err: ev.err}
		reason = ev.err.Error()
	} else {
		in.lastErr = nil
	}
	if failure {
		s.transition(in, StateCrashed, reason)
	} else {
		s.transition(in, StateExited, "clean exit")
	}

	policy := in.spec.Policy()
	restart := policy == process.RestartAlways || (policy == process.RestartOnFailure && failure)
	if !restart {
		if failure {
			s.transition(in, StateFailed, "restart policy "+string(policy))
		}
		return
	}
	if budget := in.spec.RestartBudget(); budget >= 0 && in.restarts >= budget {
		in.lastErr = &process.BudgetExhaustedError{Name: in.spec.Name, Restarts: in.restarts}
		s.transition(in, StateFailed, in.lastErr.Error())
		return
	}
	delay := in.spec.Backoff.Delay(in.restarts)
	in.restarts++
	metrics.IncRestart(in.spec.Name)
	s.transition(in, StateRestarting, fmt.Sprintf("attempt %d in %s", in.restarts, delay))
	gen := in.gen
	in.backoffTimer = time.AfterFunc(delay, func() {
		s.post(backoffElapsed{name: ev.name, gen: gen})
	})
}

func (s *Supervisor) handleBackoffElapsed(ev backoffElapsed) {
	in := s.insts[ev.name]
	if in == nil || in.gen != ev.gen || in.state != StateRestarting {
		return
	}
	if in.stopRequested || s.shuttingDown {
		return
	}
	s.spawnOrPend(in)
}

func (s *Supervisor) handleHealthSustained(ev healthSustained) {
	in := s.insts[ev.name]
	if in == nil || in.gen != ev.gen || in.state != StateReady {
		return
	}
	in.restarts = 0
	s.transition(in, StateRunning, "")
}

// tryLaunchPending spawns every pending instance whose dependencies are all
// healthy. Independent instances launch concurrently; each spawn returns as
// soon as the OS process started and readiness is evaluated off-loop.
func (s *Supervisor) tryLaunchPending() {
	if s.shuttingDown {
		return
	}
	for _, name := range s.order {
		in := s.insts[name]
		if in.state != StatePending || in.stopRequested {
			continue
		}
		if !s.depsHealthy(in) {
			continue
		}
		if in.handle != nil {
			// soft-degraded survivor: the process never stopped, so it is
			// re-adopted instead of respawned
			s.transition(in, StateReady, "dependency recovered")
			gen := in.gen
			in.healthyTimer = time.AfterFunc(in.spec.HealthyResetWindow(), func() {
				s.post(healthSustained{name: name, gen: gen})
			})
			continue
		}
		s.spawn(in)
	}
}

func (s *Supervisor) depsHealthy(in *instance) bool {
	for _, dep := range in.spec.DependsOn {
		if !s.insts[dep].state.Healthy() {
			return false
		}
	}
	return true
}

func (s *Supervisor) spawnOrPend(in *instance) {
	if s.depsHealthy(in) {
		s.spawn(in)
	} else if in.state != StatePending {
		s.transition(in, StatePending, "waiting for dependencies")
	}
}

// spawn launches one instance and attaches its monitor and readiness
// goroutines. Launch failures are final: no restart attempt is made for a
// missing executable.
func (s *Supervisor) spawn(in *instance) {
	spec := in.spec
	outW, errW, _ := spec.Log.Writers(spec.Name)
	var closers []io.Closer
	stdout := io.Writer(in.ring)
	if outW != nil {
		stdout = io.MultiWriter(in.ring, outW)
		closers = append(closers, outW)
	}
	stderr := io.Writer(in.ring)
	if errW != nil {
		stderr = io.MultiWriter(in.ring, errW)
		closers = append(closers, errW)
	}

	merged := s.env.Merge(spec.Env)
	h, err := process.Launch(spec, merged, stdout, stderr)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		in.lastErr = err
		s.transition(in, StateFailed, err.Error())
		return
	}

	in.gen++
	gen := in.gen
	in.handle = h
	in.startedAt = h.StartedAt()
	in.readyAt = time.Time{}
	in.stoppedAt = time.Time{}
	in.exitDone = make(chan struct{})
	exitDone := in.exitDone
	s.transition(in, StateStarting, fmt.Sprintf("pid %d", h.PID()))
	metrics.IncStart(spec.Name)

	// monitor: block on Wait, then report the exit to the loop
	go func(name string, ring *logring.Buffer) {
		werr := h.Wait()
		for _, c := range closers {
			_ = c.Close()
		}
		ring.Flush()
		close(exitDone)
		s.post(processExited{name: name, gen: gen, err: werr})
	}(spec.Name, in.ring)

	// readiness: evaluate the configured check off-loop
	check, cerr := spec.Readiness.Build(in.ring)
	if cerr != nil {
		// specs are validated in New; this is unreachable in practice
		s.post(readinessFailed{name: spec.Name, gen: gen, err: cerr})
		return
	}
	rctx, cancel := context.WithCancel(context.Background())
	in.readyCancel = cancel
	go func(name string) {
		if werr := check.Wait(rctx); werr != nil {
			s.post(readinessFailed{name: name, gen: gen, err: werr})
			return
		}
		s.post(becameReady{name: name, gen: gen})
	}(spec.Name)
}

// post delivers an event to the loop. After shutdown the loop is gone, so
// late events from canceled readiness waits are discarded instead of
// blocking their goroutines forever.
func (s *Supervisor) post(e event) {
	select {
	case s.events <- e:
	case <-s.done:
	}
}

// compositeReady is true only when every required spec is ready or running.
func (s *Supervisor) compositeReady() bool {
	for _, in := range s.insts {
		if in.spec.Required && !in.state.Healthy() {
			return false
		}
	}
	return true
}

func (s *Supervisor) stackSnapshot() StackStatus {
	out := StackStatus{
		Ready:     s.compositeReady(),
		Processes: make([]Status, 0, len(s.order)),
	}
	for _, name := range s.order {
		out.Processes = append(out.Processes, s.insts[name].snapshot())
	}
	return out
}

func (s *Supervisor) transition(in *instance, to State, reason string) {
	from := in.state
	if from == to {
		return
	}
	in.state = to
	s.log.Info("state change", "process", in.spec.Name, "from", from, "to", to, "reason", reason)
	metrics.RecordStateTransition(in.spec.Name, string(from), string(to))
	metrics.SetCurrentState(in.spec.Name, string(from), false)
	metrics.SetCurrentState(in.spec.Name, string(to), true)
	metrics.SetCompositeReady(s.compositeReady())
	if s.journalCh != nil {
		pid := 0
		if in.handle != nil {
			pid = in.handle.PID()
		}
		t := store.Transition{
			Name:   in.spec.Name,
			From:   string(from),
			To:     string(to),
			PID:    pid,
			Reason: reason,
			At:     time.Now().UTC(),
		}
		select {
		case s.journalCh <- t:
		default: // journal backlog; drop rather than stall supervision
		}
	}
}

func (s *Supervisor) journalWriter() {
	for t := range s.journalCh {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.journal.RecordTransition(ctx, t); err != nil {
			s.log.Warn("journal write failed", "process", t.Name, "error", err)
		}
		cancel()
	}
}
