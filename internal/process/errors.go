package process

import (
	"errors"
	"fmt"
	"time"
)

// ConfigError reports a bad stack definition (unknown dependency, cycle,
// duplicate name). Nothing is spawned when one is returned.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config: " + e.Msg }

// Configf builds a ConfigError from a format string.
func Configf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// LaunchError reports that the OS failed to start the command
// (missing executable, permission denied). Not subject to restart policy.
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string { return fmt.Sprintf("launch %s: %v", e.Name, e.Err) }
func (e *LaunchError) Unwrap() error { return e.Err }

// ReadinessTimeoutError reports that a started process never passed its
// readiness check. Subject to restart policy.
type ReadinessTimeoutError struct {
	Name    string
	Check   string
	Timeout time.Duration
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("%s not ready after %s (%s)", e.Name, e.Timeout, e.Check)
}

// CrashError reports an unexpected non-zero exit or termination by signal.
type CrashError struct {
	Name string
	Err  error
}

func (e *CrashError) Error() string { return fmt.Sprintf("%s crashed: %v", e.Name, e.Err) }
func (e *CrashError) Unwrap() error { return e.Err }

// BudgetExhaustedError reports that the restart budget ran out; the instance
// stays failed until a manual restart.
type BudgetExhaustedError struct {
	Name     string
	Restarts int
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("%s: restart budget exhausted after %d restarts", e.Name, e.Restarts)
}
