package process

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/quantfold/deskd/internal/logger"
	"github.com/quantfold/deskd/internal/readiness"
)

// RestartPolicy decides whether a process is restarted after it exits.
type RestartPolicy string

const (
	RestartNever     RestartPolicy = "never"
	RestartOnFailure RestartPolicy = "on-failure"
	RestartAlways    RestartPolicy = "always"
)

// Backoff describes the delay schedule between restart attempts:
// min(Initial * Multiplier^restarts, Cap).
type Backoff struct {
	Initial    time.Duration `json:"initial" mapstructure:"initial"`
	Multiplier float64       `json:"multiplier" mapstructure:"multiplier"`
	Cap        time.Duration `json:"cap" mapstructure:"cap"`
}

// Default backoff parameters applied when a spec leaves them unset.
const (
	DefaultBackoffInitial    = time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultBackoffCap        = 30 * time.Second
	DefaultMaxRestarts       = 5
	DefaultResetAfter        = time.Minute
)

// Delay returns the backoff delay for the given restart count.
func (b Backoff) Delay(restarts int) time.Duration {
	initial := b.Initial
	if initial <= 0 {
		initial = DefaultBackoffInitial
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = DefaultBackoffMultiplier
	}
	capD := b.Cap
	if capD <= 0 {
		capD = DefaultBackoffCap
	}
	d := initial
	for i := 0; i < restarts; i++ {
		d = time.Duration(float64(d) * mult)
		if d >= capD {
			return capD
		}
	}
	if d > capD {
		return capD
	}
	return d
}

// Spec describes one supervised process in the desktop stack.
// DependsOn names other specs that must be ready before this one starts.
type Spec struct {
	Name        string           `json:"name" mapstructure:"name"`
	Command     string           `json:"command" mapstructure:"command"`
	WorkDir     string           `json:"work_dir" mapstructure:"work_dir"`
	Env         []string         `json:"env" mapstructure:"env"`
	DependsOn   []string         `json:"depends_on" mapstructure:"depends_on"`
	Required    bool             `json:"required" mapstructure:"required"`
	Readiness   readiness.Config `json:"readiness" mapstructure:"readiness"`
	Restart     RestartPolicy    `json:"restart" mapstructure:"restart"`
	Backoff     Backoff          `json:"backoff" mapstructure:"backoff"`
	MaxRestarts int              `json:"max_restarts" mapstructure:"max_restarts"` // 0 uses default, negative means unlimited
	ResetAfter  time.Duration    `json:"reset_after" mapstructure:"reset_after"`   // sustained health window that zeroes the restart count
	StopSignal  string           `json:"stop_signal" mapstructure:"stop_signal"`   // default SIGTERM
	Log         logger.Config    `json:"log" mapstructure:"log"`
}

// Validate checks spec fields that do not need the full graph.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("spec requires name")
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("spec %s requires command", s.Name)
	}
	switch s.Restart {
	case "", RestartNever, RestartOnFailure, RestartAlways:
	default:
		return fmt.Errorf("spec %s: invalid restart policy %q", s.Name, s.Restart)
	}
	if err := s.Readiness.Validate(); err != nil {
		return fmt.Errorf("spec %s: %w", s.Name, err)
	}
	for _, dep := range s.DependsOn {
		if dep == s.Name {
			return fmt.Errorf("spec %s depends on itself", s.Name)
		}
	}
	return nil
}

// Policy returns the restart policy with the zero value normalized.
func (s *Spec) Policy() RestartPolicy {
	if s.Restart == "" {
		return RestartNever
	}
	return s.Restart
}

// RestartBudget returns the maximum restart count, or -1 for unlimited.
func (s *Spec) RestartBudget() int {
	if s.MaxRestarts < 0 {
		return -1
	}
	if s.MaxRestarts == 0 {
		return DefaultMaxRestarts
	}
	return s.MaxRestarts
}

// HealthyResetWindow returns the sustained-health duration after which the
// restart count is reset.
func (s *Spec) HealthyResetWindow() time.Duration {
	if s.ResetAfter <= 0 {
		return DefaultResetAfter
	}
	return s.ResetAfter
}

// BuildCommand constructs an *exec.Cmd for the given spec.Command.
// It avoids invoking a shell when not necessary, and it also respects
// an explicit shell invocation already present in the command string
// (e.g., "sh -c 'echo hi'"), avoiding double-wrapping with another shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	// If the command already explicitly uses a shell, honor it without adding another layer.
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		// Always use absolute shell path to avoid PATH dependency when Env is overridden.
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	// Fallback: when metacharacters are present, use /bin/sh -c
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// ok: intentional execution, input is validated and safe
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
// It preserves the substring after "-c " verbatim to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// If after is wrapped in single or double quotes, strip one pair so that
			// we pass the actual script to the shell (the outer quotes would otherwise
			// inhibit parsing/redirection inside the script).
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
