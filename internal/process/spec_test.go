package process

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantfold/deskd/internal/readiness"
)

func requireUnixSpec(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like shell")
	}
}

// Ensure that when the command string already includes an explicit
// shell invocation (e.g., "sh -c 'echo hi'"), we do not double-wrap
// it with another "/bin/sh -c" layer.
func TestBuildCommand_ExplicitShellNoDoubleWrap(t *testing.T) {
	requireUnixSpec(t)
	s := Spec{Name: "x", Command: "sh -c 'echo hi'"}
	cmd := s.BuildCommand()
	if len(cmd.Args) < 3 {
		t.Fatalf("unexpected argv: %#v", cmd.Args)
	}
	if cmd.Args[1] != "-c" {
		t.Fatalf("expected -c as second arg, got %#v", cmd.Args)
	}
	if strings.HasPrefix(cmd.Args[2], "sh -c ") || strings.HasPrefix(cmd.Args[2], "/bin/sh -c ") {
		t.Fatalf("command was double-wrapped: %q", cmd.Args[2])
	}
}

// Sanity check: when metacharacters are present and no explicit shell prefix
// is provided, we should wrap with /bin/sh -c.
func TestBuildCommand_MetacharTriggersShell(t *testing.T) {
	requireUnixSpec(t)
	s := Spec{Name: "y", Command: "echo hi | wc -c"}
	cmd := s.BuildCommand()
	if len(cmd.Args) < 3 || cmd.Args[1] != "-c" {
		t.Fatalf("expected shell -c wrapping, got argv=%#v", cmd.Args)
	}
}

func TestBuildCommand_PlainArgv(t *testing.T) {
	requireUnixSpec(t)
	s := Spec{Name: "z", Command: "/usr/bin/Xvfb :1 -screen 0 1280x1024x24"}
	cmd := s.BuildCommand()
	assert.Equal(t, []string{"/usr/bin/Xvfb", ":1", "-screen", "0", "1280x1024x24"}, cmd.Args)
}

func TestSpec_Validate(t *testing.T) {
	valid := readiness.Config{Type: readiness.TypeDelay, Delay: time.Second}
	tests := []struct {
		name        string
		spec        Spec
		errContains string
	}{
		{
			name: "valid",
			spec: Spec{Name: "vnc", Command: "x11vnc -display :1", Readiness: valid},
		},
		{
			name:        "missing name",
			spec:        Spec{Command: "true", Readiness: valid},
			errContains: "requires name",
		},
		{
			name:        "missing command",
			spec:        Spec{Name: "vnc", Readiness: valid},
			errContains: "requires command",
		},
		{
			name:        "bad restart policy",
			spec:        Spec{Name: "vnc", Command: "true", Restart: "sometimes", Readiness: valid},
			errContains: "invalid restart policy",
		},
		{
			name:        "missing readiness",
			spec:        Spec{Name: "vnc", Command: "true"},
			errContains: "readiness",
		},
		{
			name:        "self dependency",
			spec:        Spec{Name: "vnc", Command: "true", DependsOn: []string{"vnc"}, Readiness: valid},
			errContains: "depends on itself",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.errContains)
			}
		})
	}
}

func TestBackoff_DelaySchedule(t *testing.T) {
	var b Backoff // all defaults: 1s * 2^n capped at 30s
	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 16*time.Second, b.Delay(4))
	assert.Equal(t, 30*time.Second, b.Delay(5))
	assert.Equal(t, 30*time.Second, b.Delay(50))
}

func TestBackoff_CustomSchedule(t *testing.T) {
	b := Backoff{Initial: 2 * time.Second, Multiplier: 3, Cap: 10 * time.Second}
	assert.Equal(t, 2*time.Second, b.Delay(0))
	assert.Equal(t, 6*time.Second, b.Delay(1))
	assert.Equal(t, 10*time.Second, b.Delay(2))
}

func TestSpec_PolicyAndBudgetDefaults(t *testing.T) {
	s := Spec{Name: "a", Command: "true"}
	assert.Equal(t, RestartNever, s.Policy())
	assert.Equal(t, DefaultMaxRestarts, s.RestartBudget())
	assert.Equal(t, DefaultResetAfter, s.HealthyResetWindow())

	s.Restart = RestartAlways
	s.MaxRestarts = -1
	s.ResetAfter = 5 * time.Second
	assert.Equal(t, RestartAlways, s.Policy())
	assert.Equal(t, -1, s.RestartBudget())
	assert.Equal(t, 5*time.Second, s.HealthyResetWindow())

	s.MaxRestarts = 3
	assert.Equal(t, 3, s.RestartBudget())
}
