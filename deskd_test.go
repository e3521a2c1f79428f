package deskd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/deskd/internal/readiness"
)

func TestNew_ValidatesBeforeSpawning(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)

	_, err = New([]Spec{
		{Name: "a", Command: "true", DependsOn: []string{"b"},
			Readiness: readiness.Config{Type: readiness.TypeDelay, Delay: time.Second}},
		{Name: "b", Command: "true", DependsOn: []string{"a"},
			Readiness: readiness.Config{Type: readiness.TypeDelay, Delay: time.Second}},
	}, Options{})
	assert.Error(t, err, "cycle must be rejected")
}

func TestNew_ExposesStartOrder(t *testing.T) {
	s, err := New([]Spec{
		{Name: "vnc", Command: "true", DependsOn: []string{"display"},
			Readiness: readiness.Config{Type: readiness.TypeDelay, Delay: time.Second}},
		{Name: "display", Command: "true",
			Readiness: readiness.Config{Type: readiness.TypeDelay, Delay: time.Second}},
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"display", "vnc"}, s.Order())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deskd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[processes]]
name = "display"
command = "Xvfb :1"
[processes.readiness]
type = "delay"
delay = "1s"
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	specs, err := cfg.Specs()
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "display", specs[0].Name)
}

func TestRegisterMetricsDefault(t *testing.T) {
	require.NoError(t, RegisterMetricsDefault())
	// second registration is a no-op
	require.NoError(t, RegisterMetricsDefault())
}
