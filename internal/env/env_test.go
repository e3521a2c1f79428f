package env

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func toMap(kvs []string) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func TestMergePrecedence(t *testing.T) {
	e := New()
	e.env = Var{"PATH": "/usr/bin", "HOME": "/root", "SHARED": "os"}
	e.Set("SHARED", "global")
	e.Set("DISPLAY", ":1")

	m := toMap(e.Merge([]string{"SHARED=proc", "WINEPREFIX=/config/.wine"}))
	assert.Equal(t, "/usr/bin", m["PATH"])
	assert.Equal(t, "proc", m["SHARED"], "per-process wins over global and OS")
	assert.Equal(t, ":1", m["DISPLAY"])
	assert.Equal(t, "/config/.wine", m["WINEPREFIX"])
}

func TestMergeExpandsVariables(t *testing.T) {
	e := New()
	e.env = Var{"HOME": "/config"}
	e.Set("WINEPREFIX", "${HOME}/.wine")

	m := toMap(e.Merge(nil))
	assert.Equal(t, "/config/.wine", m["WINEPREFIX"])
}

func TestSetAllSkipsMalformed(t *testing.T) {
	e := New()
	e.SetAll([]string{"A=1", "no-equals", "=empty-key", "B=2"})
	assert.Equal(t, Var{"A": "1", "B": "2"}, e.Var)
}

func TestUnset(t *testing.T) {
	e := New()
	e.Set("A", "1")
	e.Unset("A")
	assert.Empty(t, e.Var)
}

func TestMergeSkipsMalformedPerProc(t *testing.T) {
	e := New()
	e.env = Var{"A": "os"}
	m := toMap(e.Merge([]string{"bogus", "=x", "A=proc"}))
	assert.Equal(t, "proc", m["A"])
	_, hasEmpty := m[""]
	assert.False(t, hasEmpty)
}
