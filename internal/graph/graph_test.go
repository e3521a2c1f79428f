package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertTopological(t *testing.T, order []string, nodes []Node) {
	t.Helper()
	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if pos[dep] >= pos[n.Name] {
				t.Fatalf("order %v places %s before its dependency %s", order, n.Name, dep)
			}
		}
	}
}

func TestNew_OrderRespectsDependencies(t *testing.T) {
	nodes := []Node{
		{Name: "display"},
		{Name: "vnc", DependsOn: []string{"display"}},
		{Name: "web", DependsOn: []string{"vnc"}},
		{Name: "terminal", DependsOn: []string{"display"}},
		{Name: "bridge", DependsOn: []string{"terminal"}},
	}
	g, err := New(nodes)
	require.NoError(t, err)
	order := g.Order()
	require.Len(t, order, len(nodes))
	assertTopological(t, order, nodes)
	// independent nodes keep their input order, so display starts first
	assert.Equal(t, "display", order[0])
}

func TestNew_ReverseOrder(t *testing.T) {
	g, err := New([]Node{
		{Name: "a"},
		{Name: "b", DependsOn: []string{"a"}},
		{Name: "c", DependsOn: []string{"b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, g.ReverseOrder())
}

func TestNew_CycleDetected(t *testing.T) {
	_, err := New([]Node{
		{Name: "a", DependsOn: []string{"c"}},
		{Name: "b", DependsOn: []string{"a"}},
		{Name: "c", DependsOn: []string{"b"}},
	})
	require.Error(t, err)
	var ce *CycleError
	require.True(t, errors.As(err, &ce), "expected CycleError, got %v", err)
	assert.NotEmpty(t, ce.Stack)
}

func TestNew_SelfCycle(t *testing.T) {
	_, err := New([]Node{{Name: "a", DependsOn: []string{"a"}}})
	var ce *CycleError
	require.True(t, errors.As(err, &ce), "expected CycleError, got %v", err)
}

func TestNew_UnknownDependency(t *testing.T) {
	_, err := New([]Node{{Name: "a", DependsOn: []string{"ghost"}}})
	var ue *UnknownDependencyError
	require.True(t, errors.As(err, &ue), "expected UnknownDependencyError, got %v", err)
	assert.Equal(t, "a", ue.Node)
	assert.Equal(t, "ghost", ue.Dep)
}

func TestNew_DuplicateName(t *testing.T) {
	_, err := New([]Node{{Name: "a"}, {Name: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestDependents(t *testing.T) {
	g, err := New([]Node{
		{Name: "display"},
		{Name: "vnc", DependsOn: []string{"display"}},
		{Name: "terminal", DependsOn: []string{"display"}},
		{Name: "bridge", DependsOn: []string{"terminal"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"terminal", "vnc"}, g.Dependents("display"))
	assert.Empty(t, g.Dependents("bridge"))
	assert.Equal(t, []string{"display"}, g.DependsOn("vnc"))
}

func TestTransitiveDependents(t *testing.T) {
	g, err := New([]Node{
		{Name: "display"},
		{Name: "vnc", DependsOn: []string{"display"}},
		{Name: "web", DependsOn: []string{"vnc"}},
		{Name: "terminal", DependsOn: []string{"display"}},
		{Name: "bridge", DependsOn: []string{"terminal"}},
	})
	require.NoError(t, err)

	deps := g.TransitiveDependents("display")
	assert.ElementsMatch(t, []string{"vnc", "web", "terminal", "bridge"}, deps)
	// result is in topological order so cascade stops can walk it backwards
	pos := map[string]int{}
	for i, n := range deps {
		pos[n] = i
	}
	assert.Less(t, pos["vnc"], pos["web"])
	assert.Less(t, pos["terminal"], pos["bridge"])

	assert.Equal(t, []string{"bridge"}, g.TransitiveDependents("terminal"))
	assert.Empty(t, g.TransitiveDependents("web"))
}
