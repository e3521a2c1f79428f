// Package graph resolves the start order of the process stack from declared
// dependencies. The stack is small and static, so resolution is a plain DFS
// with visiting/visited marks; any cycle or unknown dependency aborts before
// a single process is spawned.
package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Node is a named vertex with its declared dependencies.
type Node struct {
	Name      string
	DependsOn []string
}

// CycleError reports a dependency cycle; Stack holds the names along the
// cycle in traversal order.
type CycleError struct {
	Stack []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Stack, " -> ")
}

// UnknownDependencyError reports a dependency name with no matching node.
type UnknownDependencyError struct {
	Node string
	Dep  string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("%s depends on unknown process %q", e.Node, e.Dep)
}

// Graph is a validated dependency graph over a fixed node set.
type Graph struct {
	order      []string
	dependents map[string][]string // direct reverse edges
	dependsOn  map[string][]string
}

// New validates the node set and computes a topological order. Independent
// nodes keep their input order so the resulting plan is deterministic.
func New(nodes []Node) (*Graph, error) {
	byName := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if _, dup := byName[n.Name]; dup {
			return nil, fmt.Errorf("duplicate process name %q", n.Name)
		}
		byName[n.Name] = n
	}
	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, &UnknownDependencyError{Node: n.Name, Dep: dep}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	marks := make(map[string]int, len(nodes))
	order := make([]string, 0, len(nodes))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case visited:
			return nil
		case visiting:
			// trim the stack to the cycle entry point
			i := 0
			for ; i < len(stack); i++ {
				if stack[i] == name {
					break
				}
			}
			cyc := append(append([]string{}, stack[i:]...), name)
			return &CycleError{Stack: cyc}
		}
		marks[name] = visiting
		stack = append(stack, name)
		for _, dep := range byName[name].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		marks[name] = visited
		order = append(order, name)
		return nil
	}

	for _, n := range nodes {
		if err := visit(n.Name); err != nil {
			return nil, err
		}
	}

	dependents := make(map[string][]string, len(nodes))
	dependsOn := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		dependsOn[n.Name] = append([]string(nil), n.DependsOn...)
		for _, dep := range n.DependsOn {
			dependents[dep] = append(dependents[dep], n.Name)
		}
	}
	for _, deps := range dependents {
		sort.Strings(deps)
	}
	return &Graph{order: order, dependents: dependents, dependsOn: dependsOn}, nil
}

// Order returns the start order: every node appears after all of its
// dependencies.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// ReverseOrder returns the shutdown order: dependents before dependencies.
func (g *Graph) ReverseOrder() []string {
	out := make([]string, len(g.order))
	for i, n := range g.order {
		out[len(g.order)-1-i] = n
	}
	return out
}

// DependsOn returns the direct dependencies of name.
func (g *Graph) DependsOn(name string) []string {
	return append([]string(nil), g.dependsOn[name]...)
}

// Dependents returns the direct dependents of name.
func (g *Graph) Dependents(name string) []string {
	return append([]string(nil), g.dependents[name]...)
}

// TransitiveDependents returns every node that directly or indirectly depends
// on name, in topological order. Used for soft-degrade and cascade stops.
func (g *Graph) TransitiveDependents(name string) []string {
	seen := map[string]bool{}
	var walk func(n string)
	walk = func(n string) {
		for _, d := range g.dependents[n] {
			if !seen[d] {
				seen[d] = true
				walk(d)
			}
		}
	}
	walk(name)
	out := make([]string, 0, len(seen))
	for _, n := range g.order {
		if seen[n] {
			out = append(out, n)
		}
	}
	return out
}
