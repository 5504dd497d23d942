package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// dependencyGraph maps a schedule name to the schedules it dispatches.
type dependencyGraph map[string][]string

// buildDependencyGraph keeps only references to defined schedules;
// dangling names are reported by Validate.
func buildDependencyGraph(def *Definition) (dependencyGraph, []string) {
	graph := make(dependencyGraph, len(def.Schedules))
	names := make([]string, 0, len(def.Schedules))
	for _, s := range def.Schedules {
		names = append(names, s.Name)
		graph[s.Name] = []string{}
	}
	for _, s := range def.Schedules {
		for _, ref := range s.References() {
			if _, ok := graph[ref]; ok && !slices.Contains(graph[s.Name], ref) {
				graph[s.Name] = append(graph[s.Name], ref)
			}
		}
	}
	return graph, names
}

// installOrder returns schedule names with every schedule placed after the
// schedules it references. Each reference cycle is reported once.
//
// Tarjan's algorithm emits strongly connected components in reverse
// topological order of the reference graph, which is the order in which
// dependencies have to be registered.
func installOrder(def *Definition) ([]string, []ValidationError) {
	graph, names := buildDependencyGraph(def)

	var (
		order  []string
		cycles []ValidationError
	)
	for _, scc := range tarjanSCC(graph, names) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			path := reconstructCyclePath(scc, graph)
			cycles = append(cycles, ValidationError{
				Field:   "schedule." + path[0],
				Message: fmt.Sprintf("schedule reference cycle: %s", strings.Join(path, " -> ")),
				Code:    ErrScheduleCycle,
			})
			continue
		}
		order = append(order, scc[0])
	}
	return order, cycles
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Roots are visited in the order of names so the result is deterministic.
func tarjanSCC(graph dependencyGraph, names []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			// Members were pushed in visit order.
			slices.Reverse(scc)
			sccs = append(sccs, scc)
		}
	}

	for _, node := range names {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath follows edges inside the SCC from its first member
// until it returns there.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	start := scc[0]
	if len(scc) == 1 {
		return []string{start, start}
	}

	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	path := []string{start}
	visited := map[string]bool{}
	current := start
	for {
		visited[current] = true
		var next string
		for _, w := range graph[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
