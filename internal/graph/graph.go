// Package graph provides a dependency graph over plan actions.
package graph

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/relay/pkg/models"
)

var (
	// ErrCycleDetected indicates a circular dependency between actions.
	ErrCycleDetected = errors.New("circular dependency detected")
	// ErrUnknownDependency indicates a dependsOn entry names no action in the plan.
	ErrUnknownDependency = errors.New("unknown dependency")
)

// DependencyGraph is a directed acyclic graph of plan actions.
// Edges point from an action to the actions it depends on.
// A graph is built once and read-only afterwards.
type DependencyGraph struct {
	// nodes maps action ID to the action itself.
	nodes map[string]models.PlanAction
	// order is the plan order of action IDs, used to keep output deterministic.
	order []string
	// edges maps action ID to IDs of actions it depends on.
	edges map[string][]string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...any)
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:    make(map[string]models.PlanAction),
		edges:    make(map[string][]string),
		debugLog: func(format string, args ...any) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...any)) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from a plan's actions.
// Returns ErrUnknownDependency or ErrCycleDetected, wrapped with the offending ids.
func (g *DependencyGraph) Build(actions []models.PlanAction) error {
	g.debugLog("[graph.Build] building graph from %d actions", len(actions))

	for _, a := range actions {
		if _, dup := g.nodes[a.ID]; !dup {
			g.order = append(g.order, a.ID)
		}
		g.nodes[a.ID] = a
		g.edges[a.ID] = nil
	}

	for _, a := range actions {
		for _, dep := range a.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return fmt.Errorf("%w: action %s depends on %s", ErrUnknownDependency, a.ID, dep)
			}
			g.edges[a.ID] = append(g.edges[a.ID], dep)
		}
	}

	if cycle := g.findCycle(); cycle != "" {
		return fmt.Errorf("%w: through action %s", ErrCycleDetected, cycle)
	}

	g.debugLog("[graph.Build] graph built with %d nodes, edges: %v", len(g.nodes), g.edges)
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	return g.findCycle() != ""
}

// findCycle runs a colored DFS and returns an action on a cycle, or "".
func (g *DependencyGraph) findCycle() string {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) string
	visit = func(id string) string {
		colors[id] = 1
		for _, dep := range g.edges[id] {
			switch colors[dep] {
			case 1:
				return dep
			case 0:
				if c := visit(dep); c != "" {
					return c
				}
			}
		}
		colors[id] = 2
		return ""
	}

	for _, id := range g.order {
		if colors[id] == 0 {
			if c := visit(id); c != "" {
				return c
			}
		}
	}
	return ""
}

// TopologicalSort returns action IDs with every dependency before its
// dependents. Independent actions keep plan order.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(g.nodes))
	for _, level := range levels {
		for _, a := range level {
			out = append(out, a.ID)
		}
	}
	return out, nil
}

// Levels layers the actions so that each action sits one level after its
// deepest dependency. Actions in the same level are independent of each
// other. Within a level, plan order is kept.
func (g *DependencyGraph) Levels() ([][]models.PlanAction, error) {
	if g.HasCycle() {
		return nil, ErrCycleDetected
	}

	depth := make(map[string]int, len(g.nodes))
	var depthOf func(id string) int
	depthOf = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		d := 0
		for _, dep := range g.edges[id] {
			if dd := depthOf(dep) + 1; dd > d {
				d = dd
			}
		}
		depth[id] = d
		return d
	}

	var levels [][]models.PlanAction
	for _, id := range g.order {
		d := depthOf(id)
		for len(levels) <= d {
			levels = append(levels, nil)
		}
		levels[d] = append(levels[d], g.nodes[id])
	}
	g.debugLog("[graph.Levels] %d levels from %d actions", len(levels), len(g.nodes))
	return levels, nil
}

// Action returns the action for a given ID.
func (g *DependencyGraph) Action(id string) (models.PlanAction, bool) {
	a, ok := g.nodes[id]
	return a, ok
}

// Size returns the number of actions in the graph.
func (g *DependencyGraph) Size() int {
	return len(g.nodes)
}

// GetDependencies returns the IDs of actions that id depends on.
func (g *DependencyGraph) GetDependencies(id string) []string {
	return g.edges[id]
}

// GetDependents returns the IDs of actions that depend on id, in plan order.
func (g *DependencyGraph) GetDependents(id string) []string {
	var dependents []string
	for _, other := range g.order {
		for _, dep := range g.edges[other] {
			if dep == id {
				dependents = append(dependents, other)
				break
			}
		}
	}
	return dependents
}
