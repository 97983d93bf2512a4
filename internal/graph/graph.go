// Package graph is a small state-graph engine: named nodes transform a shared
// State, static edges and conditional branches decide what runs next, and a
// compiled Runnable streams each node's partial update as it is produced.
package graph

import (
	"context"
	"errors"
	"fmt"
)

const (
	// Start is the virtual node every run begins from.
	Start = "__start__"
	// End is the virtual terminal node.
	End = "__end__"
)

// NodeFunc transforms the current state into a partial update.
type NodeFunc func(ctx context.Context, s State) (State, error)

// RouterFunc picks the next destination key for a conditional branch.
type RouterFunc func(ctx context.Context, s State) (string, error)

// Noop is substituted for nodes registered without an implementation.
func Noop(context.Context, State) (State, error) {
	return State{}, nil
}

type branch struct {
	router RouterFunc
	paths  map[string]string
}

// Builder collects the graph definition. Mistakes are recorded and reported by Compile.
type Builder struct {
	nodes    map[string]NodeFunc
	order    []string
	edges    map[string][]string
	branches map[string]branch
	errs     []error
}

// NewBuilder returns an empty graph definition.
func NewBuilder() *Builder {
	return &Builder{
		nodes:    make(map[string]NodeFunc),
		edges:    make(map[string][]string),
		branches: make(map[string]branch),
	}
}

// AddNode registers a node. A nil fn registers a no-op node.
func (b *Builder) AddNode(name string, fn NodeFunc) {
	switch {
	case name == "" || name == Start || name == End:
		b.errs = append(b.errs, fmt.Errorf("graph: invalid node name %q", name))
		return
	case b.nodes[name] != nil:
		b.errs = append(b.errs, fmt.Errorf("graph: node %q already added", name))
		return
	}
	if fn == nil {
		fn = Noop
	}
	b.nodes[name] = fn
	b.order = append(b.order, name)
}

// AddEdge adds a static edge. Several edges out of one node all fire.
func (b *Builder) AddEdge(from, to string) {
	if from == End {
		b.errs = append(b.errs, errors.New("graph: edges cannot leave the end node"))
		return
	}
	b.edges[from] = append(b.edges[from], to)
}

// SetEntryPoint is shorthand for AddEdge(Start, name).
func (b *Builder) SetEntryPoint(name string) {
	b.AddEdge(Start, name)
}

// AddConditionalEdges routes out of source using router. When paths is nil the
// router's result is used as the destination node name directly.
func (b *Builder) AddConditionalEdges(source string, router RouterFunc, paths map[string]string) {
	if router == nil {
		b.errs = append(b.errs, fmt.Errorf("graph: nil router for %q", source))
		return
	}
	if _, ok := b.branches[source]; ok {
		b.errs = append(b.errs, fmt.Errorf("graph: node %q already has a conditional branch", source))
		return
	}
	b.branches[source] = branch{router: router, paths: paths}
}

func (b *Builder) validate() error {
	errs := append([]error(nil), b.errs...)
	if len(b.edges[Start]) == 0 {
		errs = append(errs, errors.New("graph: no entry point"))
	}
	known := func(name string) bool {
		if name == End {
			return true
		}
		_, ok := b.nodes[name]
		return ok
	}
	for from, tos := range b.edges {
		if from != Start && !known(from) {
			errs = append(errs, fmt.Errorf("graph: edge from unknown node %q", from))
		}
		for _, to := range tos {
			if to == Start || !known(to) {
				errs = append(errs, fmt.Errorf("graph: edge %q -> unknown node %q", from, to))
			}
		}
	}
	for source, br := range b.branches {
		if !known(source) || source == End {
			errs = append(errs, fmt.Errorf("graph: branch from unknown node %q", source))
		}
		for key, to := range br.paths {
			if !known(to) {
				errs = append(errs, fmt.Errorf("graph: branch %q key %q -> unknown node %q", source, key, to))
			}
		}
	}
	return errors.Join(errs...)
}
