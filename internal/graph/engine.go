package graph

import (
	"context"
	"fmt"
	"iter"
	"time"
)

// DefaultStepLimit bounds the number of super-steps a single run may take.
const DefaultStepLimit = 25

// Runnable is a compiled graph.
type Runnable interface {
	// Stream runs the graph from input and yields every node's update in order.
	// A non-nil error is always the last value yielded.
	Stream(ctx context.Context, input State) iter.Seq2[Update, error]
	// Invoke drains Stream and returns the merged final state.
	Invoke(ctx context.Context, input State) (State, error)
}

// Engine compiles graph definitions into Runnables.
type Engine interface {
	Name() string
	Compile(b *Builder, opts ...CompileOption) (Runnable, error)
}

// Engine names accepted by NewEngine.
const (
	EngineGraph = "graph"
	EngineNull  = "null"
)

// NewEngine selects an engine implementation by name.
func NewEngine(name string) (Engine, error) {
	switch name {
	case "", EngineGraph:
		return StateGraphEngine{}, nil
	case EngineNull:
		return NullEngine{}, nil
	default:
		return nil, fmt.Errorf("graph: unknown engine %q", name)
	}
}

// NodeObserver is told about every node execution.
type NodeObserver func(node string, took time.Duration, err error)

type compileOptions struct {
	stepLimit int
	observer  NodeObserver
}

// CompileOption tunes a compiled graph.
type CompileOption func(*compileOptions)

// WithStepLimit overrides DefaultStepLimit.
func WithStepLimit(n int) CompileOption {
	return func(o *compileOptions) {
		if n > 0 {
			o.stepLimit = n
		}
	}
}

// WithNodeObserver registers a callback run after each node.
func WithNodeObserver(fn NodeObserver) CompileOption {
	return func(o *compileOptions) {
		o.observer = fn
	}
}

// StepError reports a node that failed.
type StepError struct {
	Node string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Node, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StateGraphEngine executes graphs in super-steps: every node scheduled for a
// step reads the same snapshot, and their updates are merged once the step ends.
type StateGraphEngine struct{}

func (StateGraphEngine) Name() string { return EngineGraph }

func (StateGraphEngine) Compile(b *Builder, opts ...CompileOption) (Runnable, error) {
	if b == nil {
		return nil, fmt.Errorf("graph: nil builder")
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	o := compileOptions{stepLimit: DefaultStepLimit}
	for _, opt := range opts {
		opt(&o)
	}
	g := &compiled{
		nodes:    make(map[string]NodeFunc, len(b.nodes)),
		edges:    make(map[string][]string, len(b.edges)),
		branches: make(map[string]branch, len(b.branches)),
		opts:     o,
	}
	for k, v := range b.nodes {
		g.nodes[k] = v
	}
	for k, v := range b.edges {
		g.edges[k] = append([]string(nil), v...)
	}
	for k, v := range b.branches {
		g.branches[k] = v
	}
	return g, nil
}

type compiled struct {
	nodes    map[string]NodeFunc
	edges    map[string][]string
	branches map[string]branch
	opts     compileOptions
}

func (g *compiled) Invoke(ctx context.Context, input State) (State, error) {
	final := input.Clone()
	for u, err := range g.Stream(ctx, input) {
		if err != nil {
			return final, err
		}
		final.Merge(u.Values)
	}
	return final, nil
}

func (g *compiled) Stream(ctx context.Context, input State) iter.Seq2[Update, error] {
	return func(yield func(Update, error) bool) {
		state := input.Clone()
		frontier, err := g.next(ctx, Start, state)
		if err != nil {
			yield(Update{}, err)
			return
		}
		for step := 0; len(frontier) > 0; step++ {
			if step >= g.opts.stepLimit {
				yield(Update{}, fmt.Errorf("graph: step limit %d reached", g.opts.stepLimit))
				return
			}
			snapshot := state.Clone()
			updates := make([]State, 0, len(frontier))
			for _, name := range frontier {
				if err := ctx.Err(); err != nil {
					yield(Update{}, err)
					return
				}
				update, err := g.run(ctx, name, snapshot.Clone())
				if err != nil {
					yield(Update{}, err)
					return
				}
				updates = append(updates, update)
				if !yield(Update{Node: name, Values: update}, nil) {
					return
				}
			}
			for _, u := range updates {
				state.Merge(u)
			}

			var following []string
			seen := make(map[string]bool)
			for _, name := range frontier {
				succ, err := g.next(ctx, name, state)
				if err != nil {
					yield(Update{}, err)
					return
				}
				for _, s := range succ {
					if !seen[s] {
						seen[s] = true
						following = append(following, s)
					}
				}
			}
			frontier = following
		}
	}
}

func (g *compiled) run(ctx context.Context, name string, s State) (update State, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = &StepError{Node: name, Err: err}
		}
		if g.opts.observer != nil {
			g.opts.observer(name, time.Since(start), err)
		}
	}()
	update, err = g.nodes[name](ctx, s)
	if update == nil {
		update = State{}
	}
	return update, err
}

// next returns the nodes scheduled after name, excluding End.
func (g *compiled) next(ctx context.Context, name string, s State) ([]string, error) {
	var out []string
	for _, to := range g.edges[name] {
		if to != End {
			out = append(out, to)
		}
	}
	if br, ok := g.branches[name]; ok {
		key, err := br.router(ctx, s)
		if err != nil {
			return nil, &StepError{Node: name, Err: fmt.Errorf("route: %w", err)}
		}
		to := key
		if br.paths != nil {
			var ok bool
			if to, ok = br.paths[key]; !ok {
				return nil, fmt.Errorf("graph: branch from %q returned unknown key %q", name, key)
			}
		} else if _, ok := g.nodes[to]; !ok && to != End {
			return nil, fmt.Errorf("graph: branch from %q returned unknown node %q", name, to)
		}
		if to != End {
			out = append(out, to)
		}
	}
	return out, nil
}

// NullEngine compiles any graph into a runnable that echoes its input once.
// It stands in when graph execution is disabled by configuration.
type NullEngine struct{}

func (NullEngine) Name() string { return EngineNull }

func (NullEngine) Compile(*Builder, ...CompileOption) (Runnable, error) {
	return nullRunnable{}, nil
}

type nullRunnable struct{}

func (nullRunnable) Stream(_ context.Context, input State) iter.Seq2[Update, error] {
	return func(yield func(Update, error) bool) {
		yield(Update{Node: "result", Values: input.Clone()}, nil)
	}
}

func (n nullRunnable) Invoke(ctx context.Context, input State) (State, error) {
	return input.Clone(), nil
}
