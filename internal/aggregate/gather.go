// Package aggregate joins a fixed set of named, independent reads into a
// single result.
//
// A Gather issues every registered source concurrently and reports exactly
// once: either the full map of results keyed by source name, or the first
// error any source returned. Results that arrive after the report are
// discarded.
package aggregate

import (
	"context"
	"sync"
)

// SourceFunc produces one named value.
type SourceFunc[T any] func(ctx context.Context) (T, error)

// Gather collects named sources and reports their joined result once.
type Gather[T any] struct {
	mu      sync.Mutex
	names   []string
	sources map[string]SourceFunc[T]
	pending int
	results map[string]T
	done    bool
	started bool
	report  func(map[string]T, error)
}

// New returns an empty Gather.
func New[T any]() *Gather[T] {
	return &Gather[T]{
		sources: make(map[string]SourceFunc[T]),
		results: make(map[string]T),
	}
}

// Source registers a named source. Registering the same name twice replaces
// the earlier source. Source panics once Then has been called.
func (g *Gather[T]) Source(name string, fn SourceFunc[T]) *Gather[T] {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		panic("aggregate: Source called after Then")
	}
	if _, ok := g.sources[name]; !ok {
		g.names = append(g.names, name)
	}
	g.sources[name] = fn
	return g
}

// Then starts every registered source and arranges for report to be called
// exactly once with either all results or the first error. With no sources
// registered, report is called immediately with an empty map.
func (g *Gather[T]) Then(ctx context.Context, report func(map[string]T, error)) {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		panic("aggregate: Then called twice")
	}
	g.started = true
	g.report = report
	g.pending = len(g.names)

	if g.pending == 0 {
		g.done = true
		g.mu.Unlock()
		report(map[string]T{}, nil)
		return
	}

	names := append([]string(nil), g.names...)
	g.mu.Unlock()

	for _, name := range names {
		go g.run(ctx, name, g.sources[name])
	}
}

// Wait is the blocking form of Then.
func (g *Gather[T]) Wait(ctx context.Context) (map[string]T, error) {
	type outcome struct {
		res map[string]T
		err error
	}
	ch := make(chan outcome, 1)
	g.Then(ctx, func(res map[string]T, err error) {
		ch <- outcome{res, err}
	})
	out := <-ch
	return out.res, out.err
}

func (g *Gather[T]) run(ctx context.Context, name string, fn SourceFunc[T]) {
	val, err := fn(ctx)

	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return
	}
	if err != nil {
		g.done = true
		g.mu.Unlock()
		g.report(nil, err)
		return
	}
	g.results[name] = val
	g.pending--
	if g.pending > 0 {
		g.mu.Unlock()
		return
	}
	g.done = true
	res := make(map[string]T, len(g.results))
	for k, v := range g.results {
		res[k] = v
	}
	g.mu.Unlock()
	g.report(res, nil)
}
