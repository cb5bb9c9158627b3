// Package pipeline chains named actions and runs them over the batches of a
// dataset.
//
// A Pipeline is built step by step. Every builder method returns a new
// Pipeline and leaves its receiver untouched, so a common prefix can be shared
// by several pipelines. A pipeline may be built unbound and attached to a
// dataset later with Bind; executing it is the same as if it had been built
// from that dataset in the first place.
package pipeline

import (
	"context"
	"maps"
	"sync"

	"github.com/Noofbiz/batchflow/batch"
	"github.com/Noofbiz/batchflow/dsindex"
)

// Source is what a pipeline draws batches from. *dataset.Dataset implements
// it.
type Source[K comparable] interface {
	Index() dsindex.Indexer[K]
	CreateBatchFrom(index dsindex.Indexer[K], opts batch.Options) (batch.Batch[K], error)
}

// Step is one action of a pipeline.
type Step[K comparable] struct {
	Name   string
	Args   []any
	Kwargs map[string]any

	fn batch.Action[K]
}

type varInit struct {
	name  string
	value any
}

// Pipeline is an ordered chain of actions, optionally bound to a Source.
type Pipeline[K comparable] struct {
	src     Source[K]
	cfg     Config
	steps   []Step[K]
	actions map[string]batch.Action[K]
	inits   []varInit

	vars *Vars

	// pull-based iteration state, see Reset and NextBatch
	mu   sync.Mutex
	iter *dsindex.Iterator[K]
	opts RunOptions
}

// New creates an empty pipeline over src. src may be nil for a pipeline to be
// bound later; cfg may be nil.
func New[K comparable](src Source[K], cfg Config) *Pipeline[K] {
	return &Pipeline[K]{
		src:     src,
		cfg:     cfg,
		actions: make(map[string]batch.Action[K]),
		vars:    NewVars(),
	}
}

// clone copies everything a pipeline is built from. Variables and iteration
// state are not carried over.
func (p *Pipeline[K]) clone() *Pipeline[K] {
	actions := make(map[string]batch.Action[K], len(p.actions))
	maps.Copy(actions, p.actions)
	return &Pipeline[K]{
		src:     p.src,
		cfg:     p.cfg,
		steps:   append([]Step[K](nil), p.steps...),
		actions: actions,
		inits:   append([]varInit(nil), p.inits...),
		vars:    NewVars(),
	}
}

// Source returns the bound source, or nil.
func (p *Pipeline[K]) Source() Source[K] { return p.src }

// IsBound reports whether the pipeline has a source.
func (p *Pipeline[K]) IsBound() bool { return p.src != nil }

// Config returns the pipeline configuration. Callers must not modify it.
func (p *Pipeline[K]) Config() Config { return p.cfg }

// Steps returns a copy of the pipeline steps.
func (p *Pipeline[K]) Steps() []Step[K] {
	return append([]Step[K](nil), p.steps...)
}

// Vars returns the variable store.
func (p *Pipeline[K]) Vars() *Vars { return p.vars }

// Var returns the current value of a pipeline variable.
func (p *Pipeline[K]) Var(name string) (any, bool) { return p.vars.Get(name) }

// Bind returns a pipeline with the same steps and configuration over src.
func (p *Pipeline[K]) Bind(src Source[K]) *Pipeline[K] {
	q := p.clone()
	q.src = src
	return q
}

// WithConfig returns a pipeline whose configuration is p's merged with cfg,
// cfg winning on conflicts.
func (p *Pipeline[K]) WithConfig(cfg Config) *Pipeline[K] {
	q := p.clone()
	q.cfg = p.cfg.Merge(cfg)
	return q
}

// Add appends an action call by name.
func (p *Pipeline[K]) Add(name string, args ...any) *Pipeline[K] {
	return p.AddKw(name, nil, args...)
}

// AddKw appends an action call with keyword arguments.
func (p *Pipeline[K]) AddKw(name string, kwargs map[string]any, args ...any) *Pipeline[K] {
	q := p.clone()
	q.steps = append(q.steps, Step[K]{
		Name:   name,
		Args:   append([]any(nil), args...),
		Kwargs: maps.Clone(kwargs),
	})
	return q
}

// Register makes action available to steps under name. Registered actions
// take precedence over the batch's own.
func (p *Pipeline[K]) Register(name string, action batch.Action[K]) *Pipeline[K] {
	q := p.clone()
	q.actions[name] = action
	return q
}

// Call appends an inline action.
func (p *Pipeline[K]) Call(name string, fn batch.Action[K], args ...any) *Pipeline[K] {
	q := p.Add(name, args...)
	q.steps[len(q.steps)-1].fn = fn
	return q
}

// Load appends the load action for the given components.
func (p *Pipeline[K]) Load(components ...string) *Pipeline[K] {
	return p.Add("load", stringArgs(components)...)
}

// Normalize appends the normalize action. No components means all of them.
func (p *Pipeline[K]) Normalize(components ...string) *Pipeline[K] {
	return p.Add("normalize", stringArgs(components)...)
}

// Scale appends the scale action.
func (p *Pipeline[K]) Scale(component string, factor float64) *Pipeline[K] {
	return p.Add("scale", component, factor)
}

// Apply appends the apply action.
func (p *Pipeline[K]) Apply(component string, fn func(float64) float64) *Pipeline[K] {
	return p.Add("apply", component, fn)
}

// Stats appends the stats action, which collects the component statistics of
// every batch into the variable "stats:<component>".
func (p *Pipeline[K]) Stats(component string) *Pipeline[K] {
	return p.Add("stats", component)
}

// Print appends the print action.
func (p *Pipeline[K]) Print(prefix string) *Pipeline[K] {
	return p.Add("print", prefix)
}

// InitVariable declares a variable with its initial value. It is set once,
// before the first batch, unless the variable already exists.
func (p *Pipeline[K]) InitVariable(name string, value any) *Pipeline[K] {
	q := p.clone()
	q.inits = append(q.inits, varInit{name: name, value: value})
	return q
}

// UpdateVariable appends a step replacing a variable with fn(old, batch).
func (p *Pipeline[K]) UpdateVariable(name string, fn func(old any, b batch.Batch[K]) any) *Pipeline[K] {
	return p.Call("update_variable", func(_ context.Context, b batch.Batch[K], call batch.Call) (batch.Batch[K], error) {
		call.Vars.Update(name, func(old any) any { return fn(old, b) })
		return b, nil
	}, name)
}

// Concat returns a pipeline running p's steps followed by those of others.
// The source is p's. Configurations are merged left to right, later ones
// winning, and so are registered actions.
func (p *Pipeline[K]) Concat(others ...*Pipeline[K]) *Pipeline[K] {
	q := p.clone()
	for _, o := range others {
		if o == nil {
			continue
		}
		q.steps = append(q.steps, o.steps...)
		q.inits = append(q.inits, o.inits...)
		maps.Copy(q.actions, o.actions)
		q.cfg = q.cfg.Merge(o.cfg)
	}
	return q
}

func stringArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
