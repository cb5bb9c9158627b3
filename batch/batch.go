// Package batch defines what a batch is to the rest of batchflow: a slice of
// a dataset index plus the dataset's preloaded data, along with the named
// actions a pipeline may run on it.
//
// Batches are built by a Factory, the capability a dataset is configured
// with. ArrayBatch is the default implementation; callers with their own data
// layout provide their own Factory.
package batch

import (
	"context"
	"fmt"

	"github.com/Noofbiz/batchflow/dsindex"
)

// Batch is the minimal unit of work flowing through a pipeline.
type Batch[K comparable] interface {
	// Index returns the index slice the batch was built from.
	Index() dsindex.Indexer[K]

	// Len returns the number of items in the batch.
	Len() int

	// Indices returns the item identifiers in batch order.
	Indices() []K
}

// Options are keyword arguments passed through to a Factory.
type Options map[string]any

// Factory builds a batch from an index slice, the dataset's preloaded data
// (shared, read-only) and keyword options. Errors are returned to the caller
// as they are.
//
// Datasets compare factories with ==, so two factories are the same only
// when they are equal interface values.
type Factory[K comparable] interface {
	NewBatch(index dsindex.Indexer[K], preloaded any, opts Options) (Batch[K], error)
}

// FactoryFunc wraps fn as a Factory. Every call returns a distinct factory,
// even for the same fn.
func FactoryFunc[K comparable](fn func(index dsindex.Indexer[K], preloaded any, opts Options) (Batch[K], error)) Factory[K] {
	return &funcFactory[K]{fn: fn}
}

type funcFactory[K comparable] struct {
	fn func(dsindex.Indexer[K], any, Options) (Batch[K], error)
}

func (f *funcFactory[K]) NewBatch(index dsindex.Indexer[K], preloaded any, opts Options) (Batch[K], error) {
	return f.fn(index, preloaded, opts)
}

// Action is a named processing step. It may modify b in place and return it,
// or return a different batch.
type Action[K comparable] func(ctx context.Context, b Batch[K], call Call) (Batch[K], error)

// Actioner is implemented by batches that expose their own named actions.
type Actioner[K comparable] interface {
	Action(name string) (Action[K], bool)
}

// Vars is the pipeline variable store seen by actions. Implementations must
// be safe for concurrent use.
type Vars interface {
	Get(name string) (any, bool)
	Set(name string, value any)
	Update(name string, fn func(old any) any)
}

// Call carries the arguments of one action invocation.
type Call struct {
	// Name is the action name as written in the pipeline.
	Name string

	Args   []any
	Kwargs map[string]any

	// Config is the pipeline configuration. Actions must not modify it.
	Config map[string]any

	// Vars is nil when the action runs outside a pipeline.
	Vars Vars
}

// Arg returns the i-th positional argument.
func (c Call) Arg(i int) (any, bool) {
	if i < 0 || i >= len(c.Args) {
		return nil, false
	}
	return c.Args[i], true
}

// Kwarg returns a keyword argument.
func (c Call) Kwarg(name string) (any, bool) {
	v, ok := c.Kwargs[name]
	return v, ok
}

// StringArg returns the i-th positional argument as a string.
func (c Call) StringArg(i int) (string, error) {
	v, ok := c.Arg(i)
	if !ok {
		return "", fmt.Errorf("%s: missing argument %d", c.Name, i)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %d must be a string, got %T", c.Name, i, v)
	}
	return s, nil
}

// FloatArg returns the i-th positional argument as a float64. Ints and
// float32 values are converted.
func (c Call) FloatArg(i int) (float64, error) {
	v, ok := c.Arg(i)
	if !ok {
		return 0, fmt.Errorf("%s: missing argument %d", c.Name, i)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s: argument %d must be a number, got %T", c.Name, i, v)
	}
	return f, nil
}

// StringArgs returns every positional argument as a string. A single
// []string argument is expanded.
func (c Call) StringArgs() ([]string, error) {
	if len(c.Args) == 1 {
		if ss, ok := c.Args[0].([]string); ok {
			return ss, nil
		}
	}
	out := make([]string, len(c.Args))
	for i := range c.Args {
		s, err := c.StringArg(i)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
