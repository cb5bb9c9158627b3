package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Noofbiz/batchflow/dsindex"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Tensorer is implemented by batches that can export components as a
// [items, components] tensor, such as *batch.ArrayBatch.
type Tensorer interface {
	Tensors(names ...string) (*tensors.Tensor, error)
}

// TrainSet adapts a pipeline to the gomlx train.Dataset interface: every
// Yield runs the pipeline on the next batch and returns the requested input
// and label components as tensors.
type TrainSet[K comparable] struct {
	p      *Pipeline[K]
	opts   RunOptions
	inputs []string
	labels []string
	name   string

	mu sync.Mutex
	it *dsindex.Iterator[K]
}

// TrainDataset returns a TrainSet over p. One Yield cycle (until io.EOF)
// covers what opts describes, usually one epoch.
func TrainDataset[K comparable](p *Pipeline[K], opts RunOptions, inputs, labels []string) (*TrainSet[K], error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("train dataset needs at least one input component")
	}
	it, err := p.iterator(opts)
	if err != nil {
		return nil, err
	}
	return &TrainSet[K]{
		p:      p,
		opts:   opts,
		inputs: append([]string(nil), inputs...),
		labels: append([]string(nil), labels...),
		name:   "batchflow",
		it:     it,
	}, nil
}

// WithName sets the name reported by Name.
func (ts *TrainSet[K]) WithName(name string) *TrainSet[K] {
	ts.name = name
	return ts
}

// Name implements train.Dataset.
func (ts *TrainSet[K]) Name() string { return ts.name }

// Reset implements train.Dataset and restarts iteration.
func (ts *TrainSet[K]) Reset() {
	it, err := ts.p.iterator(ts.opts)
	if err != nil {
		// options were validated by TrainDataset
		return
	}
	ts.mu.Lock()
	ts.it = it
	ts.mu.Unlock()
}

// Yield implements train.Dataset. It returns io.EOF once the iteration is
// over.
func (ts *TrainSet[K]) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	ts.mu.Lock()
	it := ts.it
	ts.mu.Unlock()

	idx, err := it.Next()
	if errors.Is(err, dsindex.ErrStopIteration) {
		return nil, nil, nil, io.EOF
	}
	if err != nil {
		return nil, nil, nil, err
	}
	b, err := ts.p.runOne(context.Background(), idx, ts.opts.BatchOptions)
	if err != nil {
		return nil, nil, nil, err
	}
	tb, ok := b.(Tensorer)
	if !ok {
		return nil, nil, nil, fmt.Errorf("batch %T cannot be converted to tensors", b)
	}
	in, err := tb.Tensors(ts.inputs...)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "inputs")
	}
	inputs = []*tensors.Tensor{in}
	if len(ts.labels) > 0 {
		lab, err := tb.Tensors(ts.labels...)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "labels")
		}
		labels = []*tensors.Tensor{lab}
	}
	return ts, inputs, labels, nil
}
