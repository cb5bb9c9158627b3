// Package dataset ties an index of items to the factory that turns index
// slices into batches and to the data preloaded for those batches.
//
// A Dataset never changes its index. Subsets, splits and batches are new
// values that share the factory and the preloaded payload with their parent,
// so any number of goroutines may create batches from the same Dataset.
package dataset

import (
	"reflect"

	"github.com/Noofbiz/batchflow/batch"
	"github.com/Noofbiz/batchflow/dsindex"
	"github.com/Noofbiz/batchflow/pipeline"
)

// Dataset holds an index of all data items together with the factory used to
// process a subset of them (a batch).
type Dataset[K comparable] struct {
	index     dsindex.Indexer[K]
	factory   batch.Factory[K]
	preloaded any

	// Train, Test and Validation are set by Split.
	Train      *Dataset[K]
	Test       *Dataset[K]
	Validation *Dataset[K]
}

// New creates a dataset. index may be a dsindex.Indexer[K], which is kept as
// is, a []K of unique identifiers, or an item count when K is int. A nil
// factory selects batch.ArrayFactory. preloaded is shared by reference with
// every batch and subset and is never written to.
func New[K comparable](index any, factory batch.Factory[K], preloaded any) (*Dataset[K], error) {
	idx, err := dsindex.BuildIndex[K](index)
	if err != nil {
		return nil, err
	}
	if factory == nil {
		factory = batch.ArrayFactory[K]{}
	}
	return &Dataset[K]{index: idx, factory: factory, preloaded: preloaded}, nil
}

// FromDataset returns a dataset over index built like src.
//
// It is an aliasing optimization, not a copy: when factory is nil or equal to
// src's, and index holds the same identifiers as src's index,
// src itself is returned. Otherwise the new dataset shares src's preloaded
// payload and uses factory (or src's when nil).
func FromDataset[K comparable](src *Dataset[K], index dsindex.Indexer[K], factory batch.Factory[K]) *Dataset[K] {
	if (factory == nil || sameFactory(factory, src.factory)) && dsindex.Same(index, src.index) {
		return src
	}
	if factory == nil {
		factory = src.factory
	}
	return &Dataset[K]{index: index, factory: factory, preloaded: src.preloaded}
}

// sameFactory reports whether a and b are equal interface values. Factories
// of a non-comparable dynamic type are never equal.
func sameFactory[K comparable](a, b batch.Factory[K]) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Index returns the dataset index.
func (d *Dataset[K]) Index() dsindex.Indexer[K] { return d.index }

// Indices returns a copy of the item identifiers.
func (d *Dataset[K]) Indices() []K { return d.index.Indices() }

// Len returns the number of items.
func (d *Dataset[K]) Len() int { return d.index.Len() }

// Factory returns the batch factory.
func (d *Dataset[K]) Factory() batch.Factory[K] { return d.factory }

// Preloaded returns the shared payload, or nil.
func (d *Dataset[K]) Preloaded() any { return d.preloaded }

// IsSplit reports whether Split has been called.
func (d *Dataset[K]) IsSplit() bool { return d.Train != nil }

// CreateSubset returns a dataset over index. Every identifier of index must
// belong to d, otherwise a *dsindex.IndexOutOfRangeError is returned. The
// result is d itself when index holds exactly d's identifiers.
func (d *Dataset[K]) CreateSubset(index dsindex.Indexer[K]) (*Dataset[K], error) {
	sub, err := dsindex.Subset(d.index, index)
	if err != nil {
		return nil, err
	}
	return FromDataset(d, sub, nil), nil
}

// CreateBatch builds a batch holding ids, in the given order. Factory errors
// are returned unchanged.
func (d *Dataset[K]) CreateBatch(ids []K, opts batch.Options) (batch.Batch[K], error) {
	idx, err := dsindex.Slice(d.index, ids)
	if err != nil {
		return nil, err
	}
	return d.factory.NewBatch(idx, d.preloaded, opts)
}

// CreateBatchAt builds a batch from the items at positions of the index.
func (d *Dataset[K]) CreateBatchAt(positions []int, opts batch.Options) (batch.Batch[K], error) {
	idx, err := dsindex.SliceAt(d.index, positions)
	if err != nil {
		return nil, err
	}
	return d.factory.NewBatch(idx, d.preloaded, opts)
}

// CreateBatchFrom builds a batch from an index slice that has already been
// derived, without checking it against d's index.
func (d *Dataset[K]) CreateBatchFrom(index dsindex.Indexer[K], opts batch.Options) (batch.Batch[K], error) {
	return d.factory.NewBatch(index, d.preloaded, opts)
}

// Split divides the dataset into Train, Test and Validation datasets over
// disjoint parts of its index. See dsindex.Shares for how shares are read.
// A part holding every item is d itself.
func (d *Dataset[K]) Split(shares dsindex.Shares, shuffle bool, seed int64) error {
	train, test, validation, err := dsindex.Split(d.index, shares, shuffle, seed)
	if err != nil {
		return err
	}
	d.Train = FromDataset(d, train, nil)
	d.Test = FromDataset(d, test, nil)
	d.Validation = FromDataset(d, validation, nil)
	return nil
}

// Pipeline starts a new pipeline over d. cfg may be nil.
func (d *Dataset[K]) Pipeline(cfg pipeline.Config) *pipeline.Pipeline[K] {
	return pipeline.New[K](d, cfg)
}

// P is a short form of Pipeline(nil).
func (d *Dataset[K]) P() *pipeline.Pipeline[K] {
	return d.Pipeline(nil)
}

// Bind returns p bound to d. p must be a *pipeline.Pipeline[K]; anything else
// gives an *ArgumentTypeError. p itself is left unchanged.
func (d *Dataset[K]) Bind(p any) (*pipeline.Pipeline[K], error) {
	pp, ok := p.(*pipeline.Pipeline[K])
	if !ok || pp == nil {
		return nil, &ArgumentTypeError{Got: p}
	}
	return pp.Bind(d), nil
}
