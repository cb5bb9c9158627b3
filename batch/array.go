package batch

import (
	"context"
	"fmt"
	"sort"

	"github.com/Noofbiz/batchflow/dsindex"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"
)

// RowSource is preloaded data ArrayBatch.Load can read from. *csvdata.Table
// implements it for string ids.
type RowSource[K comparable] interface {
	Row(id K) (map[string]float64, bool)
}

// Rows is an in-memory RowSource.
type Rows[K comparable] map[K]map[string]float64

// Row implements RowSource.
func (r Rows[K]) Row(id K) (map[string]float64, bool) {
	row, ok := r[id]
	return row, ok
}

// ArrayBatch is the default Batch: named float64 components holding one value
// per item, in batch order.
type ArrayBatch[K comparable] struct {
	index     dsindex.Indexer[K]
	preloaded any
	opts      Options

	components map[string][]float64
	names      []string
}

// ArrayFactory is the default Factory. It builds *ArrayBatch values; all
// ArrayFactory values of one K are equal.
type ArrayFactory[K comparable] struct{}

// NewBatch implements Factory.
func (ArrayFactory[K]) NewBatch(index dsindex.Indexer[K], preloaded any, opts Options) (Batch[K], error) {
	return NewArrayBatch(index, preloaded, opts)
}

// NewArrayBatch builds an ArrayBatch. The preloaded data is kept by reference
// and only ever read.
func NewArrayBatch[K comparable](index dsindex.Indexer[K], preloaded any, opts Options) (Batch[K], error) {
	if index == nil {
		return nil, fmt.Errorf("batch index is nil")
	}
	return &ArrayBatch[K]{
		index:      index,
		preloaded:  preloaded,
		opts:       opts,
		components: make(map[string][]float64),
	}, nil
}

// Index implements Batch.
func (b *ArrayBatch[K]) Index() dsindex.Indexer[K] { return b.index }

// Len implements Batch.
func (b *ArrayBatch[K]) Len() int { return b.index.Len() }

// Indices implements Batch.
func (b *ArrayBatch[K]) Indices() []K { return b.index.Indices() }

// Preloaded returns the shared payload the batch was built with.
func (b *ArrayBatch[K]) Preloaded() any { return b.preloaded }

// Options returns the keyword options the batch was built with.
func (b *ArrayBatch[K]) Options() Options { return b.opts }

// Components returns the component names in the order they were added.
func (b *ArrayBatch[K]) Components() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// Component returns a copy of a component's values.
func (b *ArrayBatch[K]) Component(name string) ([]float64, bool) {
	vals, ok := b.components[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(vals))
	copy(out, vals)
	return out, true
}

// SetComponent stores values (copied) under name. There must be exactly one
// value per item.
func (b *ArrayBatch[K]) SetComponent(name string, values []float64) error {
	if len(values) != b.Len() {
		return fmt.Errorf("component %s has %d values, batch has %d items", name, len(values), b.Len())
	}
	if _, ok := b.components[name]; !ok {
		b.names = append(b.names, name)
	}
	vals := make([]float64, len(values))
	copy(vals, values)
	b.components[name] = vals
	return nil
}

// Load fills components from the preloaded data, which must be a
// RowSource[K]. With no names, every column of the first row is loaded (in
// sorted order).
func (b *ArrayBatch[K]) Load(names ...string) error {
	src, ok := b.preloaded.(RowSource[K])
	if !ok {
		return fmt.Errorf("load: preloaded data %T has no rows", b.preloaded)
	}
	ids := b.index.Indices()
	rows := make([]map[string]float64, len(ids))
	for i, id := range ids {
		row, ok := src.Row(id)
		if !ok {
			return fmt.Errorf("load: no preloaded row for %v", id)
		}
		rows[i] = row
	}
	if len(names) == 0 && len(rows) > 0 {
		for name := range rows[0] {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	for _, name := range names {
		vals := make([]float64, len(rows))
		for i, row := range rows {
			v, ok := row[name]
			if !ok {
				return fmt.Errorf("load: row %v has no column %s", ids[i], name)
			}
			vals[i] = v
		}
		if err := b.SetComponent(name, vals); err != nil {
			return err
		}
	}
	return nil
}

// Normalize rescales a component to zero mean and unit standard deviation.
// A constant component is only centered.
func (b *ArrayBatch[K]) Normalize(name string) error {
	vals, ok := b.components[name]
	if !ok {
		return fmt.Errorf("normalize: no component %s", name)
	}
	if len(vals) == 0 {
		return nil
	}
	mean, std := stat.MeanStdDev(vals, nil)
	if len(vals) < 2 {
		std = 0
	}
	floats.AddConst(-mean, vals)
	if std > 0 {
		floats.Scale(1/std, vals)
	}
	return nil
}

// Scale multiplies a component by factor.
func (b *ArrayBatch[K]) Scale(name string, factor float64) error {
	vals, ok := b.components[name]
	if !ok {
		return fmt.Errorf("scale: no component %s", name)
	}
	floats.Scale(factor, vals)
	return nil
}

// Apply replaces every value v of a component with fn(v).
func (b *ArrayBatch[K]) Apply(name string, fn func(float64) float64) error {
	vals, ok := b.components[name]
	if !ok {
		return fmt.Errorf("apply: no component %s", name)
	}
	for i, v := range vals {
		vals[i] = fn(v)
	}
	return nil
}

// Stats summarizes one component of one batch.
type Stats struct {
	Component string
	Count     int
	Mean      float64
	Std       float64
	Min       float64
	Max       float64
}

// Stats computes summary statistics of a component.
func (b *ArrayBatch[K]) Stats(name string) (Stats, error) {
	vals, ok := b.components[name]
	if !ok {
		return Stats{}, fmt.Errorf("stats: no component %s", name)
	}
	s := Stats{Component: name, Count: len(vals)}
	if len(vals) == 0 {
		return s, nil
	}
	s.Mean, s.Std = stat.MeanStdDev(vals, nil)
	if len(vals) < 2 {
		s.Std = 0
	}
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	return s, nil
}

// Tensors packs the named components (all of them if none are named) into a
// gomlx tensor of shape [items, components].
func (b *ArrayBatch[K]) Tensors(names ...string) (*tensors.Tensor, error) {
	if len(names) == 0 {
		names = b.names
	}
	cols := make([][]float64, len(names))
	for j, name := range names {
		vals, ok := b.components[name]
		if !ok {
			return nil, fmt.Errorf("tensors: no component %s", name)
		}
		cols[j] = vals
	}
	if b.Len() == 0 || len(names) == 0 {
		empty := make([][]float32, 0)
		return tensors.FromAnyValue(empty), nil
	}
	data := make([][]float32, b.Len())
	for i := range data {
		row := make([]float32, len(names))
		for j := range cols {
			row[j] = float32(cols[j][i])
		}
		data[i] = row
	}
	return tensors.FromAnyValue(data), nil
}

// Action implements Actioner. The names are the ones pipelines use:
// load, normalize, scale, apply, stats and print.
func (b *ArrayBatch[K]) Action(name string) (Action[K], bool) {
	var fn func(ctx context.Context, call Call) error
	switch name {
	case "load":
		fn = b.loadAction
	case "normalize":
		fn = b.normalizeAction
	case "scale":
		fn = b.scaleAction
	case "apply":
		fn = b.applyAction
	case "stats":
		fn = b.statsAction
	case "print":
		fn = b.printAction
	default:
		return nil, false
	}
	return func(ctx context.Context, _ Batch[K], call Call) (Batch[K], error) {
		if err := fn(ctx, call); err != nil {
			return nil, err
		}
		return b, nil
	}, true
}

func (b *ArrayBatch[K]) loadAction(_ context.Context, call Call) error {
	names, err := call.StringArgs()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		if v, ok := call.Kwarg("components"); ok {
			names, _ = v.([]string)
		} else if v, ok := b.opts["components"].([]string); ok {
			names = v
		}
	}
	return b.Load(names...)
}

func (b *ArrayBatch[K]) normalizeAction(_ context.Context, call Call) error {
	names, err := call.StringArgs()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		names = b.names
	}
	for _, name := range names {
		if err := b.Normalize(name); err != nil {
			return err
		}
	}
	return nil
}

func (b *ArrayBatch[K]) scaleAction(_ context.Context, call Call) error {
	name, err := call.StringArg(0)
	if err != nil {
		return err
	}
	factor, err := call.FloatArg(1)
	if err != nil {
		return err
	}
	return b.Scale(name, factor)
}

func (b *ArrayBatch[K]) applyAction(_ context.Context, call Call) error {
	name, err := call.StringArg(0)
	if err != nil {
		return err
	}
	v, _ := call.Arg(1)
	fn, ok := v.(func(float64) float64)
	if !ok {
		return fmt.Errorf("apply: argument 1 must be a func(float64) float64, got %T", v)
	}
	return b.Apply(name, fn)
}

// statsAction appends the component's Stats to the pipeline variable named
// by the "var" keyword (default "stats:<component>").
func (b *ArrayBatch[K]) statsAction(_ context.Context, call Call) error {
	name, err := call.StringArg(0)
	if err != nil {
		return err
	}
	s, err := b.Stats(name)
	if err != nil {
		return err
	}
	if call.Vars == nil {
		return nil
	}
	varName := "stats:" + name
	if v, ok := call.Kwarg("var"); ok {
		if vs, ok := v.(string); ok {
			varName = vs
		}
	}
	call.Vars.Update(varName, func(old any) any {
		list, _ := old.([]Stats)
		return append(list, s)
	})
	return nil
}

func (b *ArrayBatch[K]) printAction(_ context.Context, call Call) error {
	prefix := "batch"
	if s, err := call.StringArg(0); err == nil {
		prefix = s
	}
	klog.Infof("%s: %d items, components %v", prefix, b.Len(), b.names)
	return nil
}
