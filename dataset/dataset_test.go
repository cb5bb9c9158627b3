package dataset

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/Noofbiz/batchflow/batch"
	"github.com/Noofbiz/batchflow/dsindex"
	"github.com/Noofbiz/batchflow/pipeline"
)

func newRange(t *testing.T, n int, preloaded any) *Dataset[int] {
	t.Helper()
	d, err := New[int](dsindex.Range(n), nil, preloaded)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d
}

func mustIndex(t *testing.T, ids ...int) *dsindex.Index[int] {
	t.Helper()
	idx, err := dsindex.New(ids)
	if err != nil {
		t.Fatalf("dsindex.New failed: %v", err)
	}
	return idx
}

var otherFactory = batch.FactoryFunc(func(index dsindex.Indexer[int], preloaded any, opts batch.Options) (batch.Batch[int], error) {
	return batch.NewArrayBatch(index, preloaded, opts)
})

// tagged returns a factory whose batches carry tag in their options.
func tagged(tag string) batch.Factory[int] {
	return batch.FactoryFunc(func(index dsindex.Indexer[int], preloaded any, _ batch.Options) (batch.Batch[int], error) {
		return batch.NewArrayBatch(index, preloaded, batch.Options{"tag": tag})
	})
}

func TestNewBuildsIndex(t *testing.T) {
	d, err := New[int](4, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if want := []int{0, 1, 2, 3}; !reflect.DeepEqual(d.Indices(), want) {
		t.Fatalf("expected %v, got %v", want, d.Indices())
	}

	idx := dsindex.Range(3)
	d, err = New[int](idx, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if d.Index() != dsindex.Indexer[int](idx) {
		t.Fatalf("expected the dataset to keep the given index")
	}
	if d.Factory() != batch.Factory[int](batch.ArrayFactory[int]{}) {
		t.Fatalf("expected the default factory, got %T", d.Factory())
	}

	if _, err := New[string](3, nil, nil); !errors.Is(err, dsindex.ErrUnsupportedSource) {
		t.Fatalf("expected ErrUnsupportedSource for a count with string ids, got %v", err)
	}
}

func TestFromDatasetAliases(t *testing.T) {
	payload := batch.Rows[int]{0: {"x": 1}}
	d := newRange(t, 5, payload)

	if got := FromDataset(d, d.Index(), nil); got != d {
		t.Fatalf("expected the same dataset for the same index")
	}
	if got := FromDataset(d, dsindex.Range(5), nil); got != d {
		t.Fatalf("expected the same dataset for an equal index")
	}
	if got := FromDataset(d, dsindex.Range(5), d.Factory()); got != d {
		t.Fatalf("expected the same dataset for a matching factory")
	}

	other := FromDataset(d, d.Index(), otherFactory)
	if other == d {
		t.Fatalf("expected a new dataset for a different factory")
	}
	if !dsindex.Same(other.Index(), d.Index()) {
		t.Fatalf("expected the new dataset to have an equal index")
	}
	if other.Factory() != otherFactory {
		t.Fatalf("expected the new dataset to use the requested factory")
	}
	if reflect.ValueOf(other.Preloaded()).Pointer() != reflect.ValueOf(payload).Pointer() {
		t.Fatalf("expected the preloaded payload to be shared by reference")
	}
	if got := FromDataset(d, d.Index(), batch.ArrayFactory[int]{}); got != d {
		t.Fatalf("expected the same dataset for an equal default factory")
	}

	sub := FromDataset(d, mustIndex(t, 1, 2), nil)
	if sub == d || sub.Len() != 2 {
		t.Fatalf("expected a new dataset over the smaller index, got %v", sub.Indices())
	}
}

func TestFromDatasetClosureFactories(t *testing.T) {
	d, err := New[int](5, tagged("A"), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := FromDataset(d, d.Index(), d.Factory()); got != d {
		t.Fatalf("expected the same dataset for its own factory")
	}

	other := FromDataset(d, d.Index(), tagged("B"))
	if other == d {
		t.Fatalf("expected a new dataset for a factory with different captured state")
	}
	b, err := other.CreateBatchAt([]int{0}, nil)
	if err != nil {
		t.Fatalf("CreateBatchAt failed: %v", err)
	}
	if tag := b.(*batch.ArrayBatch[int]).Options()["tag"]; tag != "B" {
		t.Fatalf("expected batches from factory B, got tag %v", tag)
	}
	b, err = d.CreateBatchAt([]int{0}, nil)
	if err != nil {
		t.Fatalf("CreateBatchAt failed: %v", err)
	}
	if tag := b.(*batch.ArrayBatch[int]).Options()["tag"]; tag != "A" {
		t.Fatalf("expected the source dataset to keep factory A, got tag %v", tag)
	}
}

func TestCreateSubset(t *testing.T) {
	d := newRange(t, 10, nil)

	sub, err := d.CreateSubset(mustIndex(t, 2, 4, 6))
	if err != nil {
		t.Fatalf("CreateSubset failed: %v", err)
	}
	if want := []int{2, 4, 6}; !reflect.DeepEqual(sub.Indices(), want) {
		t.Fatalf("expected %v, got %v", want, sub.Indices())
	}

	_, err = sub.CreateSubset(mustIndex(t, 8))
	if !errors.Is(err, dsindex.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	var oor *dsindex.IndexOutOfRangeError
	if !errors.As(err, &oor) || !reflect.DeepEqual(oor.Missing, []any{8}) {
		t.Fatalf("expected 8 to be reported missing, got %v", err)
	}

	if same, err := d.CreateSubset(dsindex.Range(10)); err != nil || same != d {
		t.Fatalf("expected a full subset to be the dataset itself, got %v %v", same, err)
	}
}

func TestCreateBatch(t *testing.T) {
	rows := batch.Rows[int]{}
	for i := range 6 {
		rows[i] = map[string]float64{"x": float64(i * 10)}
	}
	d := newRange(t, 6, rows)

	b, err := d.CreateBatch([]int{4, 1}, nil)
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if want := []int{4, 1}; !reflect.DeepEqual(b.Indices(), want) {
		t.Fatalf("expected %v, got %v", want, b.Indices())
	}
	ab := b.(*batch.ArrayBatch[int])
	if err := ab.Load("x"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if x, _ := ab.Component("x"); !reflect.DeepEqual(x, []float64{40, 10}) {
		t.Fatalf("unexpected component %v", x)
	}

	b, err = d.CreateBatchAt([]int{0, 5}, batch.Options{"k": 1})
	if err != nil {
		t.Fatalf("CreateBatchAt failed: %v", err)
	}
	if want := []int{0, 5}; !reflect.DeepEqual(b.Indices(), want) {
		t.Fatalf("expected %v, got %v", want, b.Indices())
	}
	if b.(*batch.ArrayBatch[int]).Options()["k"] != 1 {
		t.Fatalf("expected options to reach the factory")
	}

	if _, err := d.CreateBatch([]int{7}, nil); !errors.Is(err, dsindex.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange for an unknown id, got %v", err)
	}
	if _, err := d.CreateBatchAt([]int{6}, nil); !errors.Is(err, dsindex.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange for a bad position, got %v", err)
	}
	if want := []int{0, 1, 2, 3, 4, 5}; !reflect.DeepEqual(d.Indices(), want) {
		t.Fatalf("dataset index changed: %v", d.Indices())
	}
}

func TestCreateBatchFactoryErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	d, err := New[int](3, batch.FactoryFunc(func(dsindex.Indexer[int], any, batch.Options) (batch.Batch[int], error) {
		return nil, boom
	}), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := d.CreateBatch([]int{0}, nil); err != boom {
		t.Fatalf("expected the factory error unchanged, got %v", err)
	}
}

func TestCreateBatchConcurrent(t *testing.T) {
	d := newRange(t, 100, nil)
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for w := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 10 {
				pos := []int{w*10 + i}
				if _, err := d.CreateBatchAt(pos, nil); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent CreateBatchAt failed: %v", err)
	}
	if d.Len() != 100 {
		t.Fatalf("dataset index changed: %d items", d.Len())
	}
}

func TestSplit(t *testing.T) {
	d := newRange(t, 10, nil)
	if d.IsSplit() {
		t.Fatalf("expected a fresh dataset not to be split")
	}
	if err := d.Split(dsindex.Shares{0.6, 0.3}, false, 0); err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if !d.IsSplit() {
		t.Fatalf("expected the dataset to be split")
	}
	if want := []int{0, 1, 2, 3, 4, 5}; !reflect.DeepEqual(d.Train.Indices(), want) {
		t.Fatalf("expected train %v, got %v", want, d.Train.Indices())
	}
	if want := []int{6, 7, 8}; !reflect.DeepEqual(d.Test.Indices(), want) {
		t.Fatalf("expected test %v, got %v", want, d.Test.Indices())
	}
	if want := []int{9}; !reflect.DeepEqual(d.Validation.Indices(), want) {
		t.Fatalf("expected validation %v, got %v", want, d.Validation.Indices())
	}

	full := newRange(t, 4, nil)
	if err := full.Split(dsindex.Shares{1}, false, 0); err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if full.Train != full {
		t.Fatalf("expected a full train share to alias the dataset")
	}
	if full.Test.Len() != 0 {
		t.Fatalf("expected an empty test part, got %v", full.Test.Indices())
	}

	if err := d.Split(dsindex.Shares{0.8, 0.8}, false, 0); !errors.Is(err, dsindex.ErrInvalidShares) {
		t.Fatalf("expected ErrInvalidShares, got %v", err)
	}
}

func TestBind(t *testing.T) {
	d := newRange(t, 4, nil)

	unbound := pipeline.New[int](nil, nil).Add("print")
	p, err := d.Bind(unbound)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if p.Source() != pipeline.Source[int](d) {
		t.Fatalf("expected the pipeline to be bound to the dataset")
	}
	if unbound.IsBound() {
		t.Fatalf("expected the template pipeline to stay unbound")
	}
	if len(p.Steps()) != 1 {
		t.Fatalf("expected steps to be kept, got %d", len(p.Steps()))
	}

	for _, bad := range []any{nil, 3, "pipeline", pipeline.New[string](nil, nil)} {
		_, err := d.Bind(bad)
		if !errors.Is(err, ErrArgumentType) {
			t.Fatalf("expected ErrArgumentType for %T, got %v", bad, err)
		}
		var ate *ArgumentTypeError
		if !errors.As(err, &ate) {
			t.Fatalf("expected an *ArgumentTypeError, got %T", err)
		}
	}
}

func TestPipeline(t *testing.T) {
	d := newRange(t, 3, nil)
	p := d.Pipeline(pipeline.Config{"a": 1})
	if p.Source() != pipeline.Source[int](d) {
		t.Fatalf("expected the pipeline to be bound to the dataset")
	}
	if v, _ := p.Config().Get("a"); v != 1 {
		t.Fatalf("expected config to be kept, got %v", v)
	}
	if d.P().Config() != nil {
		t.Fatalf("expected P to have no config")
	}
}
