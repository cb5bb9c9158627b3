package dsindex

import (
	"errors"
	"reflect"
	"sort"
	"testing"
)

func drain(t *testing.T, it *Iterator[int]) [][]int {
	t.Helper()
	var out [][]int
	for {
		b, err := it.Next()
		if errors.Is(err, ErrStopIteration) {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, b.Indices())
	}
}

func TestIteratorSequential(t *testing.T) {
	it, err := NewIterator[int](Range(7), IterOptions{BatchSize: 3})
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	got := drain(t, it)
	want := [][]int{{0, 1, 2}, {3, 4, 5}, {6}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if it.Epoch() != 1 {
		t.Fatalf("expected 1 completed epoch, got %d", it.Epoch())
	}
}

func TestIteratorDropLast(t *testing.T) {
	it, _ := NewIterator[int](Range(7), IterOptions{BatchSize: 3, DropLast: true, NEpochs: 2})
	got := drain(t, it)
	if len(got) != 4 {
		t.Fatalf("expected 4 full batches over 2 epochs, got %v", got)
	}
	for _, b := range got {
		if len(b) != 3 {
			t.Fatalf("expected full batches only, got %v", got)
		}
	}
	if it.BatchesPerEpoch() != 2 {
		t.Fatalf("expected 2 batches per epoch, got %d", it.BatchesPerEpoch())
	}

	small, _ := NewIterator[int](Range(2), IterOptions{BatchSize: 3, DropLast: true, NEpochs: -1})
	if _, err := small.Next(); !errors.Is(err, ErrStopIteration) {
		t.Fatalf("expected ErrStopIteration when no full batch exists, got %v", err)
	}
}

func TestIteratorNIters(t *testing.T) {
	it, _ := NewIterator[int](Range(4), IterOptions{BatchSize: 3, NIters: 5})
	got := drain(t, it)
	if len(got) != 5 {
		t.Fatalf("expected 5 batches, got %d", len(got))
	}
	if it.Iterations() != 5 {
		t.Fatalf("expected 5 iterations, got %d", it.Iterations())
	}
}

func TestIteratorShuffleCoversEpoch(t *testing.T) {
	opts := IterOptions{BatchSize: 4, Shuffle: true, Seed: 11}
	it, _ := NewIterator[int](Range(10), opts)
	var seen []int
	for _, b := range drain(t, it) {
		seen = append(seen, b...)
	}
	sort.Ints(seen)
	if !reflect.DeepEqual(seen, Range(10).Indices()) {
		t.Fatalf("expected every item once per epoch, got %v", seen)
	}

	a, _ := NewIterator[int](Range(10), opts)
	b, _ := NewIterator[int](Range(10), opts)
	if !reflect.DeepEqual(drain(t, a), drain(t, b)) {
		t.Fatalf("expected the same batches for the same seed")
	}
}

func TestIteratorBadBatchSize(t *testing.T) {
	if _, err := NewIterator[int](Range(3), IterOptions{}); err == nil {
		t.Fatalf("expected an error for a zero batch size")
	}
}
