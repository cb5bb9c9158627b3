package dsindex

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNewKeepsOrder(t *testing.T) {
	ids := []string{"c", "a", "b"}
	idx, err := New(ids)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := idx.Indices(); !reflect.DeepEqual(got, ids) {
		t.Fatalf("expected indices %v, got %v", ids, got)
	}

	// the index must own its copy
	ids[0] = "z"
	if idx.At(0) != "c" {
		t.Fatalf("index changed after caller modified its slice: %v", idx.Indices())
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	if _, err := New([]int{1, 2, 1}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestRange(t *testing.T) {
	idx := Range(5)
	if got, want := idx.Indices(), []int{0, 1, 2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if Range(-3).Len() != 0 {
		t.Fatalf("expected negative count to give an empty index")
	}
}

func TestBuildIndex(t *testing.T) {
	orig := Range(4)
	got, err := BuildIndex[int](orig)
	if err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}
	if got != Indexer[int](orig) {
		t.Fatalf("expected BuildIndex to return the same index reference")
	}

	fromCount, err := BuildIndex[int](3)
	if err != nil {
		t.Fatalf("BuildIndex(3) failed: %v", err)
	}
	if want := []int{0, 1, 2}; !reflect.DeepEqual(fromCount.Indices(), want) {
		t.Fatalf("expected %v, got %v", want, fromCount.Indices())
	}

	fromSlice, err := BuildIndex[string]([]string{"x", "y"})
	if err != nil {
		t.Fatalf("BuildIndex(slice) failed: %v", err)
	}
	if fromSlice.Len() != 2 || fromSlice.At(1) != "y" {
		t.Fatalf("unexpected index from slice: %v", fromSlice.Indices())
	}

	if _, err := BuildIndex[string](3); !errors.Is(err, ErrUnsupportedSource) {
		t.Fatalf("expected ErrUnsupportedSource for count with string ids, got %v", err)
	}
	if _, err := BuildIndex[int](3.5); !errors.Is(err, ErrUnsupportedSource) {
		t.Fatalf("expected ErrUnsupportedSource for float, got %v", err)
	}
}

func TestCreateSubset(t *testing.T) {
	idx := Range(10)
	other, _ := New([]int{6, 2, 4})

	sub, err := idx.CreateSubset(other)
	if err != nil {
		t.Fatalf("CreateSubset failed: %v", err)
	}
	if want := []int{6, 2, 4}; !reflect.DeepEqual(sub.Indices(), want) {
		t.Fatalf("expected %v, got %v", want, sub.Indices())
	}

	bad, _ := New([]int{2, 11, 12})
	_, err = idx.CreateSubset(bad)
	if !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	var oor *IndexOutOfRangeError
	if !errors.As(err, &oor) {
		t.Fatalf("expected *IndexOutOfRangeError, got %T", err)
	}
	if !reflect.DeepEqual(oor.Missing, []any{11, 12}) {
		t.Fatalf("expected missing [11 12], got %v", oor.Missing)
	}
}

func TestCreateBatch(t *testing.T) {
	idx, _ := New([]string{"a", "b", "c", "d"})

	b, err := idx.CreateBatch([]string{"d", "a"})
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if want := []string{"d", "a"}; !reflect.DeepEqual(b.Indices(), want) {
		t.Fatalf("expected %v, got %v", want, b.Indices())
	}

	at, err := idx.CreateBatchAt([]int{0, 2})
	if err != nil {
		t.Fatalf("CreateBatchAt failed: %v", err)
	}
	if want := []string{"a", "c"}; !reflect.DeepEqual(at.Indices(), want) {
		t.Fatalf("expected %v, got %v", want, at.Indices())
	}

	if _, err := idx.CreateBatch([]string{"a", "q"}); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange for unknown id, got %v", err)
	}
	if _, err := idx.CreateBatchAt([]int{4}); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange for bad position, got %v", err)
	}
	if _, err := idx.CreateBatch([]string{"a", "a"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	// the receiver is left as it was
	if want := []string{"a", "b", "c", "d"}; !reflect.DeepEqual(idx.Indices(), want) {
		t.Fatalf("source index changed: %v", idx.Indices())
	}
}

func TestCreateBatchFrom(t *testing.T) {
	idx, _ := New([]int{10, 20, 30})

	byID, err := idx.CreateBatchFrom([]int{30, 10}, false)
	if err != nil {
		t.Fatalf("CreateBatchFrom(ids) failed: %v", err)
	}
	if want := []int{30, 10}; !reflect.DeepEqual(byID.Indices(), want) {
		t.Fatalf("expected %v, got %v", want, byID.Indices())
	}

	byPos, err := idx.CreateBatchFrom([]int{2, 0}, true)
	if err != nil {
		t.Fatalf("CreateBatchFrom(positions) failed: %v", err)
	}
	if want := []int{30, 10}; !reflect.DeepEqual(byPos.Indices(), want) {
		t.Fatalf("expected %v, got %v", want, byPos.Indices())
	}

	strIdx, _ := New([]string{"a"})
	if _, err := strIdx.CreateBatchFrom([]string{"a"}, true); !errors.Is(err, ErrUnsupportedSource) {
		t.Fatalf("expected ErrUnsupportedSource for string positions, got %v", err)
	}
}

func TestSame(t *testing.T) {
	a := Range(3)
	b, _ := New([]int{0, 1, 2})
	c, _ := New([]int{0, 2, 1})
	d := Range(2)

	if !Same[int](a, b) {
		t.Fatalf("expected equal indices to be the same")
	}
	if Same[int](a, c) {
		t.Fatalf("expected different order to differ")
	}
	if Same[int](a, d) {
		t.Fatalf("expected different lengths to differ")
	}
	if Same[int](a, nil) || !Same[int](nil, nil) {
		t.Fatalf("unexpected nil handling")
	}
}

func TestSameAcrossKinds(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.csv", "b.csv"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	files, err := NewFilesIndex(filepath.Join(dir, "*.csv"), FilesOptions{})
	if err != nil {
		t.Fatalf("NewFilesIndex failed: %v", err)
	}
	plain, _ := New([]string{"a.csv", "b.csv"})
	if !Same[string](files, plain) || !Same[string](plain, files) {
		t.Fatalf("expected files index and plain index with the same ids to be the same")
	}
}

func TestSaveLoad(t *testing.T) {
	idx, _ := New([]string{"q", "w", "e"})

	var buf bytes.Buffer
	if err := idx.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load[string](&buf)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !Same[string](idx, loaded) {
		t.Fatalf("expected %v, got %v", idx.Indices(), loaded.Indices())
	}

	path := filepath.Join(t.TempDir(), "cache", "index.gob")
	if err := idx.SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	fromFile, err := LoadFile[string](path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if !Same[string](idx, fromFile) {
		t.Fatalf("expected %v, got %v", idx.Indices(), fromFile.Indices())
	}
}
